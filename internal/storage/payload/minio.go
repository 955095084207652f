package payload

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"fault-dashboard/internal/service"
)

// MinioOptions - параметры подключения к MinIO.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore хранит вложения в бакете MinIO (или любом S3-совместимом хранилище).
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore подключается к MinIO и создает бакет, если его нет.
func NewMinioStore(ctx context.Context, opts MinioOptions) (*MinioStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", opts.Bucket, err)
		}
	}

	return &MinioStore{client: client, bucket: opts.Bucket}, nil
}

func (s *MinioStore) Save(ctx context.Context, r io.Reader, size int64, originalName, mimeType string) (*service.StoredPayload, error) {
	name := StorageName(originalName, time.Now())
	info, err := s.client.PutObject(ctx, s.bucket, name, r, size, minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return nil, fmt.Errorf("upload payload: %w", err)
	}
	return &service.StoredPayload{
		FileName: name,
		FilePath: s.bucket + "/" + name,
		Size:     info.Size,
	}, nil
}

// Open возвращает объект MinIO; он поддерживает Seek, поэтому отдается с Range так же, как файл.
func (s *MinioStore) Open(ctx context.Context, fileName string) (*service.Payload, error) {
	if !service.ValidStorageName(fileName) {
		return nil, service.ErrInvalidFileName
	}
	obj, err := s.client.GetObject(ctx, s.bucket, fileName, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioError(fileName, err)
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, mapMinioError(fileName, err)
	}
	return &service.Payload{Content: obj, Size: info.Size, ModTime: info.LastModified}, nil
}

// Delete удаляет объект. S3 не считает ошибкой удаление отсутствующего ключа.
func (s *MinioStore) Delete(ctx context.Context, fileName string) error {
	if !service.ValidStorageName(fileName) {
		return service.ErrInvalidFileName
	}
	if err := s.client.RemoveObject(ctx, s.bucket, fileName, minio.RemoveObjectOptions{}); err != nil {
		return mapMinioError(fileName, err)
	}
	return nil
}

func mapMinioError(fileName string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("payload %s: %w", fileName, service.ErrNotFound)
	}
	return fmt.Errorf("payload %s: %w", fileName, err)
}
