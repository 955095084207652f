// Package payload - хранилища содержимого вложений: каталог на диске и бакет MinIO.
package payload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"fault-dashboard/internal/service"
)

// LocalStore хранит вложения в каталоге на диске.
type LocalStore struct {
	// dir - корневой каталог вложений
	dir string
}

// NewLocalStore создает хранилище и при необходимости каталог dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

// Dir возвращает каталог вложений.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Save записывает содержимое под новым именем {unixMillis}_{uuid}{ext}.
//
// Паттерн: temp файл -> запись -> fsync -> atomic rename.
// При ошибке temp файл удаляется.
func (s *LocalStore) Save(ctx context.Context, r io.Reader, size int64, originalName, mimeType string) (*service.StoredPayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := StorageName(originalName, time.Now())
	fullPath := filepath.Join(s.dir, name)
	tmpPath := fullPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	written, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("write payload: %w", err)
	}
	if size >= 0 && written != size {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("write payload: got %d bytes, expected %d", written, size)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("fsync payload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("close payload: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("rename payload: %w", err)
	}

	return &service.StoredPayload{FileName: name, FilePath: fullPath, Size: written}, nil
}

// Open открывает вложение на чтение. Отсутствующий файл - service.ErrNotFound.
func (s *LocalStore) Open(ctx context.Context, fileName string) (*service.Payload, error) {
	if !service.ValidStorageName(fileName) {
		return nil, service.ErrInvalidFileName
	}
	f, err := os.Open(filepath.Join(s.dir, fileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("payload %s: %w", fileName, service.ErrNotFound)
		}
		return nil, fmt.Errorf("open payload %s: %w", fileName, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat payload %s: %w", fileName, err)
	}
	return &service.Payload{Content: f, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Delete удаляет вложение. Возвращает nil если файл уже не существует.
func (s *LocalStore) Delete(ctx context.Context, fileName string) error {
	if !service.ValidStorageName(fileName) {
		return service.ErrInvalidFileName
	}
	err := os.Remove(filepath.Join(s.dir, fileName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete payload %s: %w", fileName, err)
	}
	return nil
}

// StorageName генерирует имя хранения: {unixMillis}_{uuid}{ext}.
// Расширение берется из исходного имени в нижнем регистре, само имя клиента не используется.
func StorageName(originalName string, at time.Time) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !service.ValidStorageName(ext) {
		ext = ""
	}
	return fmt.Sprintf("%d_%s%s", at.UnixMilli(), uuid.NewString(), ext)
}
