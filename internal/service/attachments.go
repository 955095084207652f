package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"fault-dashboard/internal/models"
)

const (
	// DefaultMaxFileSize - предельный размер одного вложения (10 MiB).
	DefaultMaxFileSize int64 = 10 << 20
	// DefaultMaxFiles - предельное количество вложений в одной отправке.
	DefaultMaxFiles = 5
)

// AllowedMimeTypes - допустимые типы вложений.
var AllowedMimeTypes = map[string]bool{
	"image/jpeg":         true,
	"image/jpg":          true,
	"image/png":          true,
	"application/pdf":    true,
	"text/plain":         true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// AllowedExtensions - допустимые расширения имен вложений.
var AllowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".pdf":  true,
	".txt":  true,
	".doc":  true,
	".docx": true,
}

// Upload - файл, полученный в запросе и еще не сохраненный.
type Upload struct {
	OriginalName string
	MimeType     string
	Size         int64
	Open         func() (io.ReadCloser, error)
}

// UploadLimits задает ограничения на вложения.
type UploadLimits struct {
	MaxFileSize int64
	MaxFiles    int
}

// DefaultUploadLimits возвращает ограничения по умолчанию.
func DefaultUploadLimits() UploadLimits {
	return UploadLimits{MaxFileSize: DefaultMaxFileSize, MaxFiles: DefaultMaxFiles}
}

// ValidateUploads проверяет количество, тип и размер вложений и возвращает все нарушения.
func ValidateUploads(uploads []Upload, limits UploadLimits) []string {
	if len(uploads) > limits.MaxFiles {
		return []string{fmt.Sprintf("Too many files. Maximum %d files allowed per request", limits.MaxFiles)}
	}

	var errs []string
	for i, u := range uploads {
		n := i + 1
		mime := normalizeMime(u.MimeType)
		ext := strings.ToLower(filepath.Ext(u.OriginalName))
		if !AllowedMimeTypes[mime] || !AllowedExtensions[ext] {
			shown := u.MimeType
			if shown == "" {
				shown = ext
			}
			errs = append(errs, fmt.Sprintf("File %d (%s) has unsupported type: %s", n, u.OriginalName, shown))
		}
		if u.Size > limits.MaxFileSize {
			errs = append(errs, fmt.Sprintf("File %d (%s) exceeds maximum size of %dMB", n, u.OriginalName, limits.MaxFileSize>>20))
		}
	}
	return errs
}

// ValidStorageName отклоняет пустые имена и имена с попыткой обхода каталогов.
func ValidStorageName(name string) bool {
	if name == "" {
		return false
	}
	return !strings.Contains(name, "..") && !strings.ContainsAny(name, `/\`)
}

// normalizeMime отбрасывает параметры вида "; charset=utf-8".
func normalizeMime(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

// savePayloads записывает содержимое всех вложений. При ошибке удаляет уже записанные.
func (s *ReportService) savePayloads(ctx context.Context, uploads []Upload) ([]*StoredPayload, error) {
	saved := make([]*StoredPayload, 0, len(uploads))
	for _, u := range uploads {
		p, err := s.savePayload(ctx, u)
		if err != nil {
			s.removePayloads(ctx, saved)
			return nil, &StoreUnavailableError{Op: "save file", Err: err}
		}
		saved = append(saved, p)
	}
	return saved, nil
}

func (s *ReportService) savePayload(ctx context.Context, u Upload) (*StoredPayload, error) {
	rc, err := u.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %q: %w", u.OriginalName, err)
	}
	defer rc.Close()
	return s.payloads.Save(ctx, rc, u.Size, u.OriginalName, normalizeMime(u.MimeType))
}

// recordFiles пишет метаданные вложений. При ошибке удаляет уже записанные строки.
func (s *ReportService) recordFiles(ctx context.Context, fault *models.FaultReport, uploads []Upload, saved []*StoredPayload) ([]*models.FaultFile, error) {
	files := make([]*models.FaultFile, 0, len(saved))
	for i, p := range saved {
		file := &models.FaultFile{
			FaultID:      fault.ID,
			FileName:     p.FileName,
			OriginalName: uploads[i].OriginalName,
			MimeType:     normalizeMime(uploads[i].MimeType),
			Size:         p.Size,
			FilePath:     p.FilePath,
		}
		if err := s.store.CreateFaultFile(ctx, file); err != nil {
			for _, f := range files {
				if _, derr := s.store.DeleteFaultFile(ctx, f.ID); derr != nil {
					s.logger.Warn("failed to roll back file metadata", zap.String("file_id", f.ID), zap.Error(derr))
				}
			}
			return nil, storeError("create file metadata", err)
		}
		files = append(files, file)
	}
	return files, nil
}

// removePayloads удаляет сохраненное содержимое. Ошибки только логируются.
func (s *ReportService) removePayloads(ctx context.Context, saved []*StoredPayload) {
	for _, p := range saved {
		if err := s.payloads.Delete(ctx, p.FileName); err != nil {
			payloadCleanupFailures.Inc()
			s.logger.Warn("failed to clean up stored file", zap.String("file_name", p.FileName), zap.Error(err))
		}
	}
}
