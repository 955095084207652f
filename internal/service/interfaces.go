package service

import (
	"context"
	"io"
	"time"

	"fault-dashboard/internal/models"
)

// FaultStore определяет интерфейс хранилища отчетов и метаданных вложений.
// Реализации (реляционная и JSON-документ) обязаны вести себя одинаково.
type FaultStore interface {
	CreateFault(ctx context.Context, fault *models.FaultReport) error
	GetFaultByID(ctx context.Context, id string) (*models.FaultReport, error)
	GetAllFaults(ctx context.Context, limit, offset int) ([]*models.FaultReport, error)
	CountFaults(ctx context.Context) (int64, error)
	UpdateFault(ctx context.Context, id string, patch models.FaultPatch) (*models.FaultReport, error)
	// DeleteFault удаляет отчет вместе с метаданными его вложений.
	// Возвращает false, если отчета не было.
	DeleteFault(ctx context.Context, id string) (bool, error)

	CreateFaultFile(ctx context.Context, file *models.FaultFile) error
	GetFaultFiles(ctx context.Context, faultID string) ([]*models.FaultFile, error)
	GetFaultFileByID(ctx context.Context, id string) (*models.FaultFile, error)
	GetFaultFileByName(ctx context.Context, fileName string) (*models.FaultFile, error)
	DeleteFaultFile(ctx context.Context, id string) (bool, error)
	CountFaultFiles(ctx context.Context, faultIDs []string) (map[string]int, error)

	SearchFaults(ctx context.Context, term string, filters models.FaultFilters) ([]*models.FaultReport, error)
	GetFaultStats(ctx context.Context) (*models.FaultStats, error)

	Close() error
}

// StoredPayload описывает сохраненный файл вложения.
type StoredPayload struct {
	FileName string
	FilePath string
	Size     int64
}

// Payload - открытый на чтение файл вложения. Вызывающий обязан закрыть Content.
type Payload struct {
	Content io.ReadSeekCloser
	Size    int64
	ModTime time.Time
}

// PayloadStore определяет интерфейс хранилища содержимого вложений.
type PayloadStore interface {
	Save(ctx context.Context, r io.Reader, size int64, originalName, mimeType string) (*StoredPayload, error)
	Open(ctx context.Context, fileName string) (*Payload, error)
	// Delete не считает ошибкой отсутствие файла.
	Delete(ctx context.Context, fileName string) error
}

// Notifier отправляет оповещения о отчетах, требующих эскалации.
type Notifier interface {
	NotifyFault(ctx context.Context, fault *models.FaultReport, reasons []string) error
}
