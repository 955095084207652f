package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fault-dashboard/internal/models"
	"fault-dashboard/internal/service"
)

// GormFaultRepository - это реализация FaultStore с использованием GORM поверх SQLite.
type GormFaultRepository struct {
	db    *gorm.DB
	clock *models.Clock
}

// Option настраивает репозиторий.
type Option func(*GormFaultRepository)

// WithClock подменяет источник времени (используется в тестах).
func WithClock(now func() time.Time) Option {
	return func(r *GormFaultRepository) { r.clock = models.NewClock(now) }
}

// NewGormFaultRepository создает новый экземпляр репозитория отчетов.
// Схема должна быть уже создана миграциями (см. Open).
func NewGormFaultRepository(db *gorm.DB, opts ...Option) (service.FaultStore, error) {
	r := &GormFaultRepository{db: db, clock: models.NewClock(nil)}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *GormFaultRepository) CreateFault(ctx context.Context, fault *models.FaultReport) error {
	now := r.clock.Next()
	fault.ID = uuid.NewString()
	fault.CreatedAt = now
	fault.UpdatedAt = now
	if err := r.db.WithContext(ctx).Create(fault).Error; err != nil {
		return fmt.Errorf("create fault: %w", err)
	}
	return nil
}

func (r *GormFaultRepository) GetFaultByID(ctx context.Context, id string) (*models.FaultReport, error) {
	var fault models.FaultReport
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&fault).Error
	if err != nil {
		return nil, notFound("get fault", err)
	}
	return &fault, nil
}

// GetAllFaults возвращает страницу отчетов, новые первыми.
func (r *GormFaultRepository) GetAllFaults(ctx context.Context, limit, offset int) ([]*models.FaultReport, error) {
	faults := []*models.FaultReport{}
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&faults).Error
	if err != nil {
		return nil, fmt.Errorf("list faults: %w", err)
	}
	return faults, nil
}

func (r *GormFaultRepository) CountFaults(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.FaultReport{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count faults: %w", err)
	}
	return n, nil
}

// UpdateFault читает запись, применяет патч и сохраняет ее в одной транзакции.
func (r *GormFaultRepository) UpdateFault(ctx context.Context, id string, patch models.FaultPatch) (*models.FaultReport, error) {
	var fault models.FaultReport
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&fault).Error; err != nil {
			return err
		}
		patch.Apply(&fault)
		fault.UpdatedAt = models.NextUpdatedAt(fault.UpdatedAt, r.clock.Next())
		return tx.Save(&fault).Error
	})
	if err != nil {
		return nil, notFound("update fault", err)
	}
	return &fault, nil
}

// DeleteFault удаляет отчет и метаданные его вложений. Вложения удаляются явно,
// не полагаясь только на ON DELETE CASCADE.
func (r *GormFaultRepository) DeleteFault(ctx context.Context, id string) (bool, error) {
	var existed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("fault_id = ?", id).Delete(&models.FaultFile{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.FaultReport{})
		if res.Error != nil {
			return res.Error
		}
		existed = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete fault: %w", err)
	}
	return existed, nil
}

// CreateFaultFile записывает метаданные вложения. Отчет должен существовать.
func (r *GormFaultRepository) CreateFaultFile(ctx context.Context, file *models.FaultFile) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.FaultReport{}).Where("id = ?", file.FaultID).Count(&n).Error; err != nil {
			return fmt.Errorf("create fault file: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("create fault file: fault %s: %w", file.FaultID, service.ErrNotFound)
		}
		file.ID = uuid.NewString()
		file.CreatedAt = r.clock.Next()
		if err := tx.Create(file).Error; err != nil {
			return fmt.Errorf("create fault file: %w", err)
		}
		return nil
	})
}

// GetFaultFiles возвращает вложения отчета в порядке загрузки.
func (r *GormFaultRepository) GetFaultFiles(ctx context.Context, faultID string) ([]*models.FaultFile, error) {
	files := []*models.FaultFile{}
	err := r.db.WithContext(ctx).
		Where("fault_id = ?", faultID).
		Order("created_at ASC, id ASC").
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("list fault files: %w", err)
	}
	return files, nil
}

func (r *GormFaultRepository) GetFaultFileByID(ctx context.Context, id string) (*models.FaultFile, error) {
	var file models.FaultFile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&file).Error; err != nil {
		return nil, notFound("get fault file", err)
	}
	return &file, nil
}

func (r *GormFaultRepository) GetFaultFileByName(ctx context.Context, fileName string) (*models.FaultFile, error) {
	var file models.FaultFile
	if err := r.db.WithContext(ctx).Where("file_name = ?", fileName).First(&file).Error; err != nil {
		return nil, notFound("get fault file", err)
	}
	return &file, nil
}

func (r *GormFaultRepository) DeleteFaultFile(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.FaultFile{})
	if res.Error != nil {
		return false, fmt.Errorf("delete fault file: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// CountFaultFiles считает вложения для набора отчетов одним запросом.
func (r *GormFaultRepository) CountFaultFiles(ctx context.Context, faultIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(faultIDs))
	if len(faultIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		FaultID string
		Count   int
	}
	err := r.db.WithContext(ctx).
		Model(&models.FaultFile{}).
		Select("fault_id, COUNT(*) AS count").
		Where("fault_id IN ?", faultIDs).
		Group("fault_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count fault files: %w", err)
	}
	for _, row := range rows {
		counts[row.FaultID] = row.Count
	}
	return counts, nil
}

// SearchFaults ищет подстроку без учета регистра в title, description, reporter и asset_id
// и сужает результат фильтрами. Символы % и _ в term трактуются буквально.
func (r *GormFaultRepository) SearchFaults(ctx context.Context, term string, filters models.FaultFilters) ([]*models.FaultReport, error) {
	q := r.db.WithContext(ctx).Model(&models.FaultReport{})

	if term != "" {
		like := "%" + escapeLike(models.FoldASCII(term)) + "%"
		q = q.Where(
			`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\' OR LOWER(reporter) LIKE ? ESCAPE '\' OR LOWER(asset_id) LIKE ? ESCAPE '\')`,
			like, like, like, like,
		)
	}
	if filters.Severity != "" {
		q = q.Where("severity = ?", filters.Severity)
	}
	if filters.AssetID != "" {
		q = q.Where("asset_id = ?", filters.AssetID)
	}
	if filters.Category != "" {
		q = q.Where("category = ?", filters.Category)
	}
	if filters.DateFrom != "" {
		q = q.Where("date >= ?", filters.DateFrom)
	}
	if filters.DateTo != "" {
		q = q.Where("date <= ?", filters.DateTo)
	}

	faults := []*models.FaultReport{}
	err := q.Order("created_at DESC, id DESC").Limit(models.SearchLimit).Find(&faults).Error
	if err != nil {
		return nil, fmt.Errorf("search faults: %w", err)
	}
	return faults, nil
}

func (r *GormFaultRepository) GetFaultStats(ctx context.Context) (*models.FaultStats, error) {
	stats := &models.FaultStats{}
	db := r.db.WithContext(ctx)

	var rows []struct {
		Severity models.Severity
		Count    int64
	}
	err := db.Model(&models.FaultReport{}).
		Select("severity, COUNT(*) AS count").
		Group("severity").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fault stats: %w", err)
	}
	for _, row := range rows {
		stats.Total += row.Count
		stats.BySeverity.Add(row.Severity, row.Count)
	}

	since := r.clock.Now().Add(-models.RecentWindow)
	if err := db.Model(&models.FaultReport{}).Where("created_at >= ?", since).Count(&stats.RecentCount).Error; err != nil {
		return nil, fmt.Errorf("fault stats: %w", err)
	}
	return stats, nil
}

// Close закрывает соединение с базой.
func (r *GormFaultRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// notFound превращает gorm.ErrRecordNotFound в service.ErrNotFound.
func notFound(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return service.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

// escapeLike экранирует спецсимволы LIKE, чтобы они совпадали буквально.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
