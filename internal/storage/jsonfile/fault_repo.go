// Package jsonfile хранит отчеты в одном JSON-документе {"faults": [...], "files": [...]}.
// Каждая мутация сериализует весь набор данных и атомарно заменяет файл.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fault-dashboard/internal/models"
	"fault-dashboard/internal/service"
)

// dataset - содержимое документа.
type dataset struct {
	Faults []*models.FaultReport `json:"faults"`
	Files  []*models.FaultFile   `json:"files"`
}

// JSONFaultRepository - это реализация FaultStore поверх JSON-файла.
// Пустой path означает работу только в памяти (для тестов).
type JSONFaultRepository struct {
	mu    sync.RWMutex
	path  string
	data  *dataset
	clock *models.Clock
}

// Option настраивает репозиторий.
type Option func(*JSONFaultRepository)

// WithClock подменяет источник времени (используется в тестах).
func WithClock(now func() time.Time) Option {
	return func(r *JSONFaultRepository) { r.clock = models.NewClock(now) }
}

// New открывает документ по path. Отсутствующий файл создается пустым,
// поврежденный приводит к ошибке.
func New(path string, opts ...Option) (*JSONFaultRepository, error) {
	r := newRepo(path, opts)

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		if err := r.persist(r.data); err != nil {
			return nil, err
		}
		return r, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var d dataset
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("corrupt data file %s: %w", path, err)
		}
	}
	if d.Faults == nil {
		d.Faults = []*models.FaultReport{}
	}
	if d.Files == nil {
		d.Files = []*models.FaultFile{}
	}
	r.data = &d
	return r, nil
}

// NewInMemory создает репозиторий без файла на диске.
func NewInMemory(opts ...Option) *JSONFaultRepository {
	return newRepo("", opts)
}

func newRepo(path string, opts []Option) *JSONFaultRepository {
	r := &JSONFaultRepository{
		path:  path,
		data:  &dataset{Faults: []*models.FaultReport{}, Files: []*models.FaultFile{}},
		clock: models.NewClock(nil),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *JSONFaultRepository) CreateFault(ctx context.Context, fault *models.FaultReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Next()
	stored := *fault
	stored.ID = uuid.NewString()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	next := r.data.clone()
	next.Faults = append(next.Faults, &stored)
	if err := r.commit(next); err != nil {
		return fmt.Errorf("create fault: %w", err)
	}

	*fault = stored
	return nil
}

func (r *JSONFaultRepository) GetFaultByID(ctx context.Context, id string) (*models.FaultReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if f := r.data.fault(id); f != nil {
		c := *f
		return &c, nil
	}
	return nil, service.ErrNotFound
}

// GetAllFaults возвращает страницу отчетов, новые первыми.
func (r *JSONFaultRepository) GetAllFaults(ctx context.Context, limit, offset int) ([]*models.FaultReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sorted := copyFaults(r.data.Faults)
	sortNewestFirst(sorted)
	return page(sorted, limit, offset), nil
}

func (r *JSONFaultRepository) CountFaults(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.data.Faults)), nil
}

func (r *JSONFaultRepository) UpdateFault(ctx context.Context, id string, patch models.FaultPatch) (*models.FaultReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.data.clone()
	f := next.fault(id)
	if f == nil {
		return nil, service.ErrNotFound
	}
	updated := *f
	patch.Apply(&updated)
	updated.UpdatedAt = models.NextUpdatedAt(f.UpdatedAt, r.clock.Next())
	next.replaceFault(&updated)

	if err := r.commit(next); err != nil {
		return nil, fmt.Errorf("update fault: %w", err)
	}
	c := updated
	return &c, nil
}

// DeleteFault удаляет отчет и все его вложения одной записью документа.
func (r *JSONFaultRepository) DeleteFault(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.data.fault(id) == nil {
		return false, nil
	}

	next := &dataset{
		Faults: make([]*models.FaultReport, 0, len(r.data.Faults)),
		Files:  make([]*models.FaultFile, 0, len(r.data.Files)),
	}
	for _, f := range r.data.Faults {
		if f.ID != id {
			next.Faults = append(next.Faults, f)
		}
	}
	for _, f := range r.data.Files {
		if f.FaultID != id {
			next.Files = append(next.Files, f)
		}
	}
	if err := r.commit(next); err != nil {
		return false, fmt.Errorf("delete fault: %w", err)
	}
	return true, nil
}

// CreateFaultFile записывает метаданные вложения. Отчет должен существовать.
func (r *JSONFaultRepository) CreateFaultFile(ctx context.Context, file *models.FaultFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.data.fault(file.FaultID) == nil {
		return fmt.Errorf("create fault file: fault %s: %w", file.FaultID, service.ErrNotFound)
	}

	stored := *file
	stored.ID = uuid.NewString()
	stored.CreatedAt = r.clock.Next()

	next := r.data.clone()
	next.Files = append(next.Files, &stored)
	if err := r.commit(next); err != nil {
		return fmt.Errorf("create fault file: %w", err)
	}

	*file = stored
	return nil
}

// GetFaultFiles возвращает вложения отчета в порядке загрузки.
func (r *JSONFaultRepository) GetFaultFiles(ctx context.Context, faultID string) ([]*models.FaultFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	files := []*models.FaultFile{}
	for _, f := range r.data.Files {
		if f.FaultID == faultID {
			c := *f
			files = append(files, &c)
		}
	}
	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].CreatedAt.Equal(files[j].CreatedAt) {
			return files[i].CreatedAt.Before(files[j].CreatedAt)
		}
		return files[i].ID < files[j].ID
	})
	return files, nil
}

func (r *JSONFaultRepository) GetFaultFileByID(ctx context.Context, id string) (*models.FaultFile, error) {
	return r.findFile(func(f *models.FaultFile) bool { return f.ID == id })
}

func (r *JSONFaultRepository) GetFaultFileByName(ctx context.Context, fileName string) (*models.FaultFile, error) {
	return r.findFile(func(f *models.FaultFile) bool { return f.FileName == fileName })
}

func (r *JSONFaultRepository) findFile(match func(*models.FaultFile) bool) (*models.FaultFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.data.Files {
		if match(f) {
			c := *f
			return &c, nil
		}
	}
	return nil, service.ErrNotFound
}

func (r *JSONFaultRepository) DeleteFaultFile(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := &dataset{Faults: r.data.Faults, Files: make([]*models.FaultFile, 0, len(r.data.Files))}
	for _, f := range r.data.Files {
		if f.ID != id {
			next.Files = append(next.Files, f)
		}
	}
	if len(next.Files) == len(r.data.Files) {
		return false, nil
	}
	if err := r.commit(next); err != nil {
		return false, fmt.Errorf("delete fault file: %w", err)
	}
	return true, nil
}

func (r *JSONFaultRepository) CountFaultFiles(ctx context.Context, faultIDs []string) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[string]bool, len(faultIDs))
	for _, id := range faultIDs {
		wanted[id] = true
	}
	counts := make(map[string]int, len(faultIDs))
	for _, f := range r.data.Files {
		if wanted[f.FaultID] {
			counts[f.FaultID]++
		}
	}
	return counts, nil
}

// SearchFaults ищет подстроку без учета регистра (только латиница, как в SQLite)
// в title, description, reporter и assetId и сужает результат фильтрами.
func (r *JSONFaultRepository) SearchFaults(ctx context.Context, term string, filters models.FaultFilters) ([]*models.FaultReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := models.FoldASCII(term)
	var found []*models.FaultReport
	for _, f := range r.data.Faults {
		if needle != "" && !matchesTerm(f, needle) {
			continue
		}
		if !filters.Match(f) {
			continue
		}
		c := *f
		found = append(found, &c)
	}
	sortNewestFirst(found)
	if len(found) > models.SearchLimit {
		found = found[:models.SearchLimit]
	}
	if found == nil {
		found = []*models.FaultReport{}
	}
	return found, nil
}

func (r *JSONFaultRepository) GetFaultStats(ctx context.Context) (*models.FaultStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	since := r.clock.Now().Add(-models.RecentWindow)
	stats := &models.FaultStats{Total: int64(len(r.data.Faults))}
	for _, f := range r.data.Faults {
		stats.BySeverity.Add(f.Severity, 1)
		if !f.CreatedAt.Before(since) {
			stats.RecentCount++
		}
	}
	return stats, nil
}

// Close ничего не делает: каждая мутация уже записана на диск.
func (r *JSONFaultRepository) Close() error {
	return nil
}

// commit записывает next на диск и только после успешной записи делает его текущим.
// Вызывается под r.mu.Lock.
func (r *JSONFaultRepository) commit(next *dataset) error {
	if err := r.persist(next); err != nil {
		return err
	}
	r.data = next
	return nil
}

// persist атомарно заменяет файл: temp файл -> запись -> fsync -> rename.
func (r *JSONFaultRepository) persist(d *dataset) error {
	if r.path == "" {
		return nil
	}

	raw, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// clone копирует срезы, но не записи. Записи никогда не изменяются на месте.
func (d *dataset) clone() *dataset {
	return &dataset{
		Faults: append(make([]*models.FaultReport, 0, len(d.Faults)+1), d.Faults...),
		Files:  append(make([]*models.FaultFile, 0, len(d.Files)+1), d.Files...),
	}
}

func (d *dataset) fault(id string) *models.FaultReport {
	for _, f := range d.Faults {
		if f.ID == id {
			return f
		}
	}
	return nil
}

func (d *dataset) replaceFault(updated *models.FaultReport) {
	for i, f := range d.Faults {
		if f.ID == updated.ID {
			d.Faults[i] = updated
			return
		}
	}
}

func matchesTerm(f *models.FaultReport, needle string) bool {
	for _, field := range []string{f.Title, f.Description, f.Reporter, f.AssetID} {
		if strings.Contains(models.FoldASCII(field), needle) {
			return true
		}
	}
	return false
}

func copyFaults(in []*models.FaultReport) []*models.FaultReport {
	out := make([]*models.FaultReport, len(in))
	for i, f := range in {
		c := *f
		out[i] = &c
	}
	return out
}

func sortNewestFirst(faults []*models.FaultReport) {
	sort.SliceStable(faults, func(i, j int) bool {
		if !faults[i].CreatedAt.Equal(faults[j].CreatedAt) {
			return faults[i].CreatedAt.After(faults[j].CreatedAt)
		}
		return faults[i].ID > faults[j].ID
	})
}

func page(faults []*models.FaultReport, limit, offset int) []*models.FaultReport {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(faults) {
		return []*models.FaultReport{}
	}
	end := len(faults)
	if limit >= 0 && offset+limit < end {
		end = offset + limit
	}
	return faults[offset:end]
}
