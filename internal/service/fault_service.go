package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"fault-dashboard/internal/export"
	"fault-dashboard/internal/models"
)

const (
	// DefaultListLimit используется, когда limit не передан или не разобран.
	DefaultListLimit = 50
	// MaxListLimit - верхняя граница limit.
	MaxListLimit = 100

	msgLimitOutOfRange  = "Limit must be between 1 and 100"
	msgOffsetNegative   = "Offset must be non-negative"
	msgValidationFailed = "Validation failed"
)

// SubmissionState - этап обработки отправки отчета.
type SubmissionState string

const (
	StateReceived       SubmissionState = "received"
	StateValidated      SubmissionState = "validated"
	StateFilesValidated SubmissionState = "files_validated"
	StatePersisted      SubmissionState = "persisted"
	StateRejected       SubmissionState = "rejected"
)

// ReportDetails - отчет вместе с метаданными вложений.
type ReportDetails struct {
	Fault *models.FaultReport `json:"fault"`
	Files []*models.FaultFile `json:"files"`
}

// ListQuery - параметры выборки списка отчетов.
type ListQuery struct {
	Limit   int
	Offset  int
	Search  string
	Filters models.FaultFilters
}

// Pagination описывает страницу списка.
type Pagination struct {
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

// ListResult - страница отчетов.
type ListResult struct {
	Faults     []models.FaultListItem `json:"faults"`
	Pagination Pagination             `json:"pagination"`
}

// FileInfo - метаданные вложения и сведения о наличии его содержимого.
type FileInfo struct {
	File   *models.FaultFile `json:"file"`
	Exists bool              `json:"exists"`
	Size   int64             `json:"size"`
}

// ReportService содержит бизнес-логику работы с отчетами о неисправностях.
type ReportService struct {
	store    FaultStore
	payloads PayloadStore
	notifier Notifier
	policy   *EscalationPolicy
	limits   UploadLimits
	logger   *zap.Logger
	now      func() time.Time
}

// NewReportService создает новый экземпляр ReportService.
// notifier и policy могут быть nil, тогда оповещения не отправляются.
func NewReportService(store FaultStore, payloads PayloadStore, notifier Notifier, policy *EscalationPolicy, limits UploadLimits, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limits.MaxFiles <= 0 {
		limits.MaxFiles = DefaultMaxFiles
	}
	if limits.MaxFileSize <= 0 {
		limits.MaxFileSize = DefaultMaxFileSize
	}
	return &ReportService{
		store:    store,
		payloads: payloads,
		notifier: notifier,
		policy:   policy,
		limits:   limits,
		logger:   logger.Named("reports"),
		now:      time.Now,
	}
}

// Limits возвращает действующие ограничения на вложения.
func (s *ReportService) Limits() UploadLimits {
	return s.limits
}

// SubmitReport проверяет и сохраняет новый отчет вместе с вложениями.
// Содержимое вложений пишется только после успешной проверки полей и файлов.
func (s *ReportService) SubmitReport(ctx context.Context, raw map[string]any, uploads []Upload) (*ReportDetails, error) {
	log := s.logger.With(zap.Int("files", len(uploads)))
	state := StateReceived

	reject := func(reason string, err error) (*ReportDetails, error) {
		reportsRejectedTotal.WithLabelValues(reason).Inc()
		log.Info("report submission rejected",
			zap.String("from_state", string(state)),
			zap.String("state", string(StateRejected)),
			zap.Error(err))
		return nil, err
	}

	if errs := ValidateSubmission(raw); len(errs) > 0 {
		return reject("validation", &ValidationError{Message: msgValidationFailed, Errors: errs})
	}
	state = StateValidated

	if errs := ValidateUploads(uploads, s.limits); len(errs) > 0 {
		return reject("files", &FileValidationError{Errors: errs})
	}
	state = StateFilesValidated
	log.Debug("report submission validated", zap.String("state", string(state)))

	saved, err := s.savePayloads(ctx, uploads)
	if err != nil {
		return reject("storage", err)
	}

	fault := BuildFault(raw, s.now())
	if err := s.store.CreateFault(ctx, fault); err != nil {
		s.removePayloads(ctx, saved)
		return reject("storage", storeError("create fault", err))
	}

	files, err := s.recordFiles(ctx, fault, uploads, saved)
	if err != nil {
		if _, derr := s.store.DeleteFault(ctx, fault.ID); derr != nil {
			log.Error("failed to roll back fault after file metadata error",
				zap.String("fault_id", fault.ID), zap.Error(derr))
		}
		s.removePayloads(ctx, saved)
		return reject("storage", err)
	}
	state = StatePersisted

	reportsCreatedTotal.WithLabelValues(string(fault.Severity)).Inc()
	attachmentsStoredTotal.Add(float64(len(files)))
	log.Info("report submitted",
		zap.String("fault_id", fault.ID),
		zap.String("severity", string(fault.Severity)),
		zap.String("asset_id", fault.AssetID),
		zap.String("state", string(state)))

	s.escalate(ctx, fault)

	return &ReportDetails{Fault: fault, Files: files}, nil
}

// AttachFiles проверяет и прикрепляет вложения к только что созданному отчету.
// Любое нарушение отклоняет весь набор, ничего не сохраняя.
func (s *ReportService) AttachFiles(ctx context.Context, fault *models.FaultReport, uploads []Upload) ([]*models.FaultFile, error) {
	if errs := ValidateUploads(uploads, s.limits); len(errs) > 0 {
		return nil, &FileValidationError{Errors: errs}
	}
	saved, err := s.savePayloads(ctx, uploads)
	if err != nil {
		return nil, err
	}
	files, err := s.recordFiles(ctx, fault, uploads, saved)
	if err != nil {
		s.removePayloads(ctx, saved)
		return nil, err
	}
	attachmentsStoredTotal.Add(float64(len(files)))
	return files, nil
}

// GetReport возвращает отчет и его вложения.
func (s *ReportService) GetReport(ctx context.Context, id string) (*ReportDetails, error) {
	fault, err := s.store.GetFaultByID(ctx, id)
	if err != nil {
		return nil, storeError("get fault", err)
	}
	files, err := s.store.GetFaultFiles(ctx, id)
	if err != nil {
		return nil, storeError("get fault files", err)
	}
	return &ReportDetails{Fault: fault, Files: nonNilFiles(files)}, nil
}

// ListReports возвращает страницу отчетов. При заданном поиске или фильтрах
// используется поиск хранилища, иначе постраничная выборка.
func (s *ReportService) ListReports(ctx context.Context, q ListQuery) (*ListResult, error) {
	if q.Limit < 1 || q.Limit > MaxListLimit {
		return nil, &ValidationError{Message: msgLimitOutOfRange, Errors: []string{msgLimitOutOfRange}}
	}
	if q.Offset < 0 {
		return nil, &ValidationError{Message: msgOffsetNegative, Errors: []string{msgOffsetNegative}}
	}

	var (
		page  []*models.FaultReport
		total int64
	)
	if q.Search != "" || !q.Filters.IsZero() {
		found, err := s.store.SearchFaults(ctx, q.Search, q.Filters)
		if err != nil {
			return nil, storeError("search faults", err)
		}
		total = int64(len(found))
		page = paginate(found, q.Limit, q.Offset)
	} else {
		var err error
		page, err = s.store.GetAllFaults(ctx, q.Limit, q.Offset)
		if err != nil {
			return nil, storeError("list faults", err)
		}
		total, err = s.store.CountFaults(ctx)
		if err != nil {
			return nil, storeError("count faults", err)
		}
	}

	items, err := s.withFileCounts(ctx, page)
	if err != nil {
		return nil, err
	}
	return &ListResult{
		Faults:     items,
		Pagination: Pagination{Limit: q.Limit, Offset: q.Offset, Total: total},
	}, nil
}

// UpdateReport применяет частичное обновление из разрешенных полей.
func (s *ReportService) UpdateReport(ctx context.Context, id string, raw map[string]any) (*ReportDetails, error) {
	if _, err := s.store.GetFaultByID(ctx, id); err != nil {
		return nil, storeError("get fault", err)
	}

	patch, errs := BuildPatch(raw)
	if len(errs) > 0 {
		return nil, &ValidationError{Message: msgValidationFailed, Errors: errs}
	}
	if patch.IsEmpty() {
		return nil, &ValidationError{Message: msgNoFieldsToUpdate, Errors: []string{msgNoFieldsToUpdate}}
	}

	fault, err := s.store.UpdateFault(ctx, id, patch)
	if err != nil {
		return nil, storeError("update fault", err)
	}
	files, err := s.store.GetFaultFiles(ctx, id)
	if err != nil {
		return nil, storeError("get fault files", err)
	}

	s.logger.Info("report updated", zap.String("fault_id", id))
	return &ReportDetails{Fault: fault, Files: nonNilFiles(files)}, nil
}

// DeleteReport удаляет отчет, метаданные вложений и их содержимое.
// Если метаданные удалены, а часть файлов удалить не удалось, возвращается *CleanupError.
func (s *ReportService) DeleteReport(ctx context.Context, id string) error {
	files, err := s.store.GetFaultFiles(ctx, id)
	if err != nil {
		return storeError("get fault files", err)
	}

	existed, err := s.store.DeleteFault(ctx, id)
	if err != nil {
		return storeError("delete fault", err)
	}
	if !existed {
		return ErrNotFound
	}

	cleanup := &CleanupError{}
	for _, f := range files {
		if err := s.payloads.Delete(ctx, f.FileName); err != nil {
			payloadCleanupFailures.Inc()
			cleanup.FileNames = append(cleanup.FileNames, f.FileName)
			cleanup.Errs = append(cleanup.Errs, err)
		}
	}

	s.logger.Info("report deleted", zap.String("fault_id", id), zap.Int("files", len(files)))
	if len(cleanup.FileNames) > 0 {
		s.logger.Warn("report deleted with leftover files", zap.String("fault_id", id), zap.Strings("files", cleanup.FileNames))
		return cleanup
	}
	return nil
}

// Stats возвращает агрегированную статистику.
func (s *ReportService) Stats(ctx context.Context) (*models.FaultStats, error) {
	stats, err := s.store.GetFaultStats(ctx)
	if err != nil {
		return nil, storeError("fault stats", err)
	}
	return stats, nil
}

// OpenFile находит вложение по имени хранения и открывает его содержимое.
func (s *ReportService) OpenFile(ctx context.Context, fileName string) (*models.FaultFile, *Payload, error) {
	if !ValidStorageName(fileName) {
		return nil, nil, ErrInvalidFileName
	}
	file, err := s.store.GetFaultFileByName(ctx, fileName)
	if err != nil {
		return nil, nil, storeError("get file", err)
	}
	payload, err := s.payloads.Open(ctx, fileName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, &StoreUnavailableError{Op: "open file", Err: err}
	}
	return file, payload, nil
}

// OpenFaultFile открывает вложение, только если оно принадлежит указанному отчету.
func (s *ReportService) OpenFaultFile(ctx context.Context, faultID, fileName string) (*models.FaultFile, *Payload, error) {
	if !ValidStorageName(fileName) {
		return nil, nil, ErrInvalidFileName
	}
	file, err := s.store.GetFaultFileByName(ctx, fileName)
	if err != nil {
		return nil, nil, storeError("get file", err)
	}
	if file.FaultID != faultID {
		return nil, nil, ErrNotFound
	}
	return s.OpenFile(ctx, fileName)
}

// FileInfo возвращает метаданные вложения и проверяет наличие содержимого.
func (s *ReportService) FileInfo(ctx context.Context, fileName string) (*FileInfo, error) {
	if !ValidStorageName(fileName) {
		return nil, ErrInvalidFileName
	}
	file, err := s.store.GetFaultFileByName(ctx, fileName)
	if err != nil {
		return nil, storeError("get file", err)
	}

	info := &FileInfo{File: file, Size: file.Size}
	payload, err := s.payloads.Open(ctx, fileName)
	switch {
	case err == nil:
		info.Exists = true
		info.Size = payload.Size
		payload.Content.Close()
	case errors.Is(err, ErrNotFound):
	default:
		return nil, &StoreUnavailableError{Op: "open file", Err: err}
	}
	return info, nil
}

// DeleteFile удаляет одно вложение: сначала метаданные, затем содержимое.
func (s *ReportService) DeleteFile(ctx context.Context, fileName string) error {
	if !ValidStorageName(fileName) {
		return ErrInvalidFileName
	}
	file, err := s.store.GetFaultFileByName(ctx, fileName)
	if err != nil {
		return storeError("get file", err)
	}
	existed, err := s.store.DeleteFaultFile(ctx, file.ID)
	if err != nil {
		return storeError("delete file", err)
	}
	if !existed {
		return ErrNotFound
	}
	if err := s.payloads.Delete(ctx, fileName); err != nil {
		payloadCleanupFailures.Inc()
		return &CleanupError{FileNames: []string{fileName}, Errs: []error{err}}
	}
	s.logger.Info("file deleted", zap.String("fault_id", file.FaultID), zap.String("file_name", fileName))
	return nil
}

// ExportReports пишет в w книгу XLSX со всеми отчетами, подходящими под поиск и фильтры.
// Limit и Offset запроса не учитываются.
func (s *ReportService) ExportReports(ctx context.Context, q ListQuery, w io.Writer) error {
	var faults []*models.FaultReport
	if q.Search != "" || !q.Filters.IsZero() {
		found, err := s.store.SearchFaults(ctx, q.Search, q.Filters)
		if err != nil {
			return storeError("search faults", err)
		}
		faults = found
	} else {
		total, err := s.store.CountFaults(ctx)
		if err != nil {
			return storeError("count faults", err)
		}
		if total > 0 {
			faults, err = s.store.GetAllFaults(ctx, int(total), 0)
			if err != nil {
				return storeError("list faults", err)
			}
		}
	}

	items, err := s.withFileCounts(ctx, faults)
	if err != nil {
		return err
	}
	if err := export.WriteFaults(w, items, s.now()); err != nil {
		return fmt.Errorf("export faults: %w", err)
	}
	return nil
}

func (s *ReportService) withFileCounts(ctx context.Context, faults []*models.FaultReport) ([]models.FaultListItem, error) {
	items := make([]models.FaultListItem, 0, len(faults))
	if len(faults) == 0 {
		return items, nil
	}
	ids := make([]string, len(faults))
	for i, f := range faults {
		ids[i] = f.ID
	}
	counts, err := s.store.CountFaultFiles(ctx, ids)
	if err != nil {
		return nil, storeError("count fault files", err)
	}
	for _, f := range faults {
		items = append(items, models.FaultListItem{FaultReport: *f, FileCount: counts[f.ID]})
	}
	return items, nil
}

// escalate отправляет оповещение, если политика этого требует. Ошибка только логируется.
func (s *ReportService) escalate(ctx context.Context, fault *models.FaultReport) {
	if s.notifier == nil || s.policy == nil {
		return
	}
	reasons := s.policy.Reasons(fault)
	if len(reasons) == 0 {
		return
	}
	if err := s.notifier.NotifyFault(ctx, fault, reasons); err != nil {
		escalationsTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("failed to send escalation", zap.String("fault_id", fault.ID), zap.Error(err))
		return
	}
	escalationsTotal.WithLabelValues("sent").Inc()
	s.logger.Info("escalation sent", zap.String("fault_id", fault.ID), zap.Any("reasons", s.policy.Codes(fault)))
}

func paginate(faults []*models.FaultReport, limit, offset int) []*models.FaultReport {
	if offset >= len(faults) {
		return []*models.FaultReport{}
	}
	end := offset + limit
	if end > len(faults) {
		end = len(faults)
	}
	return faults[offset:end]
}

func nonNilFiles(files []*models.FaultFile) []*models.FaultFile {
	if files == nil {
		return []*models.FaultFile{}
	}
	return files
}
