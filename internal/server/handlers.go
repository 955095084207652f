package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"fault-dashboard/internal/export"
	"fault-dashboard/internal/models"
	"fault-dashboard/internal/service"
)

const (
	// multipartMemory - сколько данных формы держать в памяти, остальное пишется во временные файлы.
	multipartMemory = 32 << 20
	// bodyOverhead - запас на текстовые поля сверх суммарного размера вложений.
	bodyOverhead = 1 << 20

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type handler struct {
	svc     *service.ReportService
	logger  *zap.Logger
	dev     bool
	started time.Time
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Fault dashboard API is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.started).Seconds(),
	})
}

func (h *handler) apiNotFound(w http.ResponseWriter, r *http.Request) {
	writeFailure(w, http.StatusNotFound, fmt.Sprintf("API endpoint not found: %s %s", r.Method, r.URL.Path), nil)
}

// --- Отчеты ---

func (h *handler) createFault(w http.ResponseWriter, r *http.Request) {
	limits := h.svc.Limits()
	r.Body = http.MaxBytesReader(w, r.Body, int64(limits.MaxFiles)*limits.MaxFileSize+bodyOverhead)

	var (
		raw     map[string]any
		uploads []service.Upload
	)
	switch mediaType(r) {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			h.writeBodyError(w, err, msgMalformedRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()
		raw = formValues(r.MultipartForm.Value)
		uploads = formUploads(r.MultipartForm)
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			h.writeBodyError(w, err, msgMalformedRequest)
			return
		}
		raw = formValues(r.PostForm)
	default:
		if err := decodeJSON(r, &raw); err != nil {
			h.writeBodyError(w, err, msgInvalidJSON)
			return
		}
	}

	details, err := h.svc.SubmitReport(r.Context(), raw, uploads)
	if err != nil {
		h.writeError(w, r, err, msgFaultNotFound)
		return
	}
	writeData(w, http.StatusCreated, "Fault report created successfully", details)
}

func (h *handler) listFaults(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListReports(r.Context(), parseListQuery(r))
	if err != nil {
		h.writeError(w, r, err, msgFaultNotFound)
		return
	}
	writeData(w, http.StatusOK, "", result)
}

func (h *handler) exportFaults(w http.ResponseWriter, r *http.Request) {
	// Книга собирается в буфер, чтобы при ошибке можно было ответить JSON.
	var buf bytes.Buffer
	if err := h.svc.ExportReports(r.Context(), parseListQuery(r), &buf); err != nil {
		h.writeError(w, r, err, msgFaultNotFound)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": export.Filename(time.Now()),
	}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

func (h *handler) faultStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err, msgFaultNotFound)
		return
	}
	writeData(w, http.StatusOK, "", stats)
}

func (h *handler) getFault(w http.ResponseWriter, r *http.Request) {
	details, err := h.svc.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err, msgFaultNotFound)
		return
	}
	writeData(w, http.StatusOK, "", details)
}

func (h *handler) updateFault(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, bodyOverhead)

	var raw map[string]any
	if err := decodeJSON(r, &raw); err != nil {
		h.writeBodyError(w, err, msgInvalidJSON)
		return
	}

	details, err := h.svc.UpdateReport(r.Context(), chi.URLParam(r, "id"), raw)
	if err != nil {
		h.writeError(w, r, err, msgFaultNotFound)
		return
	}
	writeData(w, http.StatusOK, "Fault report updated successfully", details)
}

func (h *handler) deleteFault(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteReport(r.Context(), chi.URLParam(r, "id"))
	h.writeDeleted(w, r, err, "Fault report deleted successfully", msgFaultNotFound)
}

// --- Вложения ---

func (h *handler) serveFile(w http.ResponseWriter, r *http.Request) {
	file, payload, err := h.svc.OpenFile(r.Context(), chi.URLParam(r, "filename"))
	if err != nil {
		h.writeError(w, r, err, msgFileNotFound)
		return
	}
	servePayload(w, r, file, payload)
}

func (h *handler) serveFaultFile(w http.ResponseWriter, r *http.Request) {
	file, payload, err := h.svc.OpenFaultFile(r.Context(), chi.URLParam(r, "faultId"), chi.URLParam(r, "filename"))
	if err != nil {
		h.writeError(w, r, err, "File not found for this fault report")
		return
	}
	servePayload(w, r, file, payload)
}

func (h *handler) fileInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.FileInfo(r.Context(), chi.URLParam(r, "filename"))
	if err != nil {
		h.writeError(w, r, err, msgFileNotFound)
		return
	}
	writeData(w, http.StatusOK, "", info)
}

func (h *handler) deleteFile(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteFile(r.Context(), chi.URLParam(r, "filename"))
	h.writeDeleted(w, r, err, "File deleted successfully", msgFileNotFound)
}

// servePayload отдает содержимое вложения. http.ServeContent обрабатывает
// Range (206), неудовлетворимый диапазон (416) и условные запросы.
func servePayload(w http.ResponseWriter, r *http.Request, file *models.FaultFile, payload *service.Payload) {
	defer payload.Content.Close()

	header := w.Header()
	if file.MimeType != "" {
		header.Set("Content-Type", file.MimeType)
	}
	header.Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": file.OriginalName}))
	header.Set("Cache-Control", "public, max-age=86400")
	header.Set("Accept-Ranges", "bytes")

	http.ServeContent(w, r, file.OriginalName, payload.ModTime, payload.Content)
}

// --- Разбор запросов ---

func mediaType(r *http.Request) string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

func decodeJSON(r *http.Request, dst *map[string]any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		*dst = map[string]any{}
		return nil
	}
	return err
}

// writeBodyError отвечает на ошибку чтения тела запроса.
func (h *handler) writeBodyError(w http.ResponseWriter, err error, message string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeFailure(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge, nil)
		return
	}
	h.logger.Debug("failed to read request body", zap.Error(err))
	writeFailure(w, http.StatusBadRequest, message, nil)
}

// formValues превращает поля формы в сырые данные отчета.
// Повторяющееся поле передается как []string.
func formValues(form map[string][]string) map[string]any {
	raw := make(map[string]any, len(form))
	for key, values := range form {
		switch len(values) {
		case 0:
		case 1:
			raw[key] = values[0]
		default:
			raw[key] = values
		}
	}
	return raw
}

// formUploads собирает файлы из всех полей формы ("files", "files[]" и любых других)
// в порядке имен полей.
func formUploads(form *multipart.Form) []service.Upload {
	keys := make([]string, 0, len(form.File))
	for key := range form.File {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var uploads []service.Upload
	for _, key := range keys {
		for _, fh := range form.File[key] {
			uploads = append(uploads, service.Upload{
				OriginalName: fh.Filename,
				MimeType:     fh.Header.Get("Content-Type"),
				Size:         fh.Size,
				Open: func() (io.ReadCloser, error) {
					return fh.Open()
				},
			})
		}
	}
	return uploads
}

// parseListQuery читает параметры списка. Нулевой или неразобранный limit
// заменяется значением по умолчанию, выход за границы проверяет сервис.
func parseListQuery(r *http.Request) service.ListQuery {
	q := r.URL.Query()

	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit == 0 {
		limit = service.DefaultListLimit
	}
	offset, err := strconv.Atoi(q.Get("offset"))
	if err != nil {
		offset = 0
	}

	return service.ListQuery{
		Limit:  limit,
		Offset: offset,
		Search: strings.TrimSpace(q.Get("search")),
		Filters: models.FaultFilters{
			Severity: models.Severity(strings.TrimSpace(q.Get("severity"))),
			AssetID:  strings.TrimSpace(q.Get("assetId")),
			Category: strings.TrimSpace(q.Get("category")),
			DateFrom: strings.TrimSpace(q.Get("dateFrom")),
			DateTo:   strings.TrimSpace(q.Get("dateTo")),
		},
	}
}
