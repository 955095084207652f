package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fault-dashboard/internal/models"
	"fault-dashboard/internal/notify/mock"
	"fault-dashboard/internal/service"
	"fault-dashboard/internal/storage/jsonfile"
	"fault-dashboard/internal/storage/payload"
)

// --- Test Setup ---

type serverTestKit struct {
	store      *jsonfile.JSONFaultRepository
	uploadsDir string
	notifier   *mock.NotifierMock
	service    *service.ReportService
	router     http.Handler
}

func setupServerTest(t *testing.T) *serverTestKit {
	t.Helper()
	store := jsonfile.NewInMemory()
	uploadsDir := t.TempDir()
	payloads, err := payload.NewLocalStore(uploadsDir)
	require.NoError(t, err)
	notifier := mock.NewNotifierMock()

	svc := service.NewReportService(store, payloads, notifier, service.NewEscalationPolicy(), service.DefaultUploadLimits(), nil)

	return &serverTestKit{
		store:      store,
		uploadsDir: uploadsDir,
		notifier:   notifier,
		service:    svc,
		router:     newRouter(svc, Options{}, nil),
	}
}

type testFile struct {
	field, name, mimeType string
	content               []byte
}

func pngFile(name string) testFile {
	return testFile{field: "files", name: name, mimeType: "image/png", content: []byte("\x89PNG\r\n\x1a\n" + name)}
}

// multipartBody собирает форму с полями и файлами. CreateFormFile не подходит,
// так как всегда ставит application/octet-stream.
func multipartBody(t *testing.T, fields map[string]string, files []testFile) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name))
		h.Set("Content-Type", f.mimeType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func validFields() map[string]string {
	return map[string]string{
		"title":       "Door fault",
		"description": "Door 3 fails to close",
		"reporter":    "Alice",
		"severity":    "major",
		"assetId":     "Unit 407",
	}
}

func (kit *serverTestKit) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	kit.router.ServeHTTP(rr, req)
	return rr
}

func (kit *serverTestKit) postForm(t *testing.T, fields map[string]string, files []testFile) *httptest.ResponseRecorder {
	body, contentType := multipartBody(t, fields, files)
	req := httptest.NewRequest(http.MethodPost, "/api/faults", body)
	req.Header.Set("Content-Type", contentType)
	return kit.do(req)
}

func (kit *serverTestKit) postJSON(t *testing.T, payload any) *httptest.ResponseRecorder {
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/faults", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return kit.do(req)
}

func uploadedFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

type apiResponse struct {
	Success  bool            `json:"success"`
	Message  string          `json:"message"`
	Data     json.RawMessage `json:"data"`
	Errors   []string        `json:"errors"`
	Warnings []string        `json:"warnings"`
	Error    string          `json:"error"`
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, data any) apiResponse {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
	return resp
}

// --- Handler Tests ---

func TestHealth(t *testing.T) {
	kit := setupServerTest(t)

	rr := kit.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	resp := decode(t, rr, nil)
	assert.True(t, resp.Success)
}

func TestCreateFault_MultipartWithImages(t *testing.T) {
	kit := setupServerTest(t)

	rr := kit.postForm(t, validFields(), []testFile{pngFile("a.png"), pngFile("b.png")})

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var details service.ReportDetails
	resp := decode(t, rr, &details)
	assert.True(t, resp.Success)
	assert.Equal(t, "Fault report created successfully", resp.Message)

	assert.NotEmpty(t, details.Fault.ID)
	assert.Equal(t, models.SeverityMajor, details.Fault.Severity)
	assert.Equal(t, "Unit 407", details.Fault.AssetID)
	require.Len(t, details.Files, 2)
	assert.Equal(t, "a.png", details.Files[0].OriginalName)
	assert.Equal(t, "b.png", details.Files[1].OriginalName)
	assert.Equal(t, "image/png", details.Files[0].MimeType)

	stored := uploadedFiles(t, kit.uploadsDir)
	assert.ElementsMatch(t, []string{details.Files[0].FileName, details.Files[1].FileName}, stored)

	// Отчет виден через GET.
	rr = kit.do(httptest.NewRequest(http.MethodGet, "/api/faults/"+details.Fault.ID, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var fetched service.ReportDetails
	decode(t, rr, &fetched)
	assert.Equal(t, details.Fault.ID, fetched.Fault.ID)
	assert.Len(t, fetched.Files, 2)

	// major без флагов безопасности не эскалируется.
	assert.Empty(t, kit.notifier.Sent())
}

func TestCreateFault_FilesArrayFieldAndBooleans(t *testing.T) {
	kit := setupServerTest(t)
	fields := validFields()
	fields["passengerSafety"] = "true"
	fields["staffSafety"] = "0"
	f := pngFile("c.png")
	f.field = "files[]"

	rr := kit.postForm(t, fields, []testFile{f})

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var details service.ReportDetails
	decode(t, rr, &details)
	assert.True(t, details.Fault.PassengerSafety)
	assert.False(t, details.Fault.StaffSafety)
	assert.Len(t, details.Files, 1)

	sent := kit.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, details.Fault.ID, sent[0].FaultID)
}

func TestCreateFault_MissingDescription(t *testing.T) {
	kit := setupServerTest(t)
	fields := validFields()
	delete(fields, "description")

	rr := kit.postJSON(t, fields)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decode(t, rr, nil)
	assert.False(t, resp.Success)
	assert.Equal(t, "Validation failed", resp.Message)
	assert.Contains(t, resp.Errors, "Description is required")

	total, err := kit.store.CountFaults(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCreateFault_AllViolationsReported(t *testing.T) {
	kit := setupServerTest(t)

	rr := kit.postJSON(t, map[string]any{"severity": "urgent", "date": "yesterday"})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decode(t, rr, nil)
	assert.Equal(t, []string{
		"Title is required",
		"Description is required",
		"Reporter is required",
		"Severity must be one of: minor, major, critical",
		"Asset ID is required",
		"Date must be a valid ISO-8601 timestamp",
	}, resp.Errors)
}

func TestCreateFault_InvalidJSON(t *testing.T) {
	kit := setupServerTest(t)
	req := httptest.NewRequest(http.MethodPost, "/api/faults", strings.NewReader(`{"title":`))
	req.Header.Set("Content-Type", "application/json")

	rr := kit.do(req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid JSON in request body", decode(t, rr, nil).Message)
}

func TestCreateFault_TooManyFiles(t *testing.T) {
	kit := setupServerTest(t)
	files := make([]testFile, 0, 6)
	for i := 0; i < 6; i++ {
		files = append(files, pngFile(fmt.Sprintf("f%d.png", i)))
	}

	rr := kit.postForm(t, validFields(), files)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decode(t, rr, nil)
	assert.Equal(t, []string{"Too many files. Maximum 5 files allowed per request"}, resp.Errors)
	assert.Empty(t, uploadedFiles(t, kit.uploadsDir))

	total, err := kit.store.CountFaults(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCreateFault_UnsupportedType(t *testing.T) {
	kit := setupServerTest(t)
	bad := testFile{field: "files", name: "setup.exe", mimeType: "application/x-msdownload", content: []byte("MZ")}

	rr := kit.postForm(t, validFields(), []testFile{pngFile("ok.png"), bad})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decode(t, rr, nil)
	assert.Equal(t, "File validation failed", resp.Message)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "File 2 (setup.exe) has unsupported type: application/x-msdownload", resp.Errors[0])
	assert.Empty(t, uploadedFiles(t, kit.uploadsDir))
}

func TestUpdateFault_SeverityOnly(t *testing.T) {
	kit := setupServerTest(t)
	rr := kit.postJSON(t, validFields())
	require.Equal(t, http.StatusCreated, rr.Code)
	var created service.ReportDetails
	decode(t, rr, &created)

	req := httptest.NewRequest(http.MethodPut, "/api/faults/"+created.Fault.ID, strings.NewReader(`{"severity":"critical","id":"hijack"}`))
	req.Header.Set("Content-Type", "application/json")
	rr = kit.do(req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var updated service.ReportDetails
	resp := decode(t, rr, &updated)
	assert.Equal(t, "Fault report updated successfully", resp.Message)
	assert.Equal(t, created.Fault.ID, updated.Fault.ID)
	assert.Equal(t, models.SeverityCritical, updated.Fault.Severity)
	assert.Equal(t, created.Fault.Title, updated.Fault.Title)
	assert.True(t, updated.Fault.UpdatedAt.After(created.Fault.UpdatedAt))
	assert.True(t, updated.Fault.CreatedAt.Equal(created.Fault.CreatedAt))
}

func TestUpdateFault_Errors(t *testing.T) {
	kit := setupServerTest(t)
	rr := kit.postJSON(t, validFields())
	require.Equal(t, http.StatusCreated, rr.Code)
	var created service.ReportDetails
	decode(t, rr, &created)

	testCases := []struct {
		name       string
		id         string
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"unknown id", "missing", `{"severity":"minor"}`, http.StatusNotFound, "Fault report not found"},
		{"no allowed fields", created.Fault.ID, `{"reporter":"Mallory"}`, http.StatusBadRequest, "No valid fields to update"},
		{"bad severity", created.Fault.ID, `{"severity":"urgent"}`, http.StatusBadRequest, "Validation failed"},
		{"empty title", created.Fault.ID, `{"title":"  "}`, http.StatusBadRequest, "Validation failed"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/faults/"+tc.id, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rr := kit.do(req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.Equal(t, tc.wantMsg, decode(t, rr, nil).Message)
		})
	}
}

func TestListFaults(t *testing.T) {
	kit := setupServerTest(t)
	for i := 0; i < 3; i++ {
		fields := validFields()
		fields["title"] = fmt.Sprintf("Fault %d", i)
		if i == 2 {
			fields["severity"] = "critical"
		}
		rr := kit.postJSON(t, fields)
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	testCases := []struct {
		name      string
		query     string
		wantCount int
		wantTotal int64
		wantLimit int
	}{
		{"defaults", "", 3, 3, 50},
		{"unparsable limit", "?limit=abc", 3, 3, 50},
		{"zero limit", "?limit=0", 3, 3, 50},
		{"page", "?limit=2&offset=2", 1, 3, 2},
		{"past the end", "?offset=10", 0, 3, 50},
		{"severity filter", "?severity=critical", 1, 1, 50},
		{"search", "?search=FAULT%201", 1, 1, 50},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := kit.do(httptest.NewRequest(http.MethodGet, "/api/faults"+tc.query, nil))
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

			var result service.ListResult
			decode(t, rr, &result)
			assert.Len(t, result.Faults, tc.wantCount)
			assert.Equal(t, tc.wantTotal, result.Pagination.Total)
			assert.Equal(t, tc.wantLimit, result.Pagination.Limit)
		})
	}
}

func TestListFaults_NewestFirstWithFileCount(t *testing.T) {
	kit := setupServerTest(t)
	require.Equal(t, http.StatusCreated, kit.postJSON(t, validFields()).Code)
	require.Equal(t, http.StatusCreated, kit.postForm(t, validFields(), []testFile{pngFile("a.png")}).Code)

	rr := kit.do(httptest.NewRequest(http.MethodGet, "/api/faults", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var result service.ListResult
	decode(t, rr, &result)
	require.Len(t, result.Faults, 2)
	assert.Equal(t, 1, result.Faults[0].FileCount)
	assert.Equal(t, 0, result.Faults[1].FileCount)
	assert.True(t, result.Faults[0].CreatedAt.After(result.Faults[1].CreatedAt))
}

func TestListFaults_BoundsRejected(t *testing.T) {
	kit := setupServerTest(t)

	testCases := []struct {
		query   string
		wantMsg string
	}{
		{"?limit=101", "Limit must be between 1 and 100"},
		{"?limit=-1", "Limit must be between 1 and 100"},
		{"?offset=-1", "Offset must be non-negative"},
	}

	for _, tc := range testCases {
		t.Run(tc.query, func(t *testing.T) {
			rr := kit.do(httptest.NewRequest(http.MethodGet, "/api/faults"+tc.query, nil))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			resp := decode(t, rr, nil)
			assert.False(t, resp.Success)
			assert.Equal(t, tc.wantMsg, resp.Message)
		})
	}
}

func TestDeleteFault_RemovesFiles(t *testing.T) {
	kit := setupServerTest(t)
	rr := kit.postForm(t, validFields(), []testFile{pngFile("a.png"), pngFile("b.png")})
	require.Equal(t, http.StatusCreated, rr.Code)
	var created service.ReportDetails
	decode(t, rr, &created)
	require.Len(t, uploadedFiles(t, kit.uploadsDir), 2)

	rr = kit.do(httptest.NewRequest(http.MethodDelete, "/api/faults/"+created.Fault.ID, nil))

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode(t, rr, nil)
	assert.Equal(t, "Fault report deleted successfully", resp.Message)
	assert.Empty(t, resp.Warnings)
	assert.Empty(t, uploadedFiles(t, kit.uploadsDir))

	files, err := kit.store.GetFaultFiles(context.Background(), created.Fault.ID)
	require.NoError(t, err)
	assert.Empty(t, files)

	rr = kit.do(httptest.NewRequest(http.MethodGet, "/api/faults/"+created.Fault.ID, nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = kit.do(httptest.NewRequest(http.MethodDelete, "/api/faults/"+created.Fault.ID, nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeleteFault_LeftoverFileReportedAsWarning(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	kit := setupServerTest(t)
	rr := kit.postForm(t, validFields(), []testFile{pngFile("a.png")})
	require.Equal(t, http.StatusCreated, rr.Code)
	var created service.ReportDetails
	decode(t, rr, &created)

	require.NoError(t, os.Chmod(kit.uploadsDir, 0o500))
	t.Cleanup(func() { os.Chmod(kit.uploadsDir, 0o700) })

	rr = kit.do(httptest.NewRequest(http.MethodDelete, "/api/faults/"+created.Fault.ID, nil))

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode(t, rr, nil)
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"Stored file " + created.Files[0].FileName + " could not be removed"}, resp.Warnings)
}

func TestServeFile(t *testing.T) {
	kit := setupServerTest(t)
	content := []byte("0123456789abcdef")
	f := testFile{field: "files", name: "notes.txt", mimeType: "text/plain", content: content}
	rr := kit.postForm(t, validFields(), []testFile{f})
	require.Equal(t, http.StatusCreated, rr.Code)
	var created service.ReportDetails
	decode(t, rr, &created)
	name := created.Files[0].FileName

	t.Run("full", func(t *testing.T) {
		rr := kit.do(httptest.NewRequest(http.MethodGet, "/uploads/"+name, nil))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, content, rr.Body.Bytes())
		assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
		assert.Equal(t, `inline; filename=notes.txt`, rr.Header().Get("Content-Disposition"))
		assert.Equal(t, "bytes", rr.Header().Get("Accept-Ranges"))
		assert.Equal(t, "16", rr.Header().Get("Content-Length"))
		assert.NotEmpty(t, rr.Header().Get("Cache-Control"))
		assert.NotEmpty(t, rr.Header().Get("Last-Modified"))
	})

	t.Run("range", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/uploads/"+name, nil)
		req.Header.Set("Range", "bytes=2-5")
		rr := kit.do(req)
		require.Equal(t, http.StatusPartialContent, rr.Code)
		assert.Equal(t, "2345", rr.Body.String())
		assert.Equal(t, "bytes 2-5/16", rr.Header().Get("Content-Range"))
	})

	t.Run("unsatisfiable range", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/uploads/"+name, nil)
		req.Header.Set("Range", "bytes=100-200")
		rr := kit.do(req)
		assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rr.Code)
	})

	t.Run("by fault", func(t *testing.T) {
		rr := kit.do(httptest.NewRequest(http.MethodGet, "/uploads/fault/"+created.Fault.ID+"/"+name, nil))
		assert.Equal(t, http.StatusOK, rr.Code)

		rr = kit.do(httptest.NewRequest(http.MethodGet, "/uploads/fault/other-fault/"+name, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("unknown", func(t *testing.T) {
		rr := kit.do(httptest.NewRequest(http.MethodGet, "/uploads/1710403200000_missing.png", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "File not found", decode(t, rr, nil).Message)
	})
}

func TestUploads_RejectTraversal(t *testing.T) {
	kit := setupServerTest(t)

	for _, target := range []string{
		"/uploads/..%2Fconfig.json",
		"/uploads/info/..%2F..%2Fetc%2Fpasswd",
		"/uploads/fault/abc/..%5Csecret",
	} {
		rr := kit.do(httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}

	rr := kit.do(httptest.NewRequest(http.MethodDelete, "/uploads/..%2Fconfig.json", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestFileInfoAndDelete(t *testing.T) {
	kit := setupServerTest(t)
	rr := kit.postForm(t, validFields(), []testFile{pngFile("a.png"), pngFile("b.png")})
	require.Equal(t, http.StatusCreated, rr.Code)
	var created service.ReportDetails
	decode(t, rr, &created)
	name := created.Files[0].FileName

	rr = kit.do(httptest.NewRequest(http.MethodGet, "/uploads/info/"+name, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var info service.FileInfo
	decode(t, rr, &info)
	assert.True(t, info.Exists)
	assert.Equal(t, created.Files[0].Size, info.Size)
	assert.Equal(t, created.Fault.ID, info.File.FaultID)

	rr = kit.do(httptest.NewRequest(http.MethodDelete, "/uploads/"+name, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "File deleted successfully", decode(t, rr, nil).Message)
	assert.Equal(t, []string{created.Files[1].FileName}, uploadedFiles(t, kit.uploadsDir))

	rr = kit.do(httptest.NewRequest(http.MethodGet, "/uploads/info/"+name, nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = kit.do(httptest.NewRequest(http.MethodGet, "/api/faults/"+created.Fault.ID, nil))
	var details service.ReportDetails
	decode(t, rr, &details)
	assert.Len(t, details.Files, 1)
}

func TestFaultStats(t *testing.T) {
	kit := setupServerTest(t)
	for _, sev := range []string{"minor", "critical", "critical"} {
		fields := validFields()
		fields["severity"] = sev
		require.Equal(t, http.StatusCreated, kit.postJSON(t, fields).Code)
	}

	rr := kit.do(httptest.NewRequest(http.MethodGet, "/api/faults/stats/summary", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var stats models.FaultStats
	decode(t, rr, &stats)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, models.SeverityBreakdown{Minor: 1, Critical: 2}, stats.BySeverity)
	assert.Equal(t, int64(3), stats.RecentCount)
	assert.Len(t, kit.notifier.Sent(), 2)
}

func TestExportFaults(t *testing.T) {
	kit := setupServerTest(t)
	require.Equal(t, http.StatusCreated, kit.postJSON(t, validFields()).Code)

	rr := kit.do(httptest.NewRequest(http.MethodGet, "/api/faults/export?severity=major", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, xlsxContentType, rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rr.Header().Get("Content-Disposition"), ".xlsx")
	// XLSX - это zip-архив.
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")))
}

func TestAPINotFound(t *testing.T) {
	kit := setupServerTest(t)

	rr := kit.do(httptest.NewRequest(http.MethodGet, "/api/unknown", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	resp := decode(t, rr, nil)
	assert.False(t, resp.Success)
	assert.Equal(t, "API endpoint not found: GET /api/unknown", resp.Message)
}

// brokenStore имитирует недоступное хранилище.
type brokenStore struct {
	service.FaultStore
}

func (brokenStore) GetFaultStats(context.Context) (*models.FaultStats, error) {
	return nil, io.ErrUnexpectedEOF
}

func TestInternalError_DetailOnlyInDevelopment(t *testing.T) {
	payloads, err := payload.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	svc := service.NewReportService(brokenStore{FaultStore: jsonfile.NewInMemory()}, payloads, nil, nil, service.DefaultUploadLimits(), nil)

	for _, dev := range []bool{false, true} {
		t.Run(fmt.Sprintf("development=%v", dev), func(t *testing.T) {
			router := newRouter(svc, Options{Development: dev}, nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/faults/stats/summary", nil))

			assert.Equal(t, http.StatusInternalServerError, rr.Code)
			resp := decode(t, rr, nil)
			assert.Equal(t, "Internal server error", resp.Message)
			if dev {
				assert.Contains(t, resp.Error, "unexpected EOF")
			} else {
				assert.Empty(t, resp.Error)
			}
		})
	}
}

func TestCreateFault_BodyTooLarge(t *testing.T) {
	store := jsonfile.NewInMemory()
	payloads, err := payload.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	svc := service.NewReportService(store, payloads, nil, nil, service.UploadLimits{MaxFileSize: 1024, MaxFiles: 1}, nil)
	router := newRouter(svc, Options{}, nil)

	big := testFile{field: "files", name: "big.txt", mimeType: "text/plain", content: bytes.Repeat([]byte("x"), 2<<20)}
	body, contentType := multipartBody(t, validFields(), []testFile{big})
	req := httptest.NewRequest(http.MethodPost, "/api/faults", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, "Request entity too large", decode(t, rr, nil).Message)
}

func TestRouteMetricsUsePattern(t *testing.T) {
	kit := setupServerTest(t)
	kit.do(httptest.NewRequest(http.MethodGet, "/api/faults/some-id", nil))

	rr := kit.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `fd_http_requests_total{method="GET",path="/api/faults/{id}",status="404"}`)
	assert.NotContains(t, body, "some-id")
}
