package service_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fault-dashboard/internal/models"
	"fault-dashboard/internal/service"
)

func validRaw() map[string]any {
	return map[string]any{
		"title":       "Door fault",
		"description": "Door 3 fails to close",
		"reporter":    "Alice",
		"severity":    "major",
		"assetId":     "Unit 407",
	}
}

func TestNormalizeBool(t *testing.T) {
	testCases := []struct {
		in   any
		want bool
	}{
		{true, true},
		{false, false},
		{"true", true},
		{"TRUE", true},
		{" True ", false},
		{"1", true},
		{" 1", false},
		{"0", false},
		{"yes", false},
		{"", false},
		{1, false},
		{nil, false},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%v", tc.in), func(t *testing.T) {
			assert.Equal(t, tc.want, service.NormalizeBool(tc.in))
		})
	}
}

func TestNormalizeBooleans(t *testing.T) {
	raw := map[string]any{"passengerSafety": "true", "staffSafety": "no", "title": "x"}

	out := service.NormalizeBooleans(raw)

	assert.Equal(t, true, out["passengerSafety"])
	assert.Equal(t, false, out["staffSafety"])
	assert.Equal(t, "x", out["title"])
	_, added := out["diagnosticSteps"]
	assert.False(t, added)
	// Исходная карта не меняется.
	assert.Equal(t, "true", raw["passengerSafety"])
}

func TestValidateSubmission(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(raw map[string]any)
		want   []string
	}{
		{"valid", func(map[string]any) {}, nil},
		{"whitespace title", func(r map[string]any) { r["title"] = "   " }, []string{"Title is required"}},
		{"missing description", func(r map[string]any) { delete(r, "description") }, []string{"Description is required"}},
		{"unknown severity", func(r map[string]any) { r["severity"] = "Major" }, []string{"Severity must be one of: minor, major, critical"}},
		{"missing severity", func(r map[string]any) { delete(r, "severity") }, []string{"Severity is required"}},
		{"valid datetime-local", func(r map[string]any) { r["date"] = "2025-03-14T08:30" }, nil},
		{"valid date only", func(r map[string]any) { r["date"] = "2025-03-14" }, nil},
		{"valid RFC3339", func(r map[string]any) { r["date"] = "2025-03-14T08:30:00.123Z" }, nil},
		{"invalid date", func(r map[string]any) { r["date"] = "14/03/2025" }, []string{"Date must be a valid ISO-8601 timestamp"}},
		{
			"everything missing",
			func(r map[string]any) {
				for k := range r {
					delete(r, k)
				}
			},
			[]string{"Title is required", "Description is required", "Reporter is required", "Severity is required", "Asset ID is required"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw := validRaw()
			tc.mutate(raw)
			assert.Equal(t, tc.want, service.ValidateSubmission(raw))
		})
	}
}

func TestBuildFault(t *testing.T) {
	now := time.Date(2025, 3, 14, 11, 30, 0, 0, time.FixedZone("MSK", 3*3600))
	raw := validRaw()
	raw["title"] = "  Door fault  "
	raw["location"] = " Depot North "
	raw["passengerSafety"] = "1"
	raw["escalationNeeded"] = true

	fault := service.BuildFault(raw, now)

	assert.Equal(t, "Door fault", fault.Title)
	assert.Equal(t, "Depot North", fault.Location)
	assert.Equal(t, models.SeverityMajor, fault.Severity)
	assert.Equal(t, "2025-03-14T08:30:00Z", fault.Date)
	assert.True(t, fault.PassengerSafety)
	assert.True(t, fault.EscalationNeeded)
	assert.False(t, fault.StaffSafety)
	assert.Empty(t, fault.ID)

	raw["date"] = "2025-01-02"
	assert.Equal(t, "2025-01-02", service.BuildFault(raw, now).Date)
}

func TestBuildPatch(t *testing.T) {
	patch, errs := service.BuildPatch(map[string]any{
		"severity":           "critical",
		"workaround":         " reroute ",
		"staffSafety":        "true",
		"id":                 "other",
		"createdAt":          "2020-01-01",
		"unknownField":       1,
		"supervisorNotified": false,
	})
	require.Empty(t, errs)

	require.NotNil(t, patch.Severity)
	assert.Equal(t, models.SeverityCritical, *patch.Severity)
	require.NotNil(t, patch.Workaround)
	assert.Equal(t, "reroute", *patch.Workaround)
	require.NotNil(t, patch.StaffSafety)
	assert.True(t, *patch.StaffSafety)
	require.NotNil(t, patch.SupervisorNotified)
	assert.False(t, *patch.SupervisorNotified)
	assert.Nil(t, patch.Title)
	assert.Nil(t, patch.PassengerSafety)
	assert.False(t, patch.IsEmpty())
}

func TestBuildPatch_Errors(t *testing.T) {
	_, errs := service.BuildPatch(map[string]any{"title": "", "description": " ", "severity": "urgent"})
	assert.Equal(t, []string{
		"Title is required",
		"Description is required",
		"Severity must be one of: minor, major, critical",
	}, errs)

	patch, errs := service.BuildPatch(map[string]any{"reporter": "Mallory", "assetId": "X"})
	assert.Empty(t, errs)
	assert.True(t, patch.IsEmpty())
}

func upload(name, mime string, size int64) service.Upload {
	return service.Upload{OriginalName: name, MimeType: mime, Size: size}
}

func TestValidateUploads(t *testing.T) {
	limits := service.DefaultUploadLimits()

	testCases := []struct {
		name    string
		uploads []service.Upload
		want    []string
	}{
		{"none", nil, nil},
		{"allowed", []service.Upload{upload("a.png", "image/png", 10), upload("b.DOCX", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", 10)}, nil},
		{"mime with params", []service.Upload{upload("a.txt", "text/plain; charset=utf-8", 10)}, nil},
		{"bad mime", []service.Upload{upload("a.gif", "image/gif", 10)}, []string{"File 1 (a.gif) has unsupported type: image/gif"}},
		{"mime ok but extension not", []service.Upload{upload("a.exe", "image/png", 10)}, []string{"File 1 (a.exe) has unsupported type: image/png"}},
		{"exactly max size", []service.Upload{upload("a.pdf", "application/pdf", 10<<20)}, nil},
		{"too big", []service.Upload{upload("a.pdf", "application/pdf", 10<<20+1)}, []string{"File 1 (a.pdf) exceeds maximum size of 10MB"}},
		{
			"several problems",
			[]service.Upload{upload("ok.png", "image/png", 1), upload("x.gif", "image/gif", 11<<20)},
			[]string{"File 2 (x.gif) has unsupported type: image/gif", "File 2 (x.gif) exceeds maximum size of 10MB"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, service.ValidateUploads(tc.uploads, limits))
		})
	}
}

func TestValidateUploads_TooMany(t *testing.T) {
	uploads := make([]service.Upload, 6)
	for i := range uploads {
		uploads[i] = upload(fmt.Sprintf("%d.exe", i), "application/x-msdownload", 1)
	}

	errs := service.ValidateUploads(uploads, service.DefaultUploadLimits())

	assert.Equal(t, []string{"Too many files. Maximum 5 files allowed per request"}, errs)
}

func TestValidStorageName(t *testing.T) {
	assert.True(t, service.ValidStorageName("1710403200000_0b6c0b5e-0a4e-4a53-9d1a-5a8e5b1f6e00.png"))
	for _, name := range []string{"", "..", "../x", "a/b", `a\b`, "x..y"} {
		assert.False(t, service.ValidStorageName(name), name)
	}
}
