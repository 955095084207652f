// Package storagetest содержит общий набор проверок для реализаций service.FaultStore.
// Каждое хранилище прогоняет его в своих тестах, чтобы поведение движков совпадало.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fault-dashboard/internal/models"
	"fault-dashboard/internal/service"
)

// Clock - управляемые часы для тестов.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock создает часы, показывающие start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now возвращает текущее показание.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set переводит часы.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Factory создает пустое хранилище, использующее now как источник времени.
type Factory func(t *testing.T, now func() time.Time) service.FaultStore

// Run прогоняет все проверки для хранилища.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, newStore Factory)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"GetMissing", testGetMissing},
		{"GetAllFaultsOrderAndPagination", testGetAllFaults},
		{"UpdateFault", testUpdateFault},
		{"UpdateFaultFrozenClock", testUpdateFaultFrozenClock},
		{"UpdateMissing", testUpdateMissing},
		{"DeleteFaultCascades", testDeleteFaultCascades},
		{"FileMetadata", testFileMetadata},
		{"FileForUnknownFault", testFileForUnknownFault},
		{"CountFaultFiles", testCountFaultFiles},
		{"SearchTermAndFilters", testSearch},
		{"SearchFilterOrderCommutes", testSearchCommutative},
		{"SearchLiteralWildcards", testSearchLiteralWildcards},
		{"SearchCap", testSearchCap},
		{"Stats", testStats},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore)
		})
	}
}

// NewFault возвращает корректный отчет для тестов.
func NewFault(title string, severity models.Severity, assetID string) *models.FaultReport {
	return &models.FaultReport{
		Title:       title,
		Description: "Description of " + title,
		Reporter:    "J. Smith",
		Severity:    severity,
		AssetID:     assetID,
		Date:        "2025-03-14T08:00:00Z",
	}
}

func mustCreate(t *testing.T, store service.FaultStore, f *models.FaultReport) *models.FaultReport {
	t.Helper()
	require.NoError(t, store.CreateFault(context.Background(), f))
	return f
}

func mustAttach(t *testing.T, store service.FaultStore, faultID, name string) *models.FaultFile {
	t.Helper()
	file := &models.FaultFile{
		FaultID:      faultID,
		FileName:     name,
		OriginalName: "orig_" + name,
		MimeType:     "image/png",
		Size:         128,
		FilePath:     "uploads/" + name,
	}
	require.NoError(t, store.CreateFaultFile(context.Background(), file))
	return file
}

func ids(faults []*models.FaultReport) []string {
	out := make([]string, len(faults))
	for i, f := range faults {
		out[i] = f.ID
	}
	return out
}

func testCreateAndGet(t *testing.T, newStore Factory) {
	clock := NewClock(time.Date(2025, 3, 14, 10, 0, 0, 123456789, time.UTC))
	store := newStore(t, clock.Now)
	ctx := context.Background()

	in := NewFault("Door fault", models.SeverityMajor, "Unit 407")
	in.Location = "Depot"
	in.PassengerSafety = true
	in.SparePartsList = "door motor"
	mustCreate(t, store, in)

	require.NotEmpty(t, in.ID)
	assert.Equal(t, time.Date(2025, 3, 14, 10, 0, 0, 123456000, time.UTC), in.CreatedAt)
	assert.True(t, in.CreatedAt.Equal(in.UpdatedAt))

	got, err := store.GetFaultByID(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, "Door fault", got.Title)
	assert.Equal(t, models.SeverityMajor, got.Severity)
	assert.Equal(t, "Unit 407", got.AssetID)
	assert.Equal(t, "Depot", got.Location)
	assert.Equal(t, "door motor", got.SparePartsList)
	assert.True(t, got.PassengerSafety)
	assert.False(t, got.StaffSafety)
	assert.True(t, in.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, in.UpdatedAt.Equal(got.UpdatedAt))

	other := mustCreate(t, store, NewFault("Other", models.SeverityMinor, "Unit 1"))
	assert.NotEqual(t, in.ID, other.ID)
}

func testGetMissing(t *testing.T, newStore Factory) {
	store := newStore(t, time.Now)
	_, err := store.GetFaultByID(context.Background(), "missing")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func testGetAllFaults(t *testing.T, newStore Factory) {
	clock := NewClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	store := newStore(t, clock.Now)
	ctx := context.Background()

	var created []*models.FaultReport
	for i := 0; i < 5; i++ {
		clock.Set(time.Date(2025, 1, 1, i, 0, 0, 0, time.UTC))
		created = append(created, mustCreate(t, store, NewFault(fmt.Sprintf("Fault %d", i), models.SeverityMinor, "A1")))
	}

	all, err := store.GetAllFaults(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, []string{created[4].ID, created[3].ID, created[2].ID, created[1].ID, created[0].ID}, ids(all))

	pageTwo, err := store.GetAllFaults(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{created[2].ID, created[1].ID}, ids(pageTwo))

	limited, err := store.GetAllFaults(ctx, 3, 0)
	require.NoError(t, err)
	assert.Len(t, limited, 3)

	beyond, err := store.GetAllFaults(ctx, 10, 50)
	require.NoError(t, err)
	assert.NotNil(t, beyond)
	assert.Empty(t, beyond)

	total, err := store.CountFaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
}

func testUpdateFault(t *testing.T, newStore Factory) {
	clock := NewClock(time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC))
	store := newStore(t, clock.Now)
	ctx := context.Background()

	f := mustCreate(t, store, NewFault("Door fault", models.SeverityMinor, "Unit 407"))

	clock.Set(time.Date(2025, 3, 14, 11, 0, 0, 0, time.UTC))
	severity := models.SeverityCritical
	workaround := "manual close"
	escalate := true
	updated, err := store.UpdateFault(ctx, f.ID, models.FaultPatch{
		Severity:         &severity,
		Workaround:       &workaround,
		EscalationNeeded: &escalate,
	})
	require.NoError(t, err)

	assert.Equal(t, models.SeverityCritical, updated.Severity)
	assert.Equal(t, "Door fault", updated.Title)
	assert.Equal(t, "manual close", updated.Workaround)
	assert.True(t, updated.EscalationNeeded)
	assert.True(t, updated.CreatedAt.Equal(f.CreatedAt))
	assert.True(t, updated.UpdatedAt.After(f.UpdatedAt))

	got, err := store.GetFaultByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityCritical, got.Severity)
	assert.Equal(t, "manual close", got.Workaround)
	assert.True(t, got.UpdatedAt.Equal(updated.UpdatedAt))
}

func testUpdateFaultFrozenClock(t *testing.T, newStore Factory) {
	clock := NewClock(time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC))
	store := newStore(t, clock.Now)
	ctx := context.Background()

	f := mustCreate(t, store, NewFault("Door fault", models.SeverityMinor, "Unit 407"))
	title := "Door fault, car 3"

	first, err := store.UpdateFault(ctx, f.ID, models.FaultPatch{Title: &title})
	require.NoError(t, err)
	second, err := store.UpdateFault(ctx, f.ID, models.FaultPatch{Title: &title})
	require.NoError(t, err)

	assert.True(t, first.UpdatedAt.After(f.UpdatedAt))
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
}

func testUpdateMissing(t *testing.T, newStore Factory) {
	store := newStore(t, time.Now)
	title := "x"
	_, err := store.UpdateFault(context.Background(), "missing", models.FaultPatch{Title: &title})
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func testDeleteFaultCascades(t *testing.T, newStore Factory) {
	store := newStore(t, time.Now)
	ctx := context.Background()

	f := mustCreate(t, store, NewFault("Door fault", models.SeverityMajor, "Unit 407"))
	keep := mustCreate(t, store, NewFault("Other", models.SeverityMinor, "Unit 1"))
	for i := 0; i < 3; i++ {
		mustAttach(t, store, f.ID, fmt.Sprintf("f%d.png", i))
	}
	kept := mustAttach(t, store, keep.ID, "keep.png")

	existed, err := store.DeleteFault(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, existed)

	_, err = store.GetFaultByID(ctx, f.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)

	files, err := store.GetFaultFiles(ctx, f.ID)
	require.NoError(t, err)
	assert.Empty(t, files)

	_, err = store.GetFaultFileByName(ctx, "f0.png")
	assert.ErrorIs(t, err, service.ErrNotFound)

	got, err := store.GetFaultFileByID(ctx, kept.ID)
	require.NoError(t, err)
	assert.Equal(t, keep.ID, got.FaultID)

	existed, err = store.DeleteFault(ctx, f.ID)
	require.NoError(t, err)
	assert.False(t, existed)
}

func testFileMetadata(t *testing.T, newStore Factory) {
	clock := NewClock(time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC))
	store := newStore(t, clock.Now)
	ctx := context.Background()

	f := mustCreate(t, store, NewFault("Door fault", models.SeverityMajor, "Unit 407"))
	// Одна и та же микросекунда: порядок вставки все равно сохраняется.
	a := mustAttach(t, store, f.ID, "a.png")
	b := mustAttach(t, store, f.ID, "b.pdf")
	clock.Set(time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))
	c := mustAttach(t, store, f.ID, "c.txt")

	require.NotEmpty(t, a.ID)
	assert.False(t, a.CreatedAt.IsZero())

	files, err := store.GetFaultFiles(ctx, f.ID)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, []string{files[0].ID, files[1].ID, files[2].ID})
	assert.Equal(t, "orig_a.png", files[0].OriginalName)
	assert.Equal(t, int64(128), files[0].Size)

	byName, err := store.GetFaultFileByName(ctx, "b.pdf")
	require.NoError(t, err)
	assert.Equal(t, b.ID, byName.ID)

	byID, err := store.GetFaultFileByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "c.txt", byID.FileName)

	deleted, err := store.DeleteFaultFile(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.DeleteFaultFile(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	files, err = store.GetFaultFiles(ctx, f.ID)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, err = store.GetFaultFileByID(ctx, "missing")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func testFileForUnknownFault(t *testing.T, newStore Factory) {
	store := newStore(t, time.Now)
	err := store.CreateFaultFile(context.Background(), &models.FaultFile{
		FaultID:  "missing",
		FileName: "x.png",
		MimeType: "image/png",
		FilePath: "uploads/x.png",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrNotFound)

	_, err = store.GetFaultFileByName(context.Background(), "x.png")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func testCountFaultFiles(t *testing.T, newStore Factory) {
	store := newStore(t, time.Now)
	ctx := context.Background()

	a := mustCreate(t, store, NewFault("A", models.SeverityMinor, "A1"))
	b := mustCreate(t, store, NewFault("B", models.SeverityMinor, "A1"))
	mustAttach(t, store, a.ID, "a1.png")
	mustAttach(t, store, a.ID, "a2.png")

	counts, err := store.CountFaultFiles(ctx, []string{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, counts[a.ID])
	assert.Equal(t, 0, counts[b.ID])

	empty, err := store.CountFaultFiles(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func seedSearch(t *testing.T, store service.FaultStore, clock *Clock) map[string]*models.FaultReport {
	t.Helper()
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	seed := []struct {
		key      string
		title    string
		desc     string
		reporter string
		asset    string
		severity models.Severity
		category string
		date     string
	}{
		{"door", "Door fails to close", "Car 3 door stuck", "Alice", "Unit 407", models.SeverityMajor, "doors", "2025-02-01T08:00"},
		{"brake", "Brake pressure low", "Pressure drop on bogie", "Bob", "Unit 212", models.SeverityCritical, "brakes", "2025-02-05T09:30"},
		{"lamp", "Saloon lamp flicker", "Minor lighting issue", "Carol", "Unit 407", models.SeverityMinor, "lighting", "2025-02-10T12:00"},
		{"hvac", "HVAC noise", "Noise reported by DOOR-side passengers", "Dave", "Unit 99", models.SeverityMinor, "hvac", "2025-02-15T07:45"},
	}
	out := make(map[string]*models.FaultReport, len(seed))
	for i, s := range seed {
		clock.Set(base.Add(time.Duration(i) * time.Hour))
		f := &models.FaultReport{
			Title:       s.title,
			Description: s.desc,
			Reporter:    s.reporter,
			AssetID:     s.asset,
			Severity:    s.severity,
			Category:    s.category,
			Date:        s.date,
		}
		out[s.key] = mustCreate(t, store, f)
	}
	return out
}

func testSearch(t *testing.T, newStore Factory) {
	clock := NewClock(time.Now())
	store := newStore(t, clock.Now)
	ctx := context.Background()
	seeded := seedSearch(t, store, clock)

	tests := []struct {
		name    string
		term    string
		filters models.FaultFilters
		want    []string
	}{
		{"term is case-insensitive across fields", "door", models.FaultFilters{}, []string{"hvac", "door"}},
		{"term matches reporter", "bob", models.FaultFilters{}, []string{"brake"}},
		{"term matches asset id", "unit 407", models.FaultFilters{}, []string{"lamp", "door"}},
		{"severity filter", "", models.FaultFilters{Severity: models.SeverityMinor}, []string{"hvac", "lamp"}},
		{"asset filter is exact", "", models.FaultFilters{AssetID: "Unit 407"}, []string{"lamp", "door"}},
		{"category filter", "", models.FaultFilters{Category: "brakes"}, []string{"brake"}},
		{"date range inclusive", "", models.FaultFilters{DateFrom: "2025-02-05T09:30", DateTo: "2025-02-10T12:00"}, []string{"lamp", "brake"}},
		{"term and filter combine", "door", models.FaultFilters{Severity: models.SeverityMajor}, []string{"door"}},
		{"no match", "pantograph", models.FaultFilters{}, []string{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			found, err := store.SearchFaults(ctx, tc.term, tc.filters)
			require.NoError(t, err)
			want := make([]string, 0, len(tc.want))
			for _, key := range tc.want {
				want = append(want, seeded[key].ID)
			}
			assert.Equal(t, want, ids(found))
		})
	}
}

func testSearchCommutative(t *testing.T, newStore Factory) {
	clock := NewClock(time.Now())
	store := newStore(t, clock.Now)
	ctx := context.Background()
	seedSearch(t, store, clock)

	bySeverity := models.FaultFilters{Severity: models.SeverityMinor}
	bySeverity.AssetID = "Unit 407"
	byAsset := models.FaultFilters{AssetID: "Unit 407"}
	byAsset.Severity = models.SeverityMinor

	first, err := store.SearchFaults(ctx, "", bySeverity)
	require.NoError(t, err)
	second, err := store.SearchFaults(ctx, "", byAsset)
	require.NoError(t, err)
	again, err := store.SearchFaults(ctx, "", bySeverity)
	require.NoError(t, err)

	assert.Len(t, first, 1)
	assert.Equal(t, ids(first), ids(second))
	assert.Equal(t, ids(first), ids(again))
}

func testSearchLiteralWildcards(t *testing.T, newStore Factory) {
	store := newStore(t, time.Now)
	ctx := context.Background()

	pct := mustCreate(t, store, NewFault("Battery at 50% charge", models.SeverityMinor, "Unit 5"))
	mustCreate(t, store, NewFault("Battery at 50 volts", models.SeverityMinor, "Unit 5"))
	under := mustCreate(t, store, NewFault("Relay K_12 tripped", models.SeverityMinor, "Unit 5"))
	mustCreate(t, store, NewFault("Relay KX12 tripped", models.SeverityMinor, "Unit 5"))

	found, err := store.SearchFaults(ctx, "50%", models.FaultFilters{})
	require.NoError(t, err)
	assert.Equal(t, []string{pct.ID}, ids(found))

	found, err = store.SearchFaults(ctx, "k_12", models.FaultFilters{})
	require.NoError(t, err)
	assert.Equal(t, []string{under.ID}, ids(found))
}

func testSearchCap(t *testing.T, newStore Factory) {
	store := newStore(t, time.Now)
	ctx := context.Background()

	for i := 0; i < models.SearchLimit+5; i++ {
		mustCreate(t, store, NewFault(fmt.Sprintf("Signal fault %d", i), models.SeverityMinor, "Signal"))
	}

	found, err := store.SearchFaults(ctx, "signal", models.FaultFilters{})
	require.NoError(t, err)
	assert.Len(t, found, models.SearchLimit)
	assert.Equal(t, fmt.Sprintf("Signal fault %d", models.SearchLimit+4), found[0].Title)
}

func testStats(t *testing.T, newStore Factory) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	clock := NewClock(now.Add(-30 * 24 * time.Hour))
	store := newStore(t, clock.Now)
	ctx := context.Background()

	mustCreate(t, store, NewFault("old critical", models.SeverityCritical, "A"))
	clock.Set(now.Add(-8 * 24 * time.Hour))
	mustCreate(t, store, NewFault("old minor", models.SeverityMinor, "A"))
	clock.Set(now.Add(-2 * 24 * time.Hour))
	mustCreate(t, store, NewFault("recent major", models.SeverityMajor, "A"))
	clock.Set(now.Add(-time.Hour))
	mustCreate(t, store, NewFault("recent minor", models.SeverityMinor, "A"))

	clock.Set(now)
	stats, err := store.GetFaultStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, models.SeverityBreakdown{Minor: 2, Major: 1, Critical: 1}, stats.BySeverity)
	assert.Equal(t, int64(2), stats.RecentCount)

	empty := newStore(t, clock.Now)
	stats, err = empty.GetFaultStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &models.FaultStats{}, stats)
}
