package jsonfile_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fault-dashboard/internal/models"
	"fault-dashboard/internal/service"
	"fault-dashboard/internal/storage/jsonfile"
	"fault-dashboard/internal/storage/storagetest"
)

func TestJSONFaultRepository(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, now func() time.Time) service.FaultStore {
		store, err := jsonfile.New(filepath.Join(t.TempDir(), "faults.json"), jsonfile.WithClock(now))
		require.NoError(t, err)
		return store
	})
}

func TestJSONFaultRepository_InMemory(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, now func() time.Time) service.FaultStore {
		return jsonfile.NewInMemory(jsonfile.WithClock(now))
	})
}

func TestNew_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "faults.json")
	ctx := context.Background()

	store, err := jsonfile.New(path)
	require.NoError(t, err)

	f := storagetest.NewFault("Door", models.SeverityMajor, "Unit 407")
	require.NoError(t, store.CreateFault(ctx, f))
	require.NoError(t, store.CreateFaultFile(ctx, &models.FaultFile{
		FaultID: f.ID, FileName: "1_a.png", OriginalName: "a.png", MimeType: "image/png", Size: 3, FilePath: "uploads/1_a.png",
	}))

	var doc struct {
		Faults []map[string]any `json:"faults"`
		Files  []map[string]any `json:"files"`
	}
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Len(t, doc.Faults, 1)
	assert.Len(t, doc.Files, 1)
	assert.Equal(t, "Unit 407", doc.Faults[0]["assetId"])

	reopened, err := jsonfile.New(path)
	require.NoError(t, err)
	got, err := reopened.GetFaultByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "Door", got.Title)
	assert.True(t, f.CreatedAt.Equal(got.CreatedAt))

	files, err := reopened.GetFaultFiles(ctx, f.ID)
	require.NoError(t, err)
	assert.Len(t, files, 1)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestNew_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faults.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := jsonfile.New(path)
	assert.Error(t, err)
}

func TestNew_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faults.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	store, err := jsonfile.New(path)
	require.NoError(t, err)
	n, err := store.CountFaults(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJSONFaultRepository_FailedWriteKeepsState(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "faults.json")
	ctx := context.Background()

	store, err := jsonfile.New(path)
	require.NoError(t, err)
	f := storagetest.NewFault("Door", models.SeverityMajor, "Unit 407")
	require.NoError(t, store.CreateFault(ctx, f))

	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { os.Chmod(dir, 0o700) })

	err = store.CreateFault(ctx, storagetest.NewFault("Lamp", models.SeverityMinor, "Unit 1"))
	require.Error(t, err)

	existed, err := store.DeleteFault(ctx, f.ID)
	require.Error(t, err)
	assert.False(t, existed)

	n, err := store.CountFaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = store.GetFaultByID(ctx, f.ID)
	assert.NoError(t, err)
}
