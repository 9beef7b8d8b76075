package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetcal/internal/model"
)

func openAt(t *testing.T, path string, now time.Time) *Store {
	t.Helper()
	s, err := Open(path)
	require.NoError(t, err)
	s.now = func() time.Time { return now }
	return s
}

func TestPresetRoundTripThroughDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "store.yaml")
	s := openAt(t, path, time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC))

	_, ok := s.Preset(PresetKey("sheet", "Tab"))
	assert.False(t, ok)

	mapping := model.ColumnMapping{model.RoleDate: 0, model.RoleTime: 2, model.RolePerson: 1}
	require.NoError(t, s.SavePreset(Preset{Key: PresetKey("sheet", "Tab"), HeaderRow: 3, Mapping: mapping}))

	// Mutating the caller's map must not leak into the store.
	mapping[model.RoleDate] = 9

	reopened := openAt(t, path, time.Now())
	p, ok := reopened.Preset("sheet::Tab")
	require.True(t, ok)
	assert.Equal(t, 3, p.HeaderRow)
	assert.Equal(t, 0, p.Mapping[model.RoleDate])
	assert.Equal(t, 2, p.Mapping[model.RoleTime])
	assert.Equal(t, 2026, p.UpdatedAt.Year())

	require.NoError(t, reopened.DeletePreset("sheet::Tab"))
	require.NoError(t, reopened.DeletePreset("sheet::Tab"))
	_, ok = openAt(t, path, time.Now()).Preset("sheet::Tab")
	assert.False(t, ok)

	assert.Error(t, reopened.SavePreset(Preset{}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.yaml")
	s := openAt(t, path, time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC))

	events := []model.NormalizedEvent{
		{Date: "27/01/2026", Person: "A", Task: "Coi thi", Status: model.StatusSynced},
		{Date: "27/01/2026", Person: "B", Task: "Coi thi", Status: model.StatusFailed},
	}
	first, err := s.AppendHistory("src1", model.SyncResult{Created: 1, Failed: 1}, events, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, 2, first.Events)
	assert.Len(t, first.RowHashes, 1)
	assert.Equal(t, RowHash(events[0]), first.RowHashes[0])

	s.now = func() time.Time { return time.Date(2026, 1, 21, 8, 0, 0, 0, time.UTC) }
	_, err = s.AppendHistory("src2", model.SyncResult{}, nil, assert.AnError)
	require.NoError(t, err)

	all := openAt(t, path, time.Now()).History("", 0)
	require.Len(t, all, 2)
	assert.Equal(t, "src2", all[0].SourceID)
	assert.Equal(t, assert.AnError.Error(), all[0].Error)

	only := s.History("src1", 0)
	require.Len(t, only, 1)
	assert.Equal(t, 1, only[0].Created)

	assert.Len(t, s.History("", 1), 1)
}

func TestHistoryIsCapped(t *testing.T) {
	s := openAt(t, filepath.Join(t.TempDir(), "store.yaml"), time.Now())
	for i := 0; i < MaxHistory+5; i++ {
		_, err := s.AppendHistory("src", model.SyncResult{Created: i}, nil, nil)
		require.NoError(t, err)
	}
	hist := s.History("", 0)
	assert.Len(t, hist, MaxHistory)
}

func TestRowHashDependsOnRecognizableFields(t *testing.T) {
	base := model.NormalizedEvent{
		Date:      "27/01/2026",
		StartTime: time.Date(2026, 1, 27, 7, 0, 0, 0, time.UTC),
		Person:    "A",
		Task:      "Coi thi",
		Location:  "B1",
	}
	same := base
	same.Email = "a@example.com"
	assert.Equal(t, RowHash(base), RowHash(same))

	moved := base
	moved.Location = "B2"
	assert.NotEqual(t, RowHash(base), RowHash(moved))
	assert.Len(t, RowHash(base), 64)
}

func TestOpenRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.yaml")
	require.NoError(t, os.WriteFile(path, []byte("presets: [unclosed"), 0o600))
	_, err := Open(path)
	assert.Error(t, err)

	_, err = Open("")
	assert.Error(t, err)
}
