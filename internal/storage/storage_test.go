package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type savedGuest struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func openTemp(t *testing.T) (*Storage, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "prefs.db")
	s, err := NewStorage(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestStorage_LoadMissing(t *testing.T) {
	s, _ := openTemp(t)

	var g savedGuest
	ok, err := s.Load(KeyGuest, &g)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStorage_SaveLoadClear(t *testing.T) {
	s, _ := openTemp(t)

	require.NoError(t, s.Save(KeyGuest, savedGuest{ID: "g1", Email: "ana@example.com"}))
	require.NoError(t, s.Save(KeyGuest, savedGuest{ID: "g1", Email: "ana.cruz@example.com"}))

	var g savedGuest
	ok, err := s.Load(KeyGuest, &g)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ana.cruz@example.com", g.Email)

	require.NoError(t, s.Clear(KeyGuest))
	require.NoError(t, s.Clear(KeyGuest))
	ok, err = s.Load(KeyGuest, &g)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStorage_PersistsAcrossReopen(t *testing.T) {
	s, path := openTemp(t)
	viewed := map[string]time.Time{"story-1": time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	require.NoError(t, s.Save(KeyViewedStories, viewed))
	require.NoError(t, s.Close())

	reopened, err := NewStorage(path)
	require.NoError(t, err)
	defer reopened.Close()

	var got map[string]time.Time
	ok, err := reopened.Load(KeyViewedStories, &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, viewed["story-1"].Equal(got["story-1"]))
}
