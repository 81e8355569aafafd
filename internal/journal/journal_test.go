package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2024, 5, 1, 22, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	ctx := t.Context()
	require.NoError(t, s.Record(ctx, "armed", ""))
	require.NoError(t, s.Record(ctx, "motion", ""))
	require.NoError(t, s.Record(ctx, "person_unknown", "{10 10 50 90}"))

	got, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "person_unknown", got[0].Kind)
	assert.Equal(t, "{10 10 50 90}", got[0].Detail)
	assert.True(t, got[0].At.Equal(base.Add(3*time.Second)))
	assert.Equal(t, "motion", got[1].Kind)

	_, err = uuid.Parse(got[0].ID)
	assert.NoError(t, err)
	assert.NotEqual(t, got[0].ID, got[1].ID)
}

func TestRecentEmpty(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Recent(t.Context(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.Recent(t.Context(), 0)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReopenKeepsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(t.Context(), "disarmed", ""))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Recent(t.Context(), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "disarmed", got[0].Kind)
}
