package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
)

func newTestMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(nil)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func passedResult(stage pipeline.Stage, at time.Time) pipeline.StageResult {
	return pipeline.StageResult{
		StageID:     stage,
		Passed:      true,
		Severity:    pipeline.SeverityNone,
		DurationMS:  1200,
		ValidatedAt: at,
	}
}

func TestMemoryStore_SaveLoadSession(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	session := pipeline.NewSession("sess_1", "owner_1")
	session.Results = append(session.Results, passedResult(pipeline.StageFetch, time.Now()))

	require.NoError(t, s.SaveSession(ctx, session))

	loaded, err := s.LoadSession(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, "sess_1", loaded.ID)
	assert.Equal(t, "owner_1", loaded.Owner)
	assert.Len(t, loaded.Results, 1)
}

func TestMemoryStore_LoadSession_NotFound(t *testing.T) {
	s := newTestMemoryStore(t)

	_, err := s.LoadSession(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SaveSession_RequiresID(t *testing.T) {
	s := newTestMemoryStore(t)

	err := s.SaveSession(context.Background(), &pipeline.Session{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMemoryStore_SaveSession_ClonesInput(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	session := pipeline.NewSession("sess_1", "owner_1")
	require.NoError(t, s.SaveSession(ctx, session))

	// Mutations after save must not leak into the archive.
	session.Owner = "changed"

	loaded, err := s.LoadSession(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, "owner_1", loaded.Owner)
}

func TestMemoryStore_SaveSession_Overwrites(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	first := pipeline.NewSession("sess_1", "owner_1")
	require.NoError(t, s.SaveSession(ctx, first))

	second := pipeline.NewSession("sess_1", "owner_2")
	require.NoError(t, s.SaveSession(ctx, second))

	loaded, err := s.LoadSession(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, "owner_2", loaded.Owner)
}

func TestMemoryStore_LoadRecentResults_WindowFilter(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	old := passedResult(pipeline.StageFetch, time.Now().Add(-2*time.Hour))
	recent := passedResult(pipeline.StageFetch, time.Now().Add(-5*time.Minute))
	otherStage := passedResult(pipeline.StageGenerate, time.Now())

	require.NoError(t, s.SaveStageResult(ctx, "sess_old", old))
	require.NoError(t, s.SaveStageResult(ctx, "sess_new", recent))
	require.NoError(t, s.SaveStageResult(ctx, "sess_gen", otherStage))

	results, err := s.LoadRecentResults(ctx, pipeline.StageFetch, time.Hour)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "sess_new", results[0].SessionID)
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore(nil)
	require.NoError(t, s.Close())

	err := s.SaveSession(context.Background(), pipeline.NewSession("sess_1", "o"))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = s.LoadSession(context.Background(), "sess_1")
	assert.ErrorIs(t, err, ErrClosed)

	assert.ErrorIs(t, s.Ping(context.Background()), ErrClosed)

	// Closing twice is harmless.
	assert.NoError(t, s.Close())
}

func TestMemoryStore_Ping(t *testing.T) {
	s := newTestMemoryStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
