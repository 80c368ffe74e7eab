package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
)

const instrumentationName = "github.com/fyrsmithlabs/pipevet/internal/store"

var (
	// ErrNotFound is returned when no archived session matches the ID.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid store configuration")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")

	// ErrConnectionFailed indicates the remote store is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to store")
)

// StoredResult pairs an archived stage result with the session it belongs to.
type StoredResult struct {
	SessionID string               `json:"session_id"`
	Result    pipeline.StageResult `json:"result"`
}

// Store persists completed sessions and stage results. The orchestrator writes
// as validations land; health rollups and report lookups read back.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// SaveStageResult archives one stage validation outcome.
	SaveStageResult(ctx context.Context, sessionID string, result pipeline.StageResult) error

	// SaveSession archives a session. Saving the same ID again overwrites the
	// earlier record.
	SaveSession(ctx context.Context, session *pipeline.Session) error

	// LoadSession returns an archived session, or ErrNotFound.
	LoadSession(ctx context.Context, sessionID string) (*pipeline.Session, error)

	// LoadRecentResults returns stage results for one stage validated within
	// the trailing window, newest last.
	LoadRecentResults(ctx context.Context, stage pipeline.Stage, window time.Duration) ([]StoredResult, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources. The store is unusable afterwards.
	Close() error
}

// SessionMatch is one hit from a similarity search over archived sessions.
type SessionMatch struct {
	SessionID string                 `json:"session_id"`
	Owner     string                 `json:"owner"`
	Status    pipeline.SessionStatus `json:"status"`
	Summary   string                 `json:"summary"`
	Score     float32                `json:"score"`
}

// SimilaritySearcher is implemented by providers that index session summaries
// as embedding vectors. Callers feature-detect it with a type assertion; the
// memory provider does not implement it.
type SimilaritySearcher interface {
	// SimilarSessions returns up to k archived sessions whose summaries are
	// semantically closest to the query text.
	SimilarSessions(ctx context.Context, query string, k int) ([]SessionMatch, error)
}

// sessionSummary renders the searchable description of a session. Issue types
// and stages go in so that searches like "credential failures in fetch" land
// on the right sessions.
func sessionSummary(s *pipeline.Session) string {
	parts := []string{fmt.Sprintf("session %s owner %s status %s", s.ID, s.Owner, s.EffectiveStatus())}
	for _, r := range s.Results {
		if r.Passed {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed with %s %s", r.StageID, r.Severity, r.IssueType))
	}
	for _, issue := range s.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", issue.Type, issue.Description))
	}
	return strings.Join(parts, "; ")
}

// resultSummary renders the searchable description of a stage result.
func resultSummary(sessionID string, r pipeline.StageResult) string {
	outcome := "passed"
	if !r.Passed {
		outcome = fmt.Sprintf("failed with %s %s", r.Severity, r.IssueType)
	}
	return fmt.Sprintf("session %s stage %s %s in %dms", sessionID, r.StageID, outcome, r.DurationMS)
}
