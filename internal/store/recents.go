package store

import (
	"sync"
	"time"

	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
)

// defaultRecentsCap bounds the per-stage buffer. At one validation per second
// this covers well past the 24h rollup window.
const defaultRecentsCap = 100_000

// recentsBuffer holds recent stage results in arrival order, per stage.
// Providers without server-side range filters serve LoadRecentResults from
// it; the buffer refills as validations arrive after a restart.
type recentsBuffer struct {
	mu      sync.RWMutex
	cap     int
	byStage map[pipeline.Stage][]timedResult
}

type timedResult struct {
	at     time.Time
	stored StoredResult
}

func newRecentsBuffer(capacity int) *recentsBuffer {
	if capacity <= 0 {
		capacity = defaultRecentsCap
	}
	return &recentsBuffer{
		cap:     capacity,
		byStage: make(map[pipeline.Stage][]timedResult),
	}
}

// add appends a result, evicting the oldest entries past capacity.
func (b *recentsBuffer) add(sessionID string, result pipeline.StageResult) {
	at := result.ValidatedAt
	if at.IsZero() {
		at = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entries := append(b.byStage[result.StageID], timedResult{
		at:     at,
		stored: StoredResult{SessionID: sessionID, Result: result},
	})
	if over := len(entries) - b.cap; over > 0 {
		entries = entries[over:]
	}
	b.byStage[result.StageID] = entries
}

// since returns results for the stage validated at or after the cutoff,
// oldest first.
func (b *recentsBuffer) since(stage pipeline.Stage, cutoff time.Time) []StoredResult {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries := b.byStage[stage]
	out := make([]StoredResult, 0, len(entries))
	for _, e := range entries {
		if e.at.Before(cutoff) {
			continue
		}
		out = append(out, e.stored)
	}
	return out
}
