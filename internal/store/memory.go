package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
)

// MemoryStore keeps archived sessions and results in process. It is the
// default provider and the one tests run against.
type MemoryStore struct {
	logger  *zap.Logger
	recents *recentsBuffer

	mu       sync.RWMutex
	sessions map[string]*pipeline.Session
	closed   bool
}

// NewMemoryStore creates an in-process store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		logger:   logger,
		recents:  newRecentsBuffer(0),
		sessions: make(map[string]*pipeline.Session),
	}
}

// SaveStageResult archives one stage validation outcome.
func (s *MemoryStore) SaveStageResult(ctx context.Context, sessionID string, result pipeline.StageResult) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	s.recents.add(sessionID, result)
	return nil
}

// SaveSession archives a session. The session is cloned so later mutations by
// the caller do not leak into the archive.
func (s *MemoryStore) SaveSession(ctx context.Context, session *pipeline.Session) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if session == nil || session.ID == "" {
		return fmt.Errorf("%w: session with ID is required", ErrInvalidConfig)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session.Clone()
	return nil
}

// LoadSession returns a copy of an archived session, or ErrNotFound.
func (s *MemoryStore) LoadSession(ctx context.Context, sessionID string) (*pipeline.Session, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return session.Clone(), nil
}

// LoadRecentResults returns stage results validated within the window.
func (s *MemoryStore) LoadRecentResults(ctx context.Context, stage pipeline.Stage, window time.Duration) ([]StoredResult, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	return s.recents.since(stage, time.Now().Add(-window)), nil
}

// Ping always succeeds while the store is open.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return s.ensureOpen()
}

// Close marks the store closed. Held data is released to the collector.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.sessions = nil
	return nil
}

func (s *MemoryStore) ensureOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
