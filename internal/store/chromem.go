package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipevet/internal/embeddings"
	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
)

// resultsSuffix names the stage-result collection next to the session one.
const resultsSuffix = "_results"

// ChromemConfig holds configuration for the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.config/pipevet/store"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the session collection name. Stage results live in a
	// sibling collection with the "_results" suffix.
	// Default: "pipevet_sessions"
	Collection string
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/pipevet/store"
	}
	if c.Collection == "" {
		c.Collection = "pipevet_sessions"
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if strings.Contains(c.Collection, "/") {
		return fmt.Errorf("%w: collection name must not contain '/'", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore persists sessions in an embedded chromem-go database. It needs
// no external service: data lives in gob files under the configured path, and
// session summaries are embedded for similarity search.
//
// chromem-go filters metadata by exact match only, so the trailing-window
// reads behind health rollups are served from an in-process buffer that
// refills as validations arrive.
type ChromemStore struct {
	db       *chromem.DB
	embedder embeddings.Provider
	config   ChromemConfig
	logger   *zap.Logger
	tracer   trace.Tracer
	recents  *recentsBuffer

	mu     sync.RWMutex
	closed bool
}

// NewChromemStore creates a ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, embedder embeddings.Provider, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	expandedPath, err := expandStorePath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(expandedPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	s := &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		recents:  newRecentsBuffer(0),
	}

	logger.Info("chromem store initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.String("collection", config.Collection),
	)

	return s, nil
}

// expandStorePath expands ~ to the home directory.
func expandStorePath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// embeddingFunc adapts the embeddings.Provider to chromem's callback.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.Embed(ctx, text)
	}
}

func (s *ChromemStore) sessionCollection() (*chromem.Collection, error) {
	return s.db.GetOrCreateCollection(s.config.Collection, nil, s.embeddingFunc())
}

func (s *ChromemStore) resultCollection() (*chromem.Collection, error) {
	return s.db.GetOrCreateCollection(s.config.Collection+resultsSuffix, nil, s.embeddingFunc())
}

// SaveStageResult archives one stage validation outcome.
func (s *ChromemStore) SaveStageResult(ctx context.Context, sessionID string, result pipeline.StageResult) error {
	ctx, span := s.tracer.Start(ctx, "ChromemStore.SaveStageResult")
	defer span.End()
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("stage", string(result.StageID)),
	)

	if err := s.ensureOpen(); err != nil {
		return err
	}

	collection, err := s.resultCollection()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("getting result collection: %w", err)
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("encoding result: %w", err)
	}

	doc := chromem.Document{
		ID:      fmt.Sprintf("%s/%s/%d", sessionID, result.StageID, result.ValidatedAt.UnixNano()),
		Content: resultSummary(sessionID, result),
		Metadata: map[string]string{
			"session_id":  sessionID,
			"stage":       string(result.StageID),
			"result_json": string(resultJSON),
		},
	}
	if err := collection.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding result document: %w", err)
	}

	s.recents.add(sessionID, result)
	return nil
}

// SaveSession archives a session. The summary text is embedded so the session
// turns up in similarity searches.
func (s *ChromemStore) SaveSession(ctx context.Context, session *pipeline.Session) error {
	ctx, span := s.tracer.Start(ctx, "ChromemStore.SaveSession")
	defer span.End()

	if err := s.ensureOpen(); err != nil {
		return err
	}
	if session == nil || session.ID == "" {
		return fmt.Errorf("%w: session with ID is required", ErrInvalidConfig)
	}
	span.SetAttributes(attribute.String("session_id", session.ID))

	collection, err := s.sessionCollection()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("getting session collection: %w", err)
	}

	sessionJSON, err := json.Marshal(session)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("encoding session: %w", err)
	}

	doc := chromem.Document{
		ID:      session.ID,
		Content: sessionSummary(session),
		Metadata: map[string]string{
			"owner":        session.Owner,
			"status":       string(session.EffectiveStatus()),
			"session_json": string(sessionJSON),
		},
	}
	if err := collection.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding session document: %w", err)
	}

	s.logger.Debug("archived session",
		zap.String("session_id", session.ID),
		zap.String("status", string(session.EffectiveStatus())),
	)
	return nil
}

// LoadSession returns an archived session, or ErrNotFound.
func (s *ChromemStore) LoadSession(ctx context.Context, sessionID string) (*pipeline.Session, error) {
	ctx, span := s.tracer.Start(ctx, "ChromemStore.LoadSession")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID))

	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	collection, err := s.sessionCollection()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("getting session collection: %w", err)
	}

	doc, err := collection.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	var session pipeline.Session
	if err := json.Unmarshal([]byte(doc.Metadata["session_json"]), &session); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("decoding session %s: %w", sessionID, err)
	}
	return &session, nil
}

// LoadRecentResults returns stage results validated within the window.
func (s *ChromemStore) LoadRecentResults(ctx context.Context, stage pipeline.Stage, window time.Duration) ([]StoredResult, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	return s.recents.since(stage, time.Now().Add(-window)), nil
}

// SimilarSessions returns archived sessions whose summaries are closest to
// the query text.
func (s *ChromemStore) SimilarSessions(ctx context.Context, query string, k int) ([]SessionMatch, error) {
	ctx, span := s.tracer.Start(ctx, "ChromemStore.SimilarSessions")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrInvalidConfig)
	}
	if k <= 0 {
		k = 5
	}

	collection, err := s.sessionCollection()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("getting session collection: %w", err)
	}

	// chromem requires nResults <= document count.
	count := collection.Count()
	if count == 0 {
		return []SessionMatch{}, nil
	}
	if k > count {
		k = count
	}

	results, err := collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying sessions: %w", err)
	}

	matches := make([]SessionMatch, 0, len(results))
	for _, r := range results {
		matches = append(matches, SessionMatch{
			SessionID: r.ID,
			Owner:     r.Metadata["owner"],
			Status:    pipeline.SessionStatus(r.Metadata["status"]),
			Summary:   r.Content,
			Score:     r.Similarity,
		})
	}
	span.SetAttributes(attribute.Int("results", len(matches)))
	return matches, nil
}

// Ping verifies the database handle is usable.
func (s *ChromemStore) Ping(ctx context.Context) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if _, err := s.sessionCollection(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

// Close marks the store closed. chromem persists on every write, so there is
// nothing to flush.
func (s *ChromemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *ChromemStore) ensureOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

var (
	_ Store              = (*ChromemStore)(nil)
	_ SimilaritySearcher = (*ChromemStore)(nil)
)
