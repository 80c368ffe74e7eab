package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/pipevet/internal/embeddings"
	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
)

// maxWindowResults caps one trailing-window read against Qdrant.
const maxWindowResults = 4096

// QdrantConfig holds configuration for the Qdrant gRPC store.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (6334), not the HTTP REST port (6333).
	Port int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// APIKey is the optional API key. Leave empty for local development.
	APIKey string

	// Collection is the session collection name. Stage results live in a
	// sibling collection with the "_results" suffix.
	// Default: "pipevet_sessions"
	Collection string

	// VectorSize is the embedding dimension for new collections.
	// Default: 384
	VectorSize int

	// DialTimeout bounds connection establishment. Default: 5s.
	DialTimeout time.Duration

	// RequestTimeout bounds individual requests. Default: 30s.
	RequestTimeout time.Duration

	// RetryAttempts is the retry count for transient failures. Default: 3.
	RetryAttempts int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "pipevet_sessions"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
}

// Validate validates the configuration.
func (c *QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// QdrantStore persists sessions and stage results in a Qdrant server over
// gRPC. Point IDs are derived deterministically from session IDs so saves are
// idempotent, and the validated-at payload field carries a range index for
// trailing-window reads.
type QdrantStore struct {
	client   *qdrant.Client
	config   QdrantConfig
	embedder embeddings.Provider
	logger   *zap.Logger
	tracer   trace.Tracer

	mu     sync.RWMutex
	closed bool
}

// NewQdrantStore connects to Qdrant, verifies health, and ensures the session
// and result collections exist.
func NewQdrantStore(config QdrantConfig, embedder embeddings.Provider, logger *zap.Logger) (*QdrantStore, error) {
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

	qdrantConfig := &qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		APIKey: config.APIKey,
	}
	if !config.UseTLS {
		qdrantConfig.GrpcOptions = append(qdrantConfig.GrpcOptions,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}

	client, err := qdrant.NewClient(qdrantConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &QdrantStore{
		client:   client,
		config:   config,
		embedder: embedder,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check failed: %v", ErrConnectionFailed, err)
	}
	if err := s.ensureCollections(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("qdrant store initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
	)

	return s, nil
}

func (s *QdrantStore) sessionsName() string { return s.config.Collection }
func (s *QdrantStore) resultsName() string  { return s.config.Collection + resultsSuffix }

// ensureCollections creates the session and result collections when missing.
func (s *QdrantStore) ensureCollections(ctx context.Context) error {
	for _, name := range []string{s.sessionsName(), s.resultsName()} {
		exists, err := s.collectionExists(ctx, name)
		if err != nil {
			return fmt.Errorf("checking collection %s: %w", name, err)
		}
		if exists {
			continue
		}
		err = s.retryOperation(ctx, func() error {
			return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: name,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     uint64(s.config.VectorSize),
					Distance: qdrant.Distance_Cosine,
				}),
			})
		})
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", name, err)
		}
	}
	return nil
}

func (s *QdrantStore) collectionExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.retryOperation(ctx, func() error {
		info, err := s.client.GetCollectionInfo(ctx, name)
		if err != nil {
			st, ok := status.FromError(err)
			if ok && st.Code() == codes.NotFound {
				exists = false
				return nil
			}
			return err
		}
		exists = info != nil
		return nil
	})
	return exists, err
}

// sessionPointID derives a stable UUID point ID from a session ID.
func sessionPointID(sessionID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("pipevet/session/"+sessionID)).String()
}

// resultPointID derives a stable UUID point ID from a result's coordinates.
func resultPointID(sessionID string, r pipeline.StageResult) string {
	key := fmt.Sprintf("pipevet/result/%s/%s/%d", sessionID, r.StageID, r.ValidatedAt.UnixNano())
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

// SaveStageResult archives one stage validation outcome.
func (s *QdrantStore) SaveStageResult(ctx context.Context, sessionID string, result pipeline.StageResult) error {
	ctx, span := s.tracer.Start(ctx, "QdrantStore.SaveStageResult")
	defer span.End()
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("stage", string(result.StageID)),
	)

	if err := s.ensureOpen(); err != nil {
		return err
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	vector, err := s.embedder.Embed(ctx, resultSummary(sessionID, result))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("embedding result summary: %w", err)
	}

	validatedAt := result.ValidatedAt
	if validatedAt.IsZero() {
		validatedAt = time.Now()
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(resultPointID(sessionID, result)),
		Vectors: qdrant.NewVectors(vector...),
		Payload: toQdrantPayload(map[string]interface{}{
			"session_id":   sessionID,
			"stage":        string(result.StageID),
			"passed":       result.Passed,
			"severity":     string(result.Severity),
			"validated_at": validatedAt.Unix(),
			"result_json":  string(resultJSON),
		}),
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()
	return s.retryOperation(reqCtx, func() error {
		_, err := s.client.Upsert(reqCtx, &qdrant.UpsertPoints{
			CollectionName: s.resultsName(),
			Points:         []*qdrant.PointStruct{point},
		})
		return err
	})
}

// SaveSession archives a session under a deterministic point ID, so saving
// the same session twice overwrites the first record.
func (s *QdrantStore) SaveSession(ctx context.Context, session *pipeline.Session) error {
	ctx, span := s.tracer.Start(ctx, "QdrantStore.SaveSession")
	defer span.End()

	if err := s.ensureOpen(); err != nil {
		return err
	}
	if session == nil || session.ID == "" {
		return fmt.Errorf("%w: session with ID is required", ErrInvalidConfig)
	}
	span.SetAttributes(attribute.String("session_id", session.ID))

	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	summary := sessionSummary(session)
	vector, err := s.embedder.Embed(ctx, summary)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("embedding session summary: %w", err)
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(sessionPointID(session.ID)),
		Vectors: qdrant.NewVectors(vector...),
		Payload: toQdrantPayload(map[string]interface{}{
			"session_id":   session.ID,
			"owner":        session.Owner,
			"status":       string(session.EffectiveStatus()),
			"summary":      summary,
			"session_json": string(sessionJSON),
		}),
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()
	return s.retryOperation(reqCtx, func() error {
		_, err := s.client.Upsert(reqCtx, &qdrant.UpsertPoints{
			CollectionName: s.sessionsName(),
			Points:         []*qdrant.PointStruct{point},
		})
		return err
	})
}

// LoadSession returns an archived session, or ErrNotFound.
func (s *QdrantStore) LoadSession(ctx context.Context, sessionID string) (*pipeline.Session, error) {
	ctx, span := s.tracer.Start(ctx, "QdrantStore.LoadSession")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID))

	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	var points []*qdrant.RetrievedPoint
	err := s.retryOperation(reqCtx, func() error {
		result, err := s.client.Get(reqCtx, &qdrant.GetPoints{
			CollectionName: s.sessionsName(),
			Ids:            []*qdrant.PointId{qdrant.NewIDUUID(sessionPointID(sessionID))},
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	raw := points[0].Payload["session_json"].GetStringValue()
	var session pipeline.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("decoding session %s: %w", sessionID, err)
	}
	return &session, nil
}

// LoadRecentResults returns stage results validated within the window. The
// query filters server-side on the stage keyword and the validated-at range.
func (s *QdrantStore) LoadRecentResults(ctx context.Context, stage pipeline.Stage, window time.Duration) ([]StoredResult, error) {
	ctx, span := s.tracer.Start(ctx, "QdrantStore.LoadRecentResults")
	defer span.End()
	span.SetAttributes(attribute.String("stage", string(stage)))

	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	cutoff := float64(time.Now().Add(-window).Unix())
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: "stage",
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: string(stage)},
						},
					},
				},
			},
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key:   "validated_at",
						Range: &qdrant.Range{Gte: qdrant.PtrOf(cutoff)},
					},
				},
			},
		},
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	var scored []*qdrant.ScoredPoint
	err := s.retryOperation(reqCtx, func() error {
		res, err := s.client.Query(reqCtx, &qdrant.QueryPoints{
			CollectionName: s.resultsName(),
			Filter:         filter,
			Limit:          qdrant.PtrOf(uint64(maxWindowResults)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		scored = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading recent results: %w", err)
	}

	out := make([]StoredResult, 0, len(scored))
	for _, p := range scored {
		raw := p.Payload["result_json"].GetStringValue()
		var result pipeline.StageResult
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			s.logger.Warn("skipping undecodable stored result", zap.Error(err))
			continue
		}
		out = append(out, StoredResult{
			SessionID: p.Payload["session_id"].GetStringValue(),
			Result:    result,
		})
	}
	span.SetAttributes(attribute.Int("results", len(out)))
	return out, nil
}

// SimilarSessions embeds the query and searches session summaries.
func (s *QdrantStore) SimilarSessions(ctx context.Context, query string, k int) ([]SessionMatch, error) {
	ctx, span := s.tracer.Start(ctx, "QdrantStore.SimilarSessions")
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

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	var scored []*qdrant.ScoredPoint
	err = s.retryOperation(reqCtx, func() error {
		res, err := s.client.Query(reqCtx, &qdrant.QueryPoints{
			CollectionName: s.sessionsName(),
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		scored = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching sessions: %w", err)
	}

	matches := make([]SessionMatch, 0, len(scored))
	for _, p := range scored {
		matches = append(matches, SessionMatch{
			SessionID: p.Payload["session_id"].GetStringValue(),
			Owner:     p.Payload["owner"].GetStringValue(),
			Status:    pipeline.SessionStatus(p.Payload["status"].GetStringValue()),
			Summary:   p.Payload["summary"].GetStringValue(),
			Score:     p.Score,
		})
	}
	return matches, nil
}

// Ping checks the gRPC health endpoint.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	reqCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()
	if _, err := s.client.HealthCheck(reqCtx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

// Close closes the client connection.
func (s *QdrantStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *QdrantStore) ensureOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// retryOperation retries an operation with exponential backoff on transient
// gRPC failures.
func (s *QdrantStore) retryOperation(ctx context.Context, operation func() error) error {
	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt <= s.config.RetryAttempts; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransientError(err) {
			return err
		}
		if attempt == s.config.RetryAttempts {
			break
		}

		s.logger.Debug("retrying qdrant operation after transient error",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
			zap.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("operation canceled: %w", ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	return fmt.Errorf("operation failed after %d retries: %w", s.config.RetryAttempts, lastErr)
}

// isTransientError checks if an error is transient and should be retried.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

func toQdrantPayload(fields map[string]interface{}) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(fields))
	for k, v := range fields {
		payload[k] = toQdrantValue(v)
	}
	return payload
}

func toQdrantValue(v interface{}) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}

var (
	_ Store              = (*QdrantStore)(nil)
	_ SimilaritySearcher = (*QdrantStore)(nil)
)
