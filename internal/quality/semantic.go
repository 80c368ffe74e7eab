package quality

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/pipevet/internal/embeddings"
)

// SemanticScorer measures cosine similarity between embeddings of the
// request and the output. Embedding calls are cached by content hash and
// rate limited; any provider trouble degrades to a neutral score, never an
// error.
//
// One scorer instance is shared across all concurrent sessions: the cache
// tolerates redundant concurrent writes and the limiter owns the only
// cross-session critical section.
type SemanticScorer struct {
	provider embeddings.Provider
	logger   *zap.Logger
	gate     *rateGate

	cache     sync.Map // sha256 hex -> []float32
	cacheLen  atomic.Int64
	cacheSize int64
}

// NewSemanticScorer creates the embedding similarity scorer. A nil provider
// is allowed and scores neutral.
func NewSemanticScorer(provider embeddings.Provider, maxCallsPerMinute, cacheSize int, logger *zap.Logger) *SemanticScorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	return &SemanticScorer{
		provider:  provider,
		logger:    logger,
		gate:      newRateGate(maxCallsPerMinute),
		cacheSize: int64(cacheSize),
	}
}

// Name returns the sub-score key.
func (s *SemanticScorer) Name() string { return ScoreSemanticSimilarity }

// Score embeds both texts and returns their cosine similarity clamped to
// [0,1]. Missing text, a nil provider, or a provider failure scores neutral.
func (s *SemanticScorer) Score(ctx context.Context, in ScoreInput) (float64, error) {
	if s.provider == nil || in.Request == "" || in.Output == "" {
		return neutralScore, nil
	}

	requestVec, err := s.embed(ctx, in.Request)
	if err != nil {
		s.logger.Warn("request embedding failed, scoring neutral", zap.Error(err))
		return neutralScore, nil
	}
	outputVec, err := s.embed(ctx, in.Output)
	if err != nil {
		s.logger.Warn("output embedding failed, scoring neutral", zap.Error(err))
		return neutralScore, nil
	}

	return clamp01(cosineSimilarity(requestVec, outputVec)), nil
}

// embed returns the cached vector for the text, embedding through the rate
// gate on a miss.
func (s *SemanticScorer) embed(ctx context.Context, text string) ([]float32, error) {
	key := hashText(text)
	if cached, ok := s.cache.Load(key); ok {
		return cached.([]float32), nil
	}

	if err := s.gate.wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate gate: %w", err)
	}

	vec, err := s.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	// Generational eviction: past the bound the whole cache resets rather
	// than tracking recency. Concurrent duplicate writes are idempotent.
	if s.cacheLen.Add(1) > s.cacheSize {
		s.cache.Clear()
		s.cacheLen.Store(1)
	}
	s.cache.Store(key, vec)
	return vec, nil
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// cosineSimilarity computes the cosine of two vectors; mismatched or
// zero-norm vectors yield 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rateGate bounds embedding calls per minute. The clock and sleep functions
// are injectable so tests can verify queuing without real waiting.
type rateGate struct {
	limiter *rate.Limiter
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// newRateGate builds a gate allowing callsPerMinute sustained calls with a
// burst of the same size. Non-positive rates disable the gate.
func newRateGate(callsPerMinute int) *rateGate {
	if callsPerMinute <= 0 {
		return nil
	}
	return &rateGate{
		limiter: rate.NewLimiter(rate.Limit(float64(callsPerMinute)/60.0), callsPerMinute),
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// wait reserves one call and sleeps out the required delay.
func (g *rateGate) wait(ctx context.Context) error {
	if g == nil {
		return nil
	}
	reservation := g.limiter.ReserveN(g.now(), 1)
	if !reservation.OK() {
		return fmt.Errorf("rate limit cannot satisfy request")
	}
	return g.sleep(ctx, reservation.DelayFrom(g.now()))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Scorer = (*SemanticScorer)(nil)
