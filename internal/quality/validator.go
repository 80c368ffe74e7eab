package quality

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipevet/internal/config"
	"github.com/fyrsmithlabs/pipevet/internal/embeddings"
	"github.com/fyrsmithlabs/pipevet/internal/journal"
	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
)

// Context keys the validator reads from the session's accumulated context.
const (
	requestKey   = "user_question"
	outputKey    = "generated_content"
	knowledgeKey = "knowledge_context"
)

// systemErrorIssue is the single critical issue recorded when any validator
// sub-step breaks internally. Partial results from the other sub-steps are
// still returned.
const systemErrorIssue = "validation system error"

// structuredDataFullTerms is the distinct reference-term count treated as a
// fully structured source payload.
const structuredDataFullTerms = 20

// requiredStages must each have produced at least one result for the
// generation chain to count as complete. Media and publish are optional.
var requiredStages = []pipeline.Stage{
	pipeline.StageFetch, pipeline.StageKnowledge, pipeline.StageGenerate,
}

// Validator judges a completed-or-completing session's business quality.
type Validator interface {
	// Validate scores the session against its originating request. It never
	// returns an error; internal trouble degrades to the single critical
	// issue "validation system error" with surviving partial scores.
	Validate(ctx context.Context, session *pipeline.Session, tracker journal.Tracker) *pipeline.QualityMetrics

	// UpdateConfig swaps the gate thresholds and composite weights. Embedding
	// rate and cache sizing stay fixed for the validator's lifetime.
	UpdateConfig(cfg config.QualityConfig)
}

// validator implements Validator. One instance serves all sessions; the
// embedded semantic scorer owns the only cross-session shared state.
type validator struct {
	logger *zap.Logger

	// Telemetry
	tracer       trace.Tracer
	meter        metric.Meter
	validations  metric.Int64Counter
	gateFailures metric.Int64Counter

	scorers []Scorer

	mu  sync.RWMutex
	cfg config.QualityConfig
}

// NewValidator creates the business-quality validator. A nil provider
// disables semantic similarity, which then scores neutral.
func NewValidator(cfg config.QualityConfig, provider embeddings.Provider, logger *zap.Logger) Validator {
	if logger == nil {
		logger = zap.NewNop()
	}

	v := &validator{
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
		cfg:    cfg,
		scorers: []Scorer{
			NewKeywordScorer(),
			NewDomainScorer(),
			NewRelevanceScorer(),
			NewSemanticScorer(provider, cfg.MaxEmbedCallsPerMinute, cfg.EmbedCacheSize, logger),
			NewAuthenticityScorer(),
		},
	}

	v.initMetrics()

	return v
}

// initMetrics initializes OpenTelemetry metrics.
func (v *validator) initMetrics() {
	var err error

	v.validations, err = v.meter.Int64Counter(
		"pipevet.quality.validations_total",
		metric.WithDescription("Total number of business-quality validations"),
		metric.WithUnit("{validation}"),
	)
	if err != nil {
		v.logger.Warn("failed to create validation counter", zap.Error(err))
	}

	v.gateFailures, err = v.meter.Int64Counter(
		"pipevet.quality.gate_failures_total",
		metric.WithDescription("Total number of quality gate failures"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		v.logger.Warn("failed to create gate failure counter", zap.Error(err))
	}
}

// UpdateConfig swaps thresholds and weights for subsequent validations.
func (v *validator) UpdateConfig(cfg config.QualityConfig) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cfg = cfg
}

func (v *validator) snapshotConfig() config.QualityConfig {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cfg
}

// Validate runs every sub-scorer, the response checklist, and the aggregate
// rollups, then applies the three independent gates.
func (v *validator) Validate(ctx context.Context, session *pipeline.Session, tracker journal.Tracker) *pipeline.QualityMetrics {
	metrics := &pipeline.QualityMetrics{Scores: make(map[string]float64)}

	if session == nil {
		metrics.CriticalIssues = append(metrics.CriticalIssues, systemErrorIssue)
		return metrics
	}

	ctx, span := v.tracer.Start(ctx, "quality.validate",
		trace.WithAttributes(attribute.String("session.id", session.ID)))
	defer span.End()

	cfg := v.snapshotConfig()

	var contextMap map[string]interface{}
	if tracker != nil {
		contextMap = tracker.CurrentContext(ctx, session.ID)
	}
	in := buildScoreInput(contextMap)

	systemError := false

	if in.Output == "" {
		metrics.CriticalIssues = append(metrics.CriticalIssues,
			"generated content missing from session context")
	}

	for _, scorer := range v.scorers {
		score, err := v.runScorer(ctx, scorer, in)
		if err != nil {
			v.logger.Error("quality sub-score failed",
				zap.String("session_id", session.ID),
				zap.String("score", scorer.Name()),
				zap.Error(err))
			systemError = true
			continue
		}
		metrics.Scores[scorer.Name()] = score
	}

	composite := Composite(metrics.Scores, cfg.Weights)
	metrics.Scores[ScoreComposite] = composite

	items := evaluateChecklist(in, cfg)
	responseQuality := checklistScore(items)
	metrics.Scores[ScoreResponseQuality] = responseQuality
	for _, item := range items {
		if !item.Passed {
			metrics.Recommendations = append(metrics.Recommendations, item.Suggestion)
		}
	}

	completeness := chainCompleteness(session.Results)
	metrics.Scores[ScoreChainCompleteness] = completeness
	metrics.Scores[ScoreStructuredData] = structuredDataScore(in.Context)
	v.scoreContextPreservation(ctx, session.ID, tracker, metrics, &systemError)
	metrics.Scores[ScoreUserExperience] = userExperience(session, in.Output, completeness)

	// Misrouted domains get a recommendation naming the expected domain so
	// the failure is actionable, not just a low score.
	if domain, ok := classifyDomain(in.Request); ok && metrics.Scores[ScoreDomainMatch] == 0 {
		metrics.Recommendations = append(metrics.Recommendations,
			fmt.Sprintf("Align the generated guidance with the request's %s domain.", domain))
	}

	gatesPassed := true
	gatesPassed = v.applyGate(ctx, metrics, "relevance", composite, cfg.RelevanceGate) && gatesPassed
	gatesPassed = v.applyGate(ctx, metrics, "response_quality", responseQuality, cfg.ResponseQualityGate) && gatesPassed
	gatesPassed = v.applyGate(ctx, metrics, "authenticity", metrics.Scores[ScoreAuthenticity], cfg.AuthenticityGate) && gatesPassed

	if systemError {
		metrics.CriticalIssues = append(metrics.CriticalIssues, systemErrorIssue)
	}

	metrics.OverallValid = gatesPassed && len(metrics.CriticalIssues) == 0

	span.SetAttributes(
		attribute.Bool("quality.valid", metrics.OverallValid),
		attribute.Float64("quality.composite", composite),
	)
	if v.validations != nil {
		v.validations.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("valid", metrics.OverallValid),
		))
	}

	return metrics
}

// applyGate checks one independent threshold gate. Passing requires the
// score to strictly exceed the gate; a failure is a warning, never critical.
func (v *validator) applyGate(ctx context.Context, metrics *pipeline.QualityMetrics, gate string, score, threshold float64) bool {
	if score > threshold {
		return true
	}
	metrics.Warnings = append(metrics.Warnings,
		fmt.Sprintf("%s score %.2f did not clear gate %.2f", gate, score, threshold))
	if v.gateFailures != nil {
		v.gateFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("gate", gate)))
	}
	return false
}

// runScorer shields the validator from a broken scorer implementation.
func (v *validator) runScorer(ctx context.Context, scorer Scorer, in ScoreInput) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scorer %s panicked: %v", scorer.Name(), r)
		}
	}()
	return scorer.Score(ctx, in)
}

// scoreContextPreservation delegates to the journal's integrity check. A
// failed check counts as an internal error; detected loss is a warning with
// the score still recorded.
func (v *validator) scoreContextPreservation(ctx context.Context, sessionID string, tracker journal.Tracker, metrics *pipeline.QualityMetrics, systemError *bool) {
	if tracker == nil {
		*systemError = true
		return
	}
	res := tracker.ValidateIntegrity(ctx, sessionID)
	if res == nil || !res.Success {
		v.logger.Error("context integrity check failed",
			zap.String("session_id", sessionID))
		*systemError = true
		return
	}
	metrics.Scores[ScoreContextPreservation] = clamp01(res.Score / 100)
	if res.LossDetected {
		metrics.Warnings = append(metrics.Warnings,
			"context data loss detected during the pipeline run")
	}
}

// buildScoreInput extracts the scoring texts from the accumulated context.
func buildScoreInput(contextMap map[string]interface{}) ScoreInput {
	if contextMap == nil {
		contextMap = map[string]interface{}{}
	}
	return ScoreInput{
		Request:   stringField(contextMap, requestKey),
		Output:    stringField(contextMap, outputKey),
		Knowledge: flattenText(contextMap[knowledgeKey]),
		Context:   contextMap,
	}
}

// stringField finds the first string value stored under key, searching the
// top level first and nested maps and slices after.
func stringField(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	for _, v := range m {
		if s, ok := findString(key, v); ok {
			return s
		}
	}
	return ""
}

func findString(key string, v interface{}) (string, bool) {
	switch val := v.(type) {
	case map[string]interface{}:
		if s, ok := val[key].(string); ok {
			return s, true
		}
		for _, nested := range val {
			if s, ok := findString(key, nested); ok {
				return s, true
			}
		}
	case []interface{}:
		for _, item := range val {
			if s, ok := findString(key, item); ok {
				return s, true
			}
		}
	}
	return "", false
}

// flattenText joins every string leaf under the value in deterministic
// order.
func flattenText(v interface{}) string {
	var parts []string
	collectStrings(v, &parts)
	return strings.Join(parts, " ")
}

func collectStrings(v interface{}, parts *[]string) {
	switch val := v.(type) {
	case string:
		*parts = append(*parts, val)
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectStrings(val[k], parts)
		}
	case []interface{}:
		for _, item := range val {
			collectStrings(item, parts)
		}
	}
}

// chainCompleteness is the fraction of required stages that produced at
// least one result, passing or not.
func chainCompleteness(results []pipeline.StageResult) float64 {
	seen := make(map[pipeline.Stage]bool, len(results))
	for _, r := range results {
		seen[r.StageID] = true
	}
	present := 0
	for _, stage := range requiredStages {
		if seen[stage] {
			present++
		}
	}
	return float64(present) / float64(len(requiredStages))
}

// structuredDataScore rates how much structured source material the session
// carried, scaled by distinct reference terms.
func structuredDataScore(contextMap map[string]interface{}) float64 {
	terms := referenceTerms(contextMap)
	if len(terms) == 0 {
		return 0
	}
	return min1(float64(len(terms)) / structuredDataFullTerms)
}

// userExperience folds the latency bucket, chain completeness, and a
// personalization heuristic into one composite.
func userExperience(session *pipeline.Session, output string, completeness float64) float64 {
	elapsed := time.Since(session.StartedAt)
	if !session.CompletedAt.IsZero() {
		elapsed = session.CompletedAt.Sub(session.StartedAt)
	}
	latency := float64(pipeline.PerformanceScore(elapsed)) / 100

	return clamp01((latency + completeness + personalization(output)) / 3)
}

// personalization measures how directly the output addresses the reader.
func personalization(output string) float64 {
	tokens := tokenize(output)
	if len(tokens) == 0 {
		return 0
	}
	density := float64(countOccurrences(tokens, voiceMarkers)) / float64(len(tokens))
	return min1(density / 0.05)
}

var _ Validator = (*validator)(nil)
