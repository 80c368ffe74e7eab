package journal

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

	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
)

const instrumentationName = "github.com/fyrsmithlabs/pipevet/internal/journal"

// outputKeySuffix namespaces the per-stage bookkeeping key in the context.
const outputKeySuffix = "_output"

// Tracker owns session journals. One tracker instance serves all concurrent
// sessions; per-journal state is guarded by the tracker's lock.
type Tracker interface {
	// Initialize creates a journal for the session. Fails softly with
	// AlreadyInitialized when the ID is already active.
	Initialize(ctx context.Context, sessionID string, initialContext map[string]interface{}) *InitResult

	// Update records one stage boundary: checks the cumulative critical-field
	// policy, merges the stage output, and appends a snapshot.
	Update(ctx context.Context, sessionID string, stageID pipeline.Stage, stageInput, stageOutput map[string]interface{}) *UpdateResult

	// ValidateIntegrity recomputes survival of every critical field seen in
	// the initial context and returns the integrity score.
	ValidateIntegrity(ctx context.Context, sessionID string) *IntegrityResult

	// FlowReport returns the ordered per-stage diff report.
	FlowReport(ctx context.Context, sessionID string) *FlowResult

	// CurrentContext returns a deep copy of the session's accumulated
	// context, or nil when no journal exists.
	CurrentContext(ctx context.Context, sessionID string) map[string]interface{}

	// Snapshots returns copies of the session's context snapshots.
	Snapshots(ctx context.Context, sessionID string) []pipeline.ContextSnapshot

	// Retire removes the journal, making the session ID reusable.
	Retire(ctx context.Context, sessionID string)

	// Close shuts the tracker down. Subsequent calls fail softly.
	Close() error
}

// tracker implements Tracker.
type tracker struct {
	policy *Policy
	logger *zap.Logger

	// Telemetry
	tracer        trace.Tracer
	meter         metric.Meter
	updateCounter metric.Int64Counter
	lossCounter   metric.Int64Counter

	mu       sync.RWMutex
	journals map[string]*Journal
	closed   bool
}

// NewTracker creates a context tracker with the given critical-field policy.
func NewTracker(policy *Policy, logger *zap.Logger) Tracker {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &tracker{
		policy:   policy,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
		journals: make(map[string]*Journal),
	}

	t.initMetrics()

	return t
}

// initMetrics initializes OpenTelemetry metrics.
func (t *tracker) initMetrics() {
	var err error

	t.updateCounter, err = t.meter.Int64Counter(
		"pipevet.journal.updates_total",
		metric.WithDescription("Total number of context journal updates"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		t.logger.Warn("failed to create update counter", zap.Error(err))
	}

	t.lossCounter, err = t.meter.Int64Counter(
		"pipevet.journal.data_loss_events_total",
		metric.WithDescription("Total number of data loss events recorded"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		t.logger.Warn("failed to create loss counter", zap.Error(err))
	}
}

// Initialize creates a journal for the session.
func (t *tracker) Initialize(ctx context.Context, sessionID string, initialContext map[string]interface{}) (res *InitResult) {
	ctx, span := t.tracer.Start(ctx, "journal.initialize")
	defer span.End()
	defer softFail(t.logger, "initialize", func(msg string) {
		res = &InitResult{Success: false, Error: msg}
	})

	span.SetAttributes(attribute.String("session_id", sessionID))

	if sessionID == "" {
		return &InitResult{Success: false, Error: "session id is required"}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return &InitResult{Success: false, Error: "tracker is closed"}
	}
	if _, exists := t.journals[sessionID]; exists {
		return &InitResult{Success: false, Error: fmt.Sprintf("AlreadyInitialized: journal for session %s is active", sessionID)}
	}

	initial := pipeline.CopyContext(initialContext)
	j := &Journal{
		SessionID: sessionID,
		Initial:   initial,
		Current:   pipeline.CopyContext(initialContext),
		CreatedAt: time.Now(),
	}
	t.journals[sessionID] = j

	t.logger.Debug("journal initialized",
		zap.String("session_id", sessionID),
		zap.Int("context_size", len(initial)),
	)

	return &InitResult{Success: true, ContextSize: len(initial)}
}

// Update records one stage boundary.
func (t *tracker) Update(ctx context.Context, sessionID string, stageID pipeline.Stage, stageInput, stageOutput map[string]interface{}) (res *UpdateResult) {
	ctx, span := t.tracer.Start(ctx, "journal.update")
	defer span.End()
	defer softFail(t.logger, "update", func(msg string) {
		res = &UpdateResult{Success: false, Error: msg}
	})

	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("stage", string(stageID)),
	)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return &UpdateResult{Success: false, Error: "tracker is closed"}
	}
	j, ok := t.journals[sessionID]
	if !ok {
		return &UpdateResult{Success: false, Error: fmt.Sprintf("no journal for session %s", sessionID)}
	}

	// Critical-field check against the pre-merge context: a required field
	// must be a top-level key of the current context or reachable anywhere
	// inside the stage output.
	required := t.policy.RequiredAt(stageID)
	preserved := make([]string, 0, len(required))
	var losses []LossEvent
	for _, field := range required {
		if _, top := j.Current[field]; top || pipeline.FieldReachable(field, stageOutput) {
			preserved = append(preserved, field)
			continue
		}
		event := LossEvent{
			Field:      field,
			Stage:      stageID,
			Severity:   pipeline.SeverityWarning,
			DetectedAt: time.Now(),
		}
		losses = append(losses, event)
		j.Losses = append(j.Losses, event)
		j.LossDetected = true

		t.logger.Warn("critical field unreachable at stage boundary",
			zap.String("session_id", sessionID),
			zap.String("stage", string(stageID)),
			zap.String("field", field),
		)
		if t.lossCounter != nil {
			t.lossCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("stage", string(stageID)),
			))
		}
	}

	// Merge: the stage output lands under its bookkeeping key, and top-level
	// keys the context has not seen before are shallow-merged in. Existing
	// keys are never overwritten, which keeps repeated identical updates
	// idempotent.
	output := pipeline.CopyContext(stageOutput)
	j.Current[string(stageID)+outputKeySuffix] = output
	for k, v := range output {
		if _, exists := j.Current[k]; !exists {
			j.Current[k] = v
		}
	}
	j.LastOutput = output

	// Snapshot and transformation record against the previous boundary.
	prev := j.Initial
	if n := len(j.Snapshots); n > 0 {
		prev = j.Snapshots[n-1].Context
	}
	snapshot := pipeline.NewSnapshot(stageID, j.Current)
	j.Snapshots = append(j.Snapshots, snapshot)
	j.Transforms = append(j.Transforms, diffTopLevel(stageID, prev, snapshot.Context))

	if t.updateCounter != nil {
		t.updateCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", string(stageID)),
			attribute.Bool("data_loss", len(losses) > 0),
		))
	}

	t.logger.Debug("journal updated",
		zap.String("session_id", sessionID),
		zap.String("stage", string(stageID)),
		zap.Int("input_size", len(stageInput)),
		zap.Int("output_size", len(stageOutput)),
		zap.Int("context_size", len(j.Current)),
		zap.Int("loss_events", len(losses)),
	)

	return &UpdateResult{
		Success:     true,
		Preserved:   preserved,
		DataLoss:    losses,
		ContextSize: len(j.Current),
	}
}

// ValidateIntegrity recomputes critical-field survival.
//
// Survival is judged against the latest stage boundary: a field counts as
// preserved when it is reachable in the most recent stage output or still a
// top-level key of the context. The accumulated journal keeps everything
// ever merged, so it cannot by itself witness that a later stage dropped a
// field the earlier stages carried.
func (t *tracker) ValidateIntegrity(ctx context.Context, sessionID string) (res *IntegrityResult) {
	_, span := t.tracer.Start(ctx, "journal.validate_integrity")
	defer span.End()
	defer softFail(t.logger, "validate_integrity", func(msg string) {
		res = &IntegrityResult{Success: false, Error: msg}
	})

	span.SetAttributes(attribute.String("session_id", sessionID))

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return &IntegrityResult{Success: false, Error: "tracker is closed"}
	}
	j, ok := t.journals[sessionID]
	if !ok {
		return &IntegrityResult{Success: false, Error: fmt.Sprintf("no journal for session %s", sessionID)}
	}

	// Critical fields seen in the initial context.
	var total []string
	for _, field := range t.policy.Universe() {
		if pipeline.FieldReachable(field, j.Initial) {
			total = append(total, field)
		}
	}

	score := 100.0
	var missing []string
	if len(total) > 0 {
		preserved := 0
		for _, field := range total {
			if t.fieldSurvives(j, field) {
				preserved++
				continue
			}
			missing = append(missing, field)
			t.recordMissing(j, field)
		}
		score = float64(preserved) / float64(len(total)) * 100
	}
	sort.Strings(missing)

	return &IntegrityResult{
		Success:       true,
		Score:         score,
		MissingFields: missing,
		EnrichedCount: enrichedCount(j),
		LossDetected:  j.LossDetected,
	}
}

// fieldSurvives reports whether a critical field is still alive at the most
// recent boundary. Before any update, the initial context is the boundary.
func (t *tracker) fieldSurvives(j *Journal, field string) bool {
	if j.LastOutput == nil {
		return pipeline.FieldReachable(field, j.Initial)
	}
	if pipeline.FieldReachable(field, j.LastOutput) {
		return true
	}
	_, top := j.Current[field]
	return top
}

// recordMissing backfills a loss event for a field integrity found missing
// without a prior event, so a missing field always has a recorded cause.
func (t *tracker) recordMissing(j *Journal, field string) {
	for _, e := range j.Losses {
		if e.Field == field {
			return
		}
	}
	stage := pipeline.Stage("")
	if n := len(j.Snapshots); n > 0 {
		stage = j.Snapshots[n-1].Stage
	}
	j.Losses = append(j.Losses, LossEvent{
		Field:      field,
		Stage:      stage,
		Severity:   pipeline.SeverityWarning,
		DetectedAt: time.Now(),
	})
	j.LossDetected = true
}

// FlowReport returns the ordered per-stage diff report.
func (t *tracker) FlowReport(ctx context.Context, sessionID string) (res *FlowResult) {
	_, span := t.tracer.Start(ctx, "journal.flow_report")
	defer span.End()
	defer softFail(t.logger, "flow_report", func(msg string) {
		res = &FlowResult{Success: false, Error: msg}
	})

	span.SetAttributes(attribute.String("session_id", sessionID))

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return &FlowResult{Success: false, Error: "tracker is closed"}
	}
	j, ok := t.journals[sessionID]
	if !ok {
		return &FlowResult{Success: false, Error: fmt.Sprintf("no journal for session %s", sessionID)}
	}

	stages := make([]StageFlow, 0, len(j.Snapshots))
	for i, snap := range j.Snapshots {
		flow := StageFlow{
			Stage:       snap.Stage,
			Hash:        snap.Hash,
			ContextSize: len(snap.Context),
			Timestamp:   snap.Timestamp,
		}
		if i < len(j.Transforms) {
			flow.Added = j.Transforms[i].Added
			flow.Removed = j.Transforms[i].Removed
			flow.Modified = j.Transforms[i].Modified
		}
		stages = append(stages, flow)
	}

	growth := 0.0
	if len(j.Initial) > 0 {
		growth = float64(len(j.Current)-len(j.Initial)) / float64(len(j.Initial)) * 100
	} else if len(j.Current) > 0 {
		growth = 100
	}

	losses := make([]LossEvent, len(j.Losses))
	copy(losses, j.Losses)

	return &FlowResult{
		Success:       true,
		Stages:        stages,
		GrowthPercent: growth,
		Losses:        losses,
	}
}

// CurrentContext returns a deep copy of the accumulated context.
func (t *tracker) CurrentContext(_ context.Context, sessionID string) map[string]interface{} {
	t.mu.RLock()
	defer t.mu.RUnlock()

	j, ok := t.journals[sessionID]
	if !ok {
		return nil
	}
	return pipeline.CopyContext(j.Current)
}

// Snapshots returns copies of the session's context snapshots.
func (t *tracker) Snapshots(_ context.Context, sessionID string) []pipeline.ContextSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	j, ok := t.journals[sessionID]
	if !ok {
		return nil
	}
	out := make([]pipeline.ContextSnapshot, len(j.Snapshots))
	for i, snap := range j.Snapshots {
		out[i] = pipeline.ContextSnapshot{
			Stage:     snap.Stage,
			Context:   pipeline.CopyContext(snap.Context),
			Hash:      snap.Hash,
			Timestamp: snap.Timestamp,
		}
	}
	return out
}

// Retire removes the journal, making the session ID reusable.
func (t *tracker) Retire(_ context.Context, sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.journals[sessionID]; ok {
		delete(t.journals, sessionID)
		t.logger.Debug("journal retired", zap.String("session_id", sessionID))
	}
}

// Close shuts the tracker down.
func (t *tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	t.journals = make(map[string]*Journal)
	return nil
}

// diffTopLevel computes the added/removed/modified top-level keys between
// two context maps.
func diffTopLevel(stage pipeline.Stage, prev, next map[string]interface{}) Transformation {
	tr := Transformation{Stage: stage}
	for k, v := range next {
		old, ok := prev[k]
		if !ok {
			tr.Added = append(tr.Added, k)
			continue
		}
		if !valuesEqual(old, v) {
			tr.Modified = append(tr.Modified, k)
		}
	}
	for k := range prev {
		if _, ok := next[k]; !ok {
			tr.Removed = append(tr.Removed, k)
		}
	}
	sort.Strings(tr.Added)
	sort.Strings(tr.Removed)
	sort.Strings(tr.Modified)
	return tr
}

// valuesEqual compares context values by content hash so nested maps compare
// by value regardless of iteration order.
func valuesEqual(a, b interface{}) bool {
	return pipeline.HashContext(map[string]interface{}{"v": a}) ==
		pipeline.HashContext(map[string]interface{}{"v": b})
}

// enrichedCount counts top-level keys added since initialization, excluding
// the per-stage bookkeeping keys.
func enrichedCount(j *Journal) int {
	count := 0
	for k := range j.Current {
		if strings.HasSuffix(k, outputKeySuffix) {
			continue
		}
		if _, ok := j.Initial[k]; !ok {
			count++
		}
	}
	return count
}

// softFail converts a panic in a public tracker method into a soft failure
// result. Context tracking must never abort the pipeline it observes.
func softFail(logger *zap.Logger, op string, set func(msg string)) {
	if r := recover(); r != nil {
		msg := fmt.Sprintf("internal error in %s: %v", op, r)
		logger.Error("journal operation panicked",
			zap.String("operation", op),
			zap.Any("panic", r),
		)
		set(msg)
	}
}
