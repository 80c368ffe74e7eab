package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipevet/internal/alerting"
	"github.com/fyrsmithlabs/pipevet/internal/health"
	"github.com/fyrsmithlabs/pipevet/internal/journal"
	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
	"github.com/fyrsmithlabs/pipevet/internal/quality"
	"github.com/fyrsmithlabs/pipevet/internal/secrets"
	"github.com/fyrsmithlabs/pipevet/internal/stages"
	"github.com/fyrsmithlabs/pipevet/internal/store"
)

const instrumentationName = "github.com/fyrsmithlabs/pipevet/internal/orchestrator"

// persistTimeout bounds one background archive write.
const persistTimeout = 10 * time.Second

// ErrDuplicateSession is reported when a session ID is started while still
// active.
var ErrDuplicateSession = errors.New("duplicate session")

// Service drives the session lifecycle: start, per-stage validation,
// business validation, completion, and the read surfaces built on top.
//
// Every method returns a soft-fail result instead of raising; the engine
// must never be able to abort the pipeline It observes.
type Service interface {
	// StartSession creates a session and its journal. Reusing an active ID
	// fails with ErrDuplicateSession in the result error.
	StartSession(ctx context.Context, id, owner string, initialContext map[string]interface{}) *StartResult

	// ValidateStage validates one stage execution and appends the result.
	// Retries append; history is never rewritten.
	ValidateStage(ctx context.Context, id string, stageID pipeline.Stage, input, output map[string]interface{}, durationMS int64) *ValidateResult

	// ValidateBusinessLogic runs quality validation over the full session.
	// Critical findings force the session to FAILED and fire an alert.
	// Re-running returns the stored metrics.
	ValidateBusinessLogic(ctx context.Context, id string) *BusinessResult

	// CompleteSession finalizes, archives synchronously, and evicts the
	// session from the active set.
	CompleteSession(ctx context.Context, id string) *CompleteResult

	// GetSystemHealth returns the health rollup plus the active session
	// count.
	GetSystemHealth(ctx context.Context) *SystemHealth

	// GetSessionReport builds the full report from the active set or, for
	// completed sessions, from the archive.
	GetSessionReport(ctx context.Context, id string) *SessionReport

	// ActiveSessionCount returns the number of live sessions.
	ActiveSessionCount() int

	// Close refuses new sessions and waits for in-flight archive writes.
	Close() error
}

// activeSession pairs a live session with its lock. One goroutine drives a
// session; the lock covers concurrent readers such as reports.
type activeSession struct {
	mu      sync.Mutex
	session *pipeline.Session
}

type service struct {
	registry *stages.Registry
	tracker  journal.Tracker
	quality  quality.Validator
	store    store.Store
	health   *health.Aggregator
	alerts   alerting.Sink
	scrubber secrets.Scrubber
	logger   *zap.Logger
	tracer   trace.Tracer
	meter    metric.Meter

	sessionsStarted   metric.Int64Counter
	sessionsCompleted metric.Int64Counter
	stageValidations  metric.Int64Counter
	alertsFired       metric.Int64Counter

	mu     sync.RWMutex
	active map[string]*activeSession
	closed bool

	wg sync.WaitGroup
}

// NewService wires the lifecycle engine. Registry, tracker, quality
// validator, and store are required; the aggregator, alert sink, and
// scrubber may be nil (health reads fail softly, alerts are dropped,
// snapshots pass through unscrubbed).
func NewService(
	registry *stages.Registry,
	tracker journal.Tracker,
	validator quality.Validator,
	st store.Store,
	aggregator *health.Aggregator,
	sink alerting.Sink,
	scrubber secrets.Scrubber,
	logger *zap.Logger,
) (Service, error) {
	if registry == nil {
		return nil, errors.New("stage registry cannot be nil")
	}
	if tracker == nil {
		return nil, errors.New("journal tracker cannot be nil")
	}
	if validator == nil {
		return nil, errors.New("quality validator cannot be nil")
	}
	if st == nil {
		return nil, errors.New("store cannot be nil")
	}
	if scrubber == nil {
		scrubber = &secrets.NoopScrubber{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &service{
		registry: registry,
		tracker:  tracker,
		quality:  validator,
		store:    st,
		health:   aggregator,
		alerts:   sink,
		scrubber: scrubber,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
		active:   make(map[string]*activeSession),
	}
	s.initMetrics()
	return s, nil
}

func (s *service) initMetrics() {
	var err error
	if s.sessionsStarted, err = s.meter.Int64Counter("pipevet.orchestrator.sessions_started_total",
		metric.WithDescription("Sessions started")); err != nil {
		s.logger.Warn("failed to create sessions started counter", zap.Error(err))
	}
	if s.sessionsCompleted, err = s.meter.Int64Counter("pipevet.orchestrator.sessions_completed_total",
		metric.WithDescription("Sessions completed and archived")); err != nil {
		s.logger.Warn("failed to create sessions completed counter", zap.Error(err))
	}
	if s.stageValidations, err = s.meter.Int64Counter("pipevet.orchestrator.stage_validations_total",
		metric.WithDescription("Stage validations by stage and outcome")); err != nil {
		s.logger.Warn("failed to create stage validations counter", zap.Error(err))
	}
	if s.alertsFired, err = s.meter.Int64Counter("pipevet.orchestrator.critical_alerts_total",
		metric.WithDescription("Critical session alerts fired")); err != nil {
		s.logger.Warn("failed to create alerts counter", zap.Error(err))
	}
}

func (s *service) StartSession(ctx context.Context, id, owner string, initialContext map[string]interface{}) (res *StartResult) {
	ctx, span := s.tracer.Start(ctx, "orchestrator.start_session",
		trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()
	defer softFail(s.logger, "start_session", func(msg string) { res = &StartResult{Error: msg} })

	if id == "" {
		return &StartResult{Error: "session id cannot be empty"}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return &StartResult{Error: "orchestrator is closed"}
	}
	if _, exists := s.active[id]; exists {
		s.mu.Unlock()
		return &StartResult{Error: fmt.Sprintf("%s: %s", ErrDuplicateSession, id)}
	}
	sess := pipeline.NewSession(id, owner)
	s.active[id] = &activeSession{session: sess}
	s.mu.Unlock()

	init := s.tracker.Initialize(ctx, id, initialContext)
	if !init.Success {
		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()
		return &StartResult{Error: fmt.Sprintf("journal initialization failed: %s", init.Error)}
	}

	if s.sessionsStarted != nil {
		s.sessionsStarted.Add(ctx, 1)
	}
	s.logger.Info("session started",
		zap.String("session_id", id),
		zap.String("owner", owner),
		zap.Int("initial_context_size", init.ContextSize),
	)
	return &StartResult{Success: true, SessionID: id, State: sess.State}
}

func (s *service) ValidateStage(ctx context.Context, id string, stageID pipeline.Stage, input, output map[string]interface{}, durationMS int64) (res *ValidateResult) {
	ctx, span := s.tracer.Start(ctx, "orchestrator.validate_stage",
		trace.WithAttributes(
			attribute.String("session.id", id),
			attribute.String("stage", string(stageID)),
		))
	defer span.End()
	defer softFail(s.logger, "validate_stage", func(msg string) { res = &ValidateResult{Error: msg} })

	as, ok := s.lookup(id)
	if !ok {
		return &ValidateResult{Error: fmt.Sprintf("no active session %s", id)}
	}
	if output == nil {
		output = map[string]interface{}{}
	}

	as.mu.Lock()
	defer as.mu.Unlock()
	sess := as.session

	if err := sess.State.CanTransition(pipeline.StateStageValidated); err != nil {
		return &ValidateResult{Error: err.Error()}
	}

	outOfOrder := orderAnomaly(sess, stageID)

	result := s.runValidator(ctx, id, stageID, input, output, durationMS, sess)
	result.OutOfOrder = outOfOrder

	// Failures become issues; mechanically recoverable ones get one fix
	// attempt before the journal merge so repairs survive in context.
	if !result.Passed {
		issue := issueFor(result)
		if result.AutoFixable {
			if fixer, registered := s.registry.Fixer(stageID); registered {
				s.attemptFix(ctx, fixer, result, output, sess, &issue)
			}
		}
		sess.Issues = append(sess.Issues, issue)
	}

	upd := s.tracker.Update(ctx, id, stageID, input, output)
	if !upd.Success {
		s.logger.Warn("journal update failed",
			zap.String("session_id", id),
			zap.String("stage", string(stageID)),
			zap.String("error", upd.Error),
		)
	} else {
		for _, loss := range upd.DataLoss {
			sess.Issues = append(sess.Issues, lossIssue(loss))
		}
	}

	sess.Results = append(sess.Results, *result)
	sess.Status = pipeline.DeriveStatus(sess.Results)
	if sess.Status == pipeline.StatusFailed {
		sess.State = pipeline.StateFailed
	} else {
		sess.State = pipeline.StateStageValidated
	}

	s.persistResultAsync(id, *result)

	if s.stageValidations != nil {
		s.stageValidations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", string(stageID)),
			attribute.Bool("passed", result.Passed),
		))
	}

	return &ValidateResult{
		Success:    true,
		Result:     result,
		Status:     sess.EffectiveStatus(),
		AutoFixed:  result.AutoFixed,
		OutOfOrder: outOfOrder,
	}
}

func (s *service) ValidateBusinessLogic(ctx context.Context, id string) (res *BusinessResult) {
	ctx, span := s.tracer.Start(ctx, "orchestrator.validate_business_logic",
		trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()
	defer softFail(s.logger, "validate_business_logic", func(msg string) { res = &BusinessResult{Error: msg} })

	as, ok := s.lookup(id)
	if !ok {
		return &BusinessResult{Error: fmt.Sprintf("no active session %s", id)}
	}

	as.mu.Lock()
	defer as.mu.Unlock()
	sess := as.session

	if sess.Quality == nil {
		s.runBusinessValidation(ctx, sess)
	}
	return &BusinessResult{Success: true, Quality: sess.Quality, Status: sess.EffectiveStatus()}
}

func (s *service) CompleteSession(ctx context.Context, id string) (res *CompleteResult) {
	ctx, span := s.tracer.Start(ctx, "orchestrator.complete_session",
		trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()
	defer softFail(s.logger, "complete_session", func(msg string) { res = &CompleteResult{Error: msg} })

	as, ok := s.lookup(id)
	if !ok {
		return &CompleteResult{Error: fmt.Sprintf("no active session %s", id)}
	}

	as.mu.Lock()
	defer as.mu.Unlock()
	sess := as.session

	if sess.Quality == nil {
		s.runBusinessValidation(ctx, sess)
	}

	sess.CompletedAt = time.Now()
	sess.Performance = performanceReport(sess)
	if sess.State != pipeline.StateFailed {
		sess.State = pipeline.StateCompleted
	}

	// Snapshots pass through the scrubber on their way into the archive.
	sess.Snapshots = s.scrubbedSnapshots(ctx, id)

	archived := sess.Clone()
	saveErr := s.store.SaveSession(ctx, archived)
	if saveErr != nil {
		s.logger.Error("final session save failed",
			zap.String("session_id", id),
			zap.Error(saveErr),
		)
	}

	// Completion is final either way; the save error is surfaced in the
	// result, not retried against a live session.
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
	s.tracker.Retire(ctx, id)

	if s.sessionsCompleted != nil {
		s.sessionsCompleted.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(archived.EffectiveStatus())),
		))
	}
	s.logger.Info("session completed",
		zap.String("session_id", id),
		zap.String("status", string(archived.EffectiveStatus())),
		zap.Int64("total_duration_ms", archived.Performance.TotalDurationMS),
	)

	out := &CompleteResult{
		Success:     saveErr == nil,
		Status:      archived.EffectiveStatus(),
		Performance: archived.Performance,
		Session:     archived,
	}
	if saveErr != nil {
		out.Error = fmt.Sprintf("final persist failed: %s", saveErr)
	}
	return out
}

func (s *service) GetSystemHealth(ctx context.Context) (res *SystemHealth) {
	ctx, span := s.tracer.Start(ctx, "orchestrator.system_health")
	defer span.End()
	defer softFail(s.logger, "system_health", func(msg string) { res = &SystemHealth{Error: msg} })

	count := s.ActiveSessionCount()
	if s.health == nil {
		return &SystemHealth{Error: "health aggregator not configured", ActiveSessions: count}
	}
	snap, err := s.health.Snapshot(ctx)
	if err != nil {
		return &SystemHealth{Error: fmt.Sprintf("health rollup failed: %s", err), ActiveSessions: count}
	}
	return &SystemHealth{Success: true, Tier: snap.Tier, ActiveSessions: count, Snapshot: snap}
}

func (s *service) ActiveSessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// Close refuses new sessions and waits for background persists. Sessions
// still active keep serving reads until the process exits.
func (s *service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

// lookup finds an active session entry.
func (s *service) lookup(id string) (*activeSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	as, ok := s.active[id]
	return as, ok
}

// runValidator executes the registered stage validator. Unknown stages and
// validator failures auto-pass as warnings so an engine defect never blocks
// the pipeline it observes.
func (s *service) runValidator(ctx context.Context, id string, stageID pipeline.Stage, input, output map[string]interface{}, durationMS int64, sess *pipeline.Session) *pipeline.StageResult {
	v, ok := s.registry.Validator(stageID)
	if !ok {
		sess.Issues = append(sess.Issues, pipeline.Issue{
			Type:        "unknown_stage",
			Stage:       stageID,
			Severity:    pipeline.SeverityWarning,
			Description: fmt.Sprintf("no validator registered for stage %q", stageID),
			UserImpact:  "the stage ran unvalidated",
			DetectedAt:  time.Now(),
		})
		return stages.UnknownStageResult(stageID, durationMS)
	}

	in := stages.ValidateInput{
		SessionID:      id,
		Stage:          stageID,
		Input:          input,
		Output:         output,
		SessionContext: s.tracker.CurrentContext(ctx, id),
		DurationMS:     durationMS,
	}

	result, err := safeValidate(ctx, v, in)
	if err == nil && result == nil {
		err = errors.New("validator returned no result")
	}
	if err != nil {
		s.logger.Warn("stage validator errored",
			zap.String("session_id", id),
			zap.String("stage", string(stageID)),
			zap.Error(err),
		)
		fallback := stages.PassResult(in)
		fallback.Severity = pipeline.SeverityWarning
		fallback.IssueType = "validator_error"
		return fallback
	}
	return result
}

// safeValidate contains panics from validator plugins.
func safeValidate(ctx context.Context, v stages.Validator, in stages.ValidateInput) (result *pipeline.StageResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("validator panicked: %v", r)
		}
	}()
	return v.Validate(ctx, in)
}

// attemptFix runs the registered fixer once. Repairs land in the stage
// output map, which the journal merge then carries into session context.
func (s *service) attemptFix(ctx context.Context, fixer stages.AutoFixer, result *pipeline.StageResult, output map[string]interface{}, sess *pipeline.Session, issue *pipeline.Issue) {
	outcome, err := safeFix(ctx, fixer, result, output)
	record := pipeline.AutoFix{
		Stage:     result.StageID,
		AppliedAt: time.Now(),
	}
	if err != nil || outcome == nil {
		record.FixType = "fix_error"
		s.logger.Warn("auto-fix failed",
			zap.String("session_id", sess.ID),
			zap.String("stage", string(result.StageID)),
			zap.Error(err),
		)
	} else {
		record.FixType = outcome.FixType
		record.Applied = outcome.Fixed
		record.RetryNeeded = outcome.RetryNeeded
		if outcome.Fixed {
			result.AutoFixed = true
			issue.Fixed = true
		}
	}
	sess.AutoFixes = append(sess.AutoFixes, record)
}

// safeFix contains panics from fixer plugins.
func safeFix(ctx context.Context, fixer stages.AutoFixer, result *pipeline.StageResult, output map[string]interface{}) (outcome *stages.FixOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome, err = nil, fmt.Errorf("fixer panicked: %v", r)
		}
	}()
	return fixer.AutoFix(ctx, result, output)
}

// runBusinessValidation computes quality metrics and applies the forced
// failure rule. The caller holds the session lock.
func (s *service) runBusinessValidation(ctx context.Context, sess *pipeline.Session) {
	metrics := s.quality.Validate(ctx, sess, s.tracker)
	sess.Quality = metrics
	if metrics == nil {
		return
	}

	if len(metrics.CriticalIssues) > 0 {
		sess.ForcedFailed = true
		sess.State = pipeline.StateFailed
		for _, crit := range metrics.CriticalIssues {
			sess.Issues = append(sess.Issues, pipeline.Issue{
				Type:        "business_validation",
				Severity:    pipeline.SeverityCritical,
				Description: crit,
				UserImpact:  "the generated content is not fit to deliver",
				DetectedAt:  time.Now(),
			})
		}
		s.fireCriticalAlert(ctx, sess, metrics)
		return
	}

	if err := sess.State.CanTransition(pipeline.StateBusinessValidated); err == nil {
		sess.State = pipeline.StateBusinessValidated
	}
}

// fireCriticalAlert notifies the alert sink without waiting on delivery.
func (s *service) fireCriticalAlert(ctx context.Context, sess *pipeline.Session, metrics *pipeline.QualityMetrics) {
	details := map[string]interface{}{
		"owner":           sess.Owner,
		"status":          string(pipeline.StatusFailed),
		"critical_issues": append([]string(nil), metrics.CriticalIssues...),
	}
	alerting.Notify(s.alerts, s.logger, sess.ID, details)
	if s.alertsFired != nil {
		s.alertsFired.Add(ctx, 1)
	}
}

// persistResultAsync archives one result off the validation path. A lagging
// or failing store never blocks stage validation.
func (s *service) persistResultAsync(id string, result pipeline.StageResult) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("async persist panicked",
					zap.String("session_id", id),
					zap.Any("panic", r),
				)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.store.SaveStageResult(ctx, id, result); err != nil {
			s.logger.Warn("stage result persist failed",
				zap.String("session_id", id),
				zap.String("stage", string(result.StageID)),
				zap.Error(err),
			)
		}
	}()
}

// scrubbedSnapshots copies the journal's snapshots through the scrubber.
func (s *service) scrubbedSnapshots(ctx context.Context, id string) []pipeline.ContextSnapshot {
	snaps := s.tracker.Snapshots(ctx, id)
	total := 0
	for i := range snaps {
		scrubbed, n := s.scrubber.ScrubContext(snaps[i].Context)
		snaps[i].Context = scrubbed
		total += n
	}
	if total > 0 {
		s.logger.Info("redacted secrets from archived snapshots",
			zap.String("session_id", id),
			zap.Int("findings", total),
		)
	}
	return snaps
}

// orderAnomaly reports whether the stage arrives behind one already seen.
// Skipping ahead is legitimate; going backwards is recorded, not rejected.
func orderAnomaly(sess *pipeline.Session, stageID pipeline.Stage) bool {
	pos := stageID.Position()
	if pos < 0 {
		return false
	}
	maxSeen := -1
	for _, r := range sess.Results {
		if p := r.StageID.Position(); p > maxSeen {
			maxSeen = p
		}
	}
	return maxSeen >= 0 && pos < maxSeen
}

// issueFor renders a stage failure as a user-facing issue.
func issueFor(result *pipeline.StageResult) pipeline.Issue {
	return pipeline.Issue{
		Type:        result.IssueType,
		Stage:       result.StageID,
		Severity:    result.Severity,
		Description: fmt.Sprintf("stage %s failed validation (%s)", result.StageID, result.IssueType),
		UserImpact:  userImpact(result.StageID, result.Severity),
		DetectedAt:  time.Now(),
	}
}

// lossIssue surfaces a journal loss event on the session's issue list.
func lossIssue(loss journal.LossEvent) pipeline.Issue {
	return pipeline.Issue{
		Type:        "data_loss",
		Stage:       loss.Stage,
		Severity:    loss.Severity,
		Description: fmt.Sprintf("critical field %q became unreachable after stage %s", loss.Field, loss.Stage),
		UserImpact:  "later stages may be working from incomplete context",
		DetectedAt:  loss.DetectedAt,
	}
}

// userImpact estimates what the audience experiences when a stage fails.
func userImpact(stage pipeline.Stage, severity pipeline.Severity) string {
	if severity == pipeline.SeverityWarning {
		return "content may be delayed or slightly degraded"
	}
	switch stage {
	case pipeline.StageFetch:
		return "the request cannot be answered from fresh source data"
	case pipeline.StageKnowledge:
		return "guidance may be generic instead of grounded in retrieved knowledge"
	case pipeline.StageGenerate:
		return "no content is available to deliver"
	case pipeline.StageMedia:
		return "content is delivered without its media assets"
	case pipeline.StagePublish:
		return "content was generated but never reached the audience"
	default:
		return "content quality may be degraded"
	}
}

// performanceReport folds per-stage durations (attempts summed) with the
// wall-clock latency bucket score.
func performanceReport(sess *pipeline.Session) *pipeline.PerformanceReport {
	durations := make(map[pipeline.Stage]int64)
	for _, r := range sess.Results {
		durations[r.StageID] += r.DurationMS
	}
	total := sess.CompletedAt.Sub(sess.StartedAt)
	return &pipeline.PerformanceReport{
		TotalDurationMS: total.Milliseconds(),
		StageDurations:  durations,
		Score:           pipeline.PerformanceScore(total),
	}
}

// softFail converts a panic in a public method into a soft failure result.
// The engine must never raise across its boundary.
func softFail(logger *zap.Logger, op string, set func(msg string)) {
	if r := recover(); r != nil {
		msg := fmt.Sprintf("internal error in %s: %v", op, r)
		logger.Error("orchestrator operation panicked",
			zap.String("operation", op),
			zap.Any("panic", r),
		)
		set(msg)
	}
}

var _ Service = (*service)(nil)
