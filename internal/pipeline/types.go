package pipeline

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stage identifies one step of the monitored generation pipeline.
type Stage string

const (
	// StageFetch pulls raw data from external providers.
	StageFetch Stage = "fetch"

	// StageKnowledge retrieves supporting knowledge for generation.
	StageKnowledge Stage = "knowledge"

	// StageGenerate produces the content payload.
	StageGenerate Stage = "generate"

	// StageMedia synthesizes optional media assets.
	StageMedia Stage = "media"

	// StagePublish pushes the finished content to its destination.
	StagePublish Stage = "publish"
)

// CanonicalOrder returns the pipeline stages in execution order.
func CanonicalOrder() []Stage {
	return []Stage{StageFetch, StageKnowledge, StageGenerate, StageMedia, StagePublish}
}

// Position returns the stage's index in the canonical order, or -1 for an
// unknown stage.
func (s Stage) Position() int {
	for i, stage := range CanonicalOrder() {
		if stage == s {
			return i
		}
	}
	return -1
}

// Known reports whether the stage is part of the canonical pipeline.
func (s Stage) Known() bool {
	return s.Position() >= 0
}

// Optional reports whether the stage may legitimately be skipped.
func (s Stage) Optional() bool {
	return s == StageMedia || s == StagePublish
}

// Severity indicates how serious a validation finding is.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for comparison; higher is worse.
func (s Severity) Rank() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// SessionState represents the lifecycle position of a session.
type SessionState string

const (
	StateStarted           SessionState = "started"
	StateStageValidated    SessionState = "stage_validated"
	StateBusinessValidated SessionState = "business_validated"
	StateCompleted         SessionState = "completed"
	StateFailed            SessionState = "failed"
)

// CanTransition checks whether the state machine permits moving to next.
// Failed is reachable from every non-terminal state; stage validation may
// repeat; completion always passes through business validation.
func (s SessionState) CanTransition(next SessionState) error {
	if s == StateCompleted || s == StateFailed {
		return fmt.Errorf("session is terminal in state %s", s)
	}
	if next == StateFailed {
		return nil
	}
	switch s {
	case StateStarted:
		if next == StateStageValidated || next == StateBusinessValidated {
			return nil
		}
	case StateStageValidated:
		if next == StateStageValidated || next == StateBusinessValidated {
			return nil
		}
	case StateBusinessValidated:
		if next == StateCompleted {
			return nil
		}
	}
	return fmt.Errorf("cannot transition from %s to %s", s, next)
}

// SessionStatus is the derived quality tier of a session.
type SessionStatus string

const (
	StatusSuccess  SessionStatus = "success"
	StatusDegraded SessionStatus = "degraded"
	StatusPartial  SessionStatus = "partial"
	StatusFailed   SessionStatus = "failed"
)

// StageResult captures the outcome of validating one stage execution.
// Results are immutable once appended to a session.
type StageResult struct {
	StageID     Stage                  `json:"stage_id"`
	Passed      bool                   `json:"passed"`
	Severity    Severity               `json:"severity"`
	IssueType   string                 `json:"issue_type,omitempty"`
	Expected    map[string]interface{} `json:"expected,omitempty"`
	Actual      map[string]interface{} `json:"actual,omitempty"`
	DurationMS  int64                  `json:"duration_ms"`
	AutoFixable bool                   `json:"auto_fixable,omitempty"`
	AutoFixed   bool                   `json:"auto_fixed"`
	OutOfOrder  bool                   `json:"out_of_order,omitempty"`
	ValidatedAt time.Time              `json:"validated_at"`
}

// Issue describes a problem found during stage or business validation.
type Issue struct {
	Type        string    `json:"type"`
	Stage       Stage     `json:"stage,omitempty"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	UserImpact  string    `json:"user_impact,omitempty"`
	Fixed       bool      `json:"fixed"`
	DetectedAt  time.Time `json:"detected_at"`
}

// AutoFix records one automatic remedy applied to a stage failure.
type AutoFix struct {
	Stage       Stage     `json:"stage"`
	FixType     string    `json:"fix_type"`
	Applied     bool      `json:"applied"`
	RetryNeeded bool      `json:"retry_needed"`
	AppliedAt   time.Time `json:"applied_at"`
}

// ContextSnapshot is a write-once, point-in-time copy of a session's context
// map taken after a stage boundary. Binary-valued fields are excluded before
// the copy is taken.
type ContextSnapshot struct {
	Stage     Stage                  `json:"stage"`
	Context   map[string]interface{} `json:"context"`
	Hash      string                 `json:"hash"`
	Timestamp time.Time              `json:"timestamp"`
}

// QualityMetrics holds the outcome of business-quality validation.
type QualityMetrics struct {
	OverallValid    bool               `json:"overall_valid"`
	Scores          map[string]float64 `json:"scores"`
	CriticalIssues  []string           `json:"critical_issues,omitempty"`
	Warnings        []string           `json:"warnings,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
}

// PerformanceReport summarizes session timing.
type PerformanceReport struct {
	TotalDurationMS int64           `json:"total_duration_ms"`
	StageDurations  map[Stage]int64 `json:"stage_durations"`
	Score           int             `json:"score"`
}

// Session is one end-to-end run of the monitored pipeline. It is created by
// the orchestrator at start, mutated only by the orchestrator, and archived
// at completion.
type Session struct {
	ID          string             `json:"id"`
	Owner       string             `json:"owner"`
	State       SessionState       `json:"state"`
	Status      SessionStatus      `json:"status"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at,omitempty"`
	Results     []StageResult      `json:"results"`
	Issues      []Issue            `json:"issues,omitempty"`
	AutoFixes   []AutoFix          `json:"auto_fixes,omitempty"`
	Quality     *QualityMetrics    `json:"quality,omitempty"`
	Performance *PerformanceReport `json:"performance,omitempty"`

	// Snapshots are the scrubbed context snapshots copied from the journal
	// when the session completes.
	Snapshots []ContextSnapshot `json:"snapshots,omitempty"`

	// ForcedFailed marks a FAILED status imposed by business validation
	// rather than derived from stage results.
	ForcedFailed bool `json:"forced_failed,omitempty"`
}

// NewSession creates a session in the started state.
func NewSession(id, owner string) *Session {
	return &Session{
		ID:        id,
		Owner:     owner,
		State:     StateStarted,
		Status:    StatusSuccess,
		StartedAt: time.Now(),
		Results:   []StageResult{},
	}
}

// Clone returns a deep copy of the session via a JSON round trip. Persistence
// runs on clones so concurrent validation never races archival.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		copied := *s
		return &copied
	}
	var out Session
	if err := json.Unmarshal(data, &out); err != nil {
		copied := *s
		return &copied
	}
	return &out
}
