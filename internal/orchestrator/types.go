package orchestrator

import (
	"time"

	"github.com/fyrsmithlabs/pipevet/internal/health"
	"github.com/fyrsmithlabs/pipevet/internal/journal"
	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
)

// StartResult is returned by StartSession.
type StartResult struct {
	Success   bool                  `json:"success"`
	Error     string                `json:"error,omitempty"`
	SessionID string                `json:"session_id,omitempty"`
	State     pipeline.SessionState `json:"state,omitempty"`
}

// ValidateResult is returned by ValidateStage. Result is the appended stage
// result; Status is the session status after the recompute.
type ValidateResult struct {
	Success    bool                   `json:"success"`
	Error      string                 `json:"error,omitempty"`
	Result     *pipeline.StageResult  `json:"result,omitempty"`
	Status     pipeline.SessionStatus `json:"status,omitempty"`
	AutoFixed  bool                   `json:"auto_fixed"`
	OutOfOrder bool                   `json:"out_of_order"`
}

// BusinessResult is returned by ValidateBusinessLogic.
type BusinessResult struct {
	Success bool                     `json:"success"`
	Error   string                   `json:"error,omitempty"`
	Quality *pipeline.QualityMetrics `json:"quality,omitempty"`
	Status  pipeline.SessionStatus   `json:"status,omitempty"`
}

// CompleteResult is returned by CompleteSession. Session is the archived
// clone.
type CompleteResult struct {
	Success     bool                        `json:"success"`
	Error       string                      `json:"error,omitempty"`
	Status      pipeline.SessionStatus      `json:"status,omitempty"`
	Performance *pipeline.PerformanceReport `json:"performance,omitempty"`
	Session     *pipeline.Session           `json:"session,omitempty"`
}

// SystemHealth is returned by GetSystemHealth.
type SystemHealth struct {
	Success        bool             `json:"success"`
	Error          string           `json:"error,omitempty"`
	Tier           health.Tier      `json:"tier,omitempty"`
	ActiveSessions int              `json:"active_sessions"`
	Snapshot       *health.Snapshot `json:"snapshot,omitempty"`
}

// StageRow is one line of a session report's stage table, folding every
// attempt of one stage.
type StageRow struct {
	Stage           pipeline.Stage    `json:"stage"`
	Attempts        int               `json:"attempts"`
	Passed          bool              `json:"passed"`
	Severity        pipeline.Severity `json:"severity"`
	IssueType       string            `json:"issue_type,omitempty"`
	DurationMS      int64             `json:"duration_ms"`
	AutoFixed       bool              `json:"auto_fixed"`
	OutOfOrder      bool              `json:"out_of_order"`
	LastValidatedAt time.Time         `json:"last_validated_at"`
}

// SessionReport is returned by GetSessionReport. Flow is present for active
// sessions, where the journal is still live; archived sessions carry their
// persisted snapshots instead.
type SessionReport struct {
	Success     bool                        `json:"success"`
	Error       string                      `json:"error,omitempty"`
	ReportID    string                      `json:"report_id,omitempty"`
	GeneratedAt time.Time                   `json:"generated_at,omitempty"`
	SessionID   string                      `json:"session_id,omitempty"`
	Owner       string                      `json:"owner,omitempty"`
	Active      bool                        `json:"active"`
	State       pipeline.SessionState       `json:"state,omitempty"`
	Status      pipeline.SessionStatus      `json:"status,omitempty"`
	StartedAt   time.Time                   `json:"started_at,omitempty"`
	CompletedAt time.Time                   `json:"completed_at,omitempty"`
	Stages      []StageRow                  `json:"stages,omitempty"`
	Issues      []pipeline.Issue            `json:"issues,omitempty"`
	AutoFixes   []pipeline.AutoFix          `json:"auto_fixes,omitempty"`
	Quality     *pipeline.QualityMetrics    `json:"quality,omitempty"`
	Performance *pipeline.PerformanceReport `json:"performance,omitempty"`
	Flow        *journal.FlowResult         `json:"flow,omitempty"`
	Snapshots   []pipeline.ContextSnapshot  `json:"snapshots,omitempty"`
}
