// Package v1 defines the wire types of the pipevet REST API. The package is
// importable by external clients and therefore depends on nothing inside
// the engine.
package v1

import "time"

// HealthResponse is the body of GET /v1/health.
type HealthResponse struct {
	Tier           string       `json:"tier"`
	ActiveSessions int          `json:"active_sessions"`
	GeneratedAt    time.Time    `json:"generated_at"`
	Short          WindowReport `json:"short"`
	Long           WindowReport `json:"long"`
}

// WindowReport groups per-stage health over one trailing window.
type WindowReport struct {
	WindowSeconds float64       `json:"window_seconds"`
	Stages        []StageHealth `json:"stages"`
}

// StageHealth is the rollup for one stage.
type StageHealth struct {
	Stage         string  `json:"stage"`
	Total         int     `json:"total"`
	Passed        int     `json:"passed"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	AutoFixed     int     `json:"auto_fixed"`
}

// ActiveCountResponse is the body of GET /v1/sessions/active/count.
type ActiveCountResponse struct {
	ActiveSessions int `json:"active_sessions"`
}

// SessionReport is the body of GET /v1/sessions/{id}/report.
type SessionReport struct {
	ReportID    string             `json:"report_id"`
	GeneratedAt time.Time          `json:"generated_at"`
	SessionID   string             `json:"session_id"`
	Owner       string             `json:"owner,omitempty"`
	Active      bool               `json:"active"`
	State       string             `json:"state"`
	Status      string             `json:"status"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	Stages      []StageRow         `json:"stages,omitempty"`
	Issues      []Issue            `json:"issues,omitempty"`
	AutoFixes   []AutoFix          `json:"auto_fixes,omitempty"`
	Quality     *QualityMetrics    `json:"quality,omitempty"`
	Performance *PerformanceReport `json:"performance,omitempty"`
	Flow        *Flow              `json:"flow,omitempty"`
	Snapshots   []Snapshot         `json:"snapshots,omitempty"`

	// Audit carries deep credential-scan findings when the report was
	// requested with ?audit=1.
	Audit []AuditFinding `json:"audit,omitempty"`
}

// StageRow folds every validation attempt of one stage.
type StageRow struct {
	Stage           string    `json:"stage"`
	Attempts        int       `json:"attempts"`
	Passed          bool      `json:"passed"`
	Severity        string    `json:"severity"`
	IssueType       string    `json:"issue_type,omitempty"`
	DurationMS      int64     `json:"duration_ms"`
	AutoFixed       bool      `json:"auto_fixed"`
	OutOfOrder      bool      `json:"out_of_order"`
	LastValidatedAt time.Time `json:"last_validated_at"`
}

// Issue is one recorded problem.
type Issue struct {
	Type        string    `json:"type"`
	Stage       string    `json:"stage,omitempty"`
	Severity    string    `json:"severity"`
	Description string    `json:"description"`
	UserImpact  string    `json:"user_impact,omitempty"`
	Fixed       bool      `json:"fixed"`
	DetectedAt  time.Time `json:"detected_at"`
}

// AutoFix is one recorded automatic remedy.
type AutoFix struct {
	Stage       string    `json:"stage"`
	FixType     string    `json:"fix_type"`
	Applied     bool      `json:"applied"`
	RetryNeeded bool      `json:"retry_needed"`
	AppliedAt   time.Time `json:"applied_at"`
}

// QualityMetrics is the business-quality outcome.
type QualityMetrics struct {
	OverallValid    bool               `json:"overall_valid"`
	Scores          map[string]float64 `json:"scores"`
	CriticalIssues  []string           `json:"critical_issues,omitempty"`
	Warnings        []string           `json:"warnings,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
}

// PerformanceReport summarizes session timing.
type PerformanceReport struct {
	TotalDurationMS int64            `json:"total_duration_ms"`
	StageDurations  map[string]int64 `json:"stage_durations"`
	Score           int              `json:"score"`
}

// Flow describes how the session context evolved; present only while the
// session is active.
type Flow struct {
	GrowthPercent float64     `json:"growth_percent"`
	Stages        []StageFlow `json:"stages"`
	Losses        []LossEvent `json:"losses,omitempty"`
}

// StageFlow is the context diff one stage produced.
type StageFlow struct {
	Stage       string    `json:"stage"`
	Added       []string  `json:"added,omitempty"`
	Removed     []string  `json:"removed,omitempty"`
	Modified    []string  `json:"modified,omitempty"`
	Hash        string    `json:"hash"`
	ContextSize int       `json:"context_size"`
	Timestamp   time.Time `json:"timestamp"`
}

// LossEvent records a critical context field that became unreachable.
type LossEvent struct {
	Field      string    `json:"field"`
	Stage      string    `json:"stage"`
	Severity   string    `json:"severity"`
	DetectedAt time.Time `json:"detected_at"`
}

// Snapshot is one archived point-in-time context copy.
type Snapshot struct {
	Stage     string                 `json:"stage"`
	Hash      string                 `json:"hash"`
	Timestamp time.Time              `json:"timestamp"`
	Context   map[string]interface{} `json:"context"`
}

// AuditFinding is one deep credential-scan hit. Preview never contains the
// matched secret.
type AuditFinding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Line        int    `json:"line,omitempty"`
	Preview     string `json:"preview"`
}

// SimilarSession is one hit of GET /v1/sessions/similar.
type SimilarSession struct {
	SessionID string  `json:"session_id"`
	Owner     string  `json:"owner,omitempty"`
	Status    string  `json:"status"`
	Summary   string  `json:"summary"`
	Score     float32 `json:"score"`
}

// SimilarSessionsResponse is the body of GET /v1/sessions/similar.
type SimilarSessionsResponse struct {
	Query   string           `json:"query"`
	Matches []SimilarSession `json:"matches"`
}
