package journal

import (
	"time"

	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
)

// LossEvent records one critical field found unreachable at a stage
// boundary. Loss events degrade quality scoring but are never fatal on
// their own.
type LossEvent struct {
	Field      string            `json:"field"`
	Stage      pipeline.Stage    `json:"stage"`
	Severity   pipeline.Severity `json:"severity"`
	DetectedAt time.Time         `json:"detected_at"`
}

// Transformation describes the top-level context changes one stage produced
// relative to the previous snapshot.
type Transformation struct {
	Stage    pipeline.Stage `json:"stage"`
	Added    []string       `json:"added,omitempty"`
	Removed  []string       `json:"removed,omitempty"`
	Modified []string       `json:"modified,omitempty"`
}

// Journal is the evolving record of one session's context. It is owned by
// the tracker; callers only ever see copies of its data.
type Journal struct {
	SessionID    string
	Initial      map[string]interface{}
	Current      map[string]interface{}
	LastOutput   map[string]interface{}
	Snapshots    []pipeline.ContextSnapshot
	Transforms   []Transformation
	Losses       []LossEvent
	LossDetected bool
	CreatedAt    time.Time
}

// InitResult is returned by Initialize.
type InitResult struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	ContextSize int    `json:"context_size"`
}

// UpdateResult is returned by Update.
type UpdateResult struct {
	Success     bool        `json:"success"`
	Error       string      `json:"error,omitempty"`
	Preserved   []string    `json:"preserved"`
	DataLoss    []LossEvent `json:"data_loss,omitempty"`
	ContextSize int         `json:"context_size"`
}

// IntegrityResult is returned by ValidateIntegrity. Score is a percentage:
// preserved critical fields over total critical fields seen in the initial
// context, times 100.
type IntegrityResult struct {
	Success       bool     `json:"success"`
	Error         string   `json:"error,omitempty"`
	Score         float64  `json:"score"`
	MissingFields []string `json:"missing_fields,omitempty"`
	EnrichedCount int      `json:"enriched_count"`
	LossDetected  bool     `json:"data_loss_detected"`
}

// StageFlow is one row of a flow report: the diff a stage produced and the
// snapshot it left behind.
type StageFlow struct {
	Stage       pipeline.Stage `json:"stage"`
	Added       []string       `json:"added,omitempty"`
	Removed     []string       `json:"removed,omitempty"`
	Modified    []string       `json:"modified,omitempty"`
	Hash        string         `json:"hash"`
	ContextSize int            `json:"context_size"`
	Timestamp   time.Time      `json:"timestamp"`
}

// FlowResult is returned by FlowReport.
type FlowResult struct {
	Success       bool        `json:"success"`
	Error         string      `json:"error,omitempty"`
	Stages        []StageFlow `json:"stages"`
	GrowthPercent float64     `json:"growth_percent"`
	Losses        []LossEvent `json:"losses,omitempty"`
}
