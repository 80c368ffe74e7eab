package stages

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
)

// ValidateInput carries one stage execution to a validator.
type ValidateInput struct {
	SessionID string
	Stage     pipeline.Stage

	// Input and Output are the stage's opaque structured payloads.
	Input  map[string]interface{}
	Output map[string]interface{}

	// SessionContext is a read copy of the session's accumulated context.
	SessionContext map[string]interface{}

	DurationMS int64
}

// Validator checks one stage's output against its sanity rules.
type Validator interface {
	Validate(ctx context.Context, in ValidateInput) (*pipeline.StageResult, error)
}

// FixOutcome reports one auto-fix attempt.
type FixOutcome struct {
	Fixed       bool   `json:"fixed"`
	FixType     string `json:"fix_type"`
	RetryNeeded bool   `json:"retry_needed"`
}

// AutoFixer repairs mechanically recoverable failures. Fix application is
// single-attempt and synchronous. Repaired values written into
// sessionContext are carried forward by the caller's journal merge.
type AutoFixer interface {
	AutoFix(ctx context.Context, result *pipeline.StageResult, sessionContext map[string]interface{}) (*FixOutcome, error)
}

// PassResult builds a passing result for the stage execution.
func PassResult(in ValidateInput) *pipeline.StageResult {
	return &pipeline.StageResult{
		StageID:     in.Stage,
		Passed:      true,
		Severity:    pipeline.SeverityNone,
		DurationMS:  in.DurationMS,
		ValidatedAt: time.Now(),
	}
}

// FailResult builds a failing result carrying the finding.
func FailResult(in ValidateInput, severity pipeline.Severity, issueType string, expected, actual map[string]interface{}, autoFixable bool) *pipeline.StageResult {
	return &pipeline.StageResult{
		StageID:     in.Stage,
		Passed:      false,
		Severity:    severity,
		IssueType:   issueType,
		Expected:    expected,
		Actual:      actual,
		DurationMS:  in.DurationMS,
		AutoFixable: autoFixable,
		ValidatedAt: time.Now(),
	}
}

// UnknownStageResult builds the synthetic auto-pass recorded when no
// validator is registered for a stage. New stages must never hard-break
// pipelines running against an older registry.
func UnknownStageResult(stage pipeline.Stage, durationMS int64) *pipeline.StageResult {
	return &pipeline.StageResult{
		StageID:     stage,
		Passed:      true,
		Severity:    pipeline.SeverityWarning,
		IssueType:   "unknown_stage",
		DurationMS:  durationMS,
		ValidatedAt: time.Now(),
	}
}
