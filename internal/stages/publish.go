package stages

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
)

// PublishConfig bounds the publish stage checks.
type PublishConfig struct {
	// RateLimitBackoff is how long to hold publishing after a rate limit.
	RateLimitBackoff time.Duration
}

// DefaultPublishConfig returns the default publish validation config.
func DefaultPublishConfig() PublishConfig {
	return PublishConfig{RateLimitBackoff: 30 * time.Second}
}

// PublishValidator checks the publish stage: the target must acknowledge
// the content, and the published item should be visible.
type PublishValidator struct {
	cfg PublishConfig
}

// NewPublishValidator creates a publish validator.
func NewPublishValidator(cfg PublishConfig) *PublishValidator {
	return &PublishValidator{cfg: cfg}
}

// Validate checks one publish execution.
func (v *PublishValidator) Validate(_ context.Context, in ValidateInput) (*pipeline.StageResult, error) {
	if truthy(in.Output["rate_limited"]) {
		return FailResult(in, pipeline.SeverityError, "rate_limited",
			map[string]interface{}{"rate_limited": false},
			map[string]interface{}{"rate_limited": true},
			true,
		), nil
	}

	ack, _ := in.Output["ack_id"].(string)
	if ack == "" {
		return FailResult(in, pipeline.SeverityCritical, "missing_acknowledgement",
			map[string]interface{}{"ack_id": "target acknowledgement identifier"},
			map[string]interface{}{"ack_id": in.Output["ack_id"]},
			false,
		), nil
	}

	// An absent visibility flag counts as visible; only an explicit false
	// is a finding.
	if visible, ok := in.Output["visible"].(bool); ok && !visible {
		return FailResult(in, pipeline.SeverityWarning, "content_hidden",
			map[string]interface{}{"visible": true},
			map[string]interface{}{"visible": false},
			false,
		), nil
	}

	return PassResult(in), nil
}

// AutoFix stamps a backoff marker into the session context so the pipeline
// can retry publishing after the hold.
func (v *PublishValidator) AutoFix(_ context.Context, result *pipeline.StageResult, sessionContext map[string]interface{}) (*FixOutcome, error) {
	if result.IssueType != "rate_limited" {
		return &FixOutcome{Fixed: false}, nil
	}

	if sessionContext != nil {
		until := time.Now().Add(v.cfg.RateLimitBackoff).UTC().Format(time.RFC3339)
		sessionContext["publish_backoff_until"] = until
	}
	return &FixOutcome{Fixed: true, FixType: "rate_limit_backoff", RetryNeeded: true}, nil
}

var (
	_ Validator = (*PublishValidator)(nil)
	_ AutoFixer = (*PublishValidator)(nil)
)
