package stages

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
)

// CredentialRefresher re-authenticates against the upstream data provider.
// The concrete pipeline supplies it; a nil refresher disables the fix.
type CredentialRefresher func(ctx context.Context) error

// FetchConfig bounds the fetch stage checks.
type FetchConfig struct {
	// RequireRetrievedAt demands a retrieval timestamp on the output.
	RequireRetrievedAt bool
}

// DefaultFetchConfig returns the default fetch validation config.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{RequireRetrievedAt: true}
}

// FetchValidator checks the raw-data fetch stage: the source payload must be
// present and non-empty, and the retrieval must be timestamped.
type FetchValidator struct {
	cfg     FetchConfig
	refresh CredentialRefresher
}

// NewFetchValidator creates a fetch validator. The refresher may be nil.
func NewFetchValidator(cfg FetchConfig, refresh CredentialRefresher) *FetchValidator {
	return &FetchValidator{cfg: cfg, refresh: refresh}
}

// Validate checks one fetch execution.
func (v *FetchValidator) Validate(_ context.Context, in ValidateInput) (*pipeline.StageResult, error) {
	if truthy(in.Output["credential_expired"]) {
		return FailResult(in, pipeline.SeverityError, "credential_expired",
			map[string]interface{}{"credential_expired": false},
			map[string]interface{}{"credential_expired": true},
			v.refresh != nil,
		), nil
	}

	if emptyValue(in.Output["source_data"]) {
		return FailResult(in, pipeline.SeverityCritical, "missing_source_data",
			map[string]interface{}{"source_data": "non-empty provider payload"},
			map[string]interface{}{"source_data": in.Output["source_data"]},
			false,
		), nil
	}

	if v.cfg.RequireRetrievedAt && emptyValue(in.Output["retrieved_at"]) {
		return FailResult(in, pipeline.SeverityWarning, "missing_retrieved_at",
			map[string]interface{}{"retrieved_at": "RFC3339 timestamp"},
			map[string]interface{}{"retrieved_at": nil},
			true,
		), nil
	}

	return PassResult(in), nil
}

// AutoFix refreshes expired credentials or back-fills the retrieval
// timestamp.
func (v *FetchValidator) AutoFix(ctx context.Context, result *pipeline.StageResult, sessionContext map[string]interface{}) (*FixOutcome, error) {
	switch result.IssueType {
	case "credential_expired":
		if v.refresh == nil {
			return &FixOutcome{Fixed: false, FixType: "credential_refresh"}, nil
		}
		if err := v.refresh(ctx); err != nil {
			return &FixOutcome{Fixed: false, FixType: "credential_refresh"}, err
		}
		return &FixOutcome{Fixed: true, FixType: "credential_refresh", RetryNeeded: true}, nil

	case "missing_retrieved_at":
		if sessionContext != nil {
			sessionContext["retrieved_at"] = time.Now().UTC().Format(time.RFC3339)
		}
		return &FixOutcome{Fixed: true, FixType: "default_fill"}, nil
	}

	return &FixOutcome{Fixed: false}, nil
}

// truthy reports whether a context value is boolean true.
func truthy(v interface{}) bool {
	b, ok := v.(bool)
	return ok && b
}

var (
	_ Validator = (*FetchValidator)(nil)
	_ AutoFixer = (*FetchValidator)(nil)
)

// emptyValue reports whether a context value is absent or carries no
// content.
func emptyValue(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case map[string]interface{}:
		return len(val) == 0
	case []interface{}:
		return len(val) == 0
	default:
		return false
	}
}
