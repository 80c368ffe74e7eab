package stages

import (
	"context"
	"strings"

	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
)

// GenerateConfig bounds the generation stage checks.
type GenerateConfig struct {
	// MinLength and MaxLength bound the generated content in runes.
	MinLength int
	MaxLength int

	// RequiredSections lists markers that must appear in the content,
	// matched case-insensitively. Empty means no section check.
	RequiredSections []string
}

// DefaultGenerateConfig returns the default generation validation config.
func DefaultGenerateConfig() GenerateConfig {
	return GenerateConfig{
		MinLength: 120,
		MaxLength: 6000,
	}
}

// GenerateValidator checks the content generation stage: content must be
// present, within length bounds, and carry the required sections.
type GenerateValidator struct {
	cfg GenerateConfig
}

// NewGenerateValidator creates a generation validator.
func NewGenerateValidator(cfg GenerateConfig) *GenerateValidator {
	return &GenerateValidator{cfg: cfg}
}

// Validate checks one generation execution.
func (v *GenerateValidator) Validate(_ context.Context, in ValidateInput) (*pipeline.StageResult, error) {
	content, _ := in.Output["generated_content"].(string)
	if content == "" {
		return FailResult(in, pipeline.SeverityCritical, "missing_content",
			map[string]interface{}{"generated_content": "non-empty content body"},
			map[string]interface{}{"generated_content": in.Output["generated_content"]},
			false,
		), nil
	}

	length := len([]rune(content))
	if v.cfg.MinLength > 0 && length < v.cfg.MinLength {
		return FailResult(in, pipeline.SeverityError, "content_too_short",
			map[string]interface{}{"min_length": v.cfg.MinLength},
			map[string]interface{}{"length": length},
			false,
		), nil
	}
	if v.cfg.MaxLength > 0 && length > v.cfg.MaxLength {
		return FailResult(in, pipeline.SeverityWarning, "content_too_long",
			map[string]interface{}{"max_length": v.cfg.MaxLength},
			map[string]interface{}{"length": length},
			true,
		), nil
	}

	if missing := v.missingSections(content); len(missing) > 0 {
		return FailResult(in, pipeline.SeverityWarning, "missing_section",
			map[string]interface{}{"required_sections": v.cfg.RequiredSections},
			map[string]interface{}{"missing_sections": missing},
			false,
		), nil
	}

	return PassResult(in), nil
}

func (v *GenerateValidator) missingSections(content string) []string {
	if len(v.cfg.RequiredSections) == 0 {
		return nil
	}
	lowered := strings.ToLower(content)
	var missing []string
	for _, section := range v.cfg.RequiredSections {
		if !strings.Contains(lowered, strings.ToLower(section)) {
			missing = append(missing, section)
		}
	}
	return missing
}

// AutoFix truncates oversized content in the session context.
func (v *GenerateValidator) AutoFix(_ context.Context, result *pipeline.StageResult, sessionContext map[string]interface{}) (*FixOutcome, error) {
	if result.IssueType != "content_too_long" {
		return &FixOutcome{Fixed: false}, nil
	}

	content, _ := sessionContext["generated_content"].(string)
	runes := []rune(content)
	if v.cfg.MaxLength <= 0 || len(runes) <= v.cfg.MaxLength {
		return &FixOutcome{Fixed: false, FixType: "truncate_payload"}, nil
	}

	sessionContext["generated_content"] = string(runes[:v.cfg.MaxLength])
	return &FixOutcome{Fixed: true, FixType: "truncate_payload"}, nil
}

var (
	_ Validator = (*GenerateValidator)(nil)
	_ AutoFixer = (*GenerateValidator)(nil)
)
