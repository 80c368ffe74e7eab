package stages

import (
	"context"
	"path"
	"strings"

	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
)

// MediaConfig bounds the media synthesis stage checks.
type MediaConfig struct {
	// AllowedFormats lists acceptable asset extensions, without the dot.
	AllowedFormats []string

	// MaxAssetBytes caps the reported asset size. Zero disables the check.
	MaxAssetBytes int64

	// FallbackAssetURL substitutes for missing or unusable assets. Empty
	// disables the fix.
	FallbackAssetURL string
}

// DefaultMediaConfig returns the default media validation config.
func DefaultMediaConfig() MediaConfig {
	return MediaConfig{
		AllowedFormats: []string{"png", "jpg", "jpeg", "webp", "gif", "mp4"},
		MaxAssetBytes:  10 << 20,
	}
}

// MediaValidator checks the media synthesis stage: an asset must exist, in
// an allowed format, under the size cap.
type MediaValidator struct {
	cfg MediaConfig
}

// NewMediaValidator creates a media validator.
func NewMediaValidator(cfg MediaConfig) *MediaValidator {
	return &MediaValidator{cfg: cfg}
}

// Validate checks one media synthesis execution.
func (v *MediaValidator) Validate(_ context.Context, in ValidateInput) (*pipeline.StageResult, error) {
	fixable := v.cfg.FallbackAssetURL != ""

	url, _ := in.Output["asset_url"].(string)
	if url == "" {
		return FailResult(in, pipeline.SeverityError, "missing_asset",
			map[string]interface{}{"asset_url": "fully-qualified asset location"},
			map[string]interface{}{"asset_url": in.Output["asset_url"]},
			fixable,
		), nil
	}

	if ext := strings.ToLower(strings.TrimPrefix(path.Ext(url), ".")); !v.formatAllowed(ext) {
		return FailResult(in, pipeline.SeverityWarning, "unsupported_format",
			map[string]interface{}{"allowed_formats": v.cfg.AllowedFormats},
			map[string]interface{}{"format": ext},
			fixable,
		), nil
	}

	if size, ok := numberValue(in.Output["asset_size"]); ok && v.cfg.MaxAssetBytes > 0 && size > v.cfg.MaxAssetBytes {
		return FailResult(in, pipeline.SeverityWarning, "asset_too_large",
			map[string]interface{}{"max_asset_bytes": v.cfg.MaxAssetBytes},
			map[string]interface{}{"asset_size": size},
			fixable,
		), nil
	}

	return PassResult(in), nil
}

func (v *MediaValidator) formatAllowed(ext string) bool {
	for _, allowed := range v.cfg.AllowedFormats {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// AutoFix substitutes the configured fallback asset.
func (v *MediaValidator) AutoFix(_ context.Context, result *pipeline.StageResult, sessionContext map[string]interface{}) (*FixOutcome, error) {
	if v.cfg.FallbackAssetURL == "" {
		return &FixOutcome{Fixed: false, FixType: "fallback_asset"}, nil
	}

	switch result.IssueType {
	case "missing_asset", "unsupported_format", "asset_too_large":
		if sessionContext != nil {
			sessionContext["asset_url"] = v.cfg.FallbackAssetURL
		}
		return &FixOutcome{Fixed: true, FixType: "fallback_asset"}, nil
	}

	return &FixOutcome{Fixed: false}, nil
}

// numberValue extracts an integral size from a context value. JSON decoding
// yields float64; direct callers may pass int variants.
func numberValue(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int64:
		return val, true
	case float64:
		return int64(val), true
	default:
		return 0, false
	}
}

var (
	_ Validator = (*MediaValidator)(nil)
	_ AutoFixer = (*MediaValidator)(nil)
)
