package stages

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
)

func fetchInput(output map[string]interface{}) ValidateInput {
	return ValidateInput{
		SessionID:  "sess_1",
		Stage:      pipeline.StageFetch,
		Output:     output,
		DurationMS: 850,
	}
}

func TestFetchValidator_Passes(t *testing.T) {
	v := NewFetchValidator(DefaultFetchConfig(), nil)

	res, err := v.Validate(context.Background(), fetchInput(map[string]interface{}{
		"source_data":  map[string]interface{}{"chart": "natal"},
		"retrieved_at": "2026-08-24T10:00:00Z",
	}))

	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, pipeline.SeverityNone, res.Severity)
	assert.Equal(t, int64(850), res.DurationMS)
}

func TestFetchValidator_MissingSourceDataIsCritical(t *testing.T) {
	v := NewFetchValidator(DefaultFetchConfig(), nil)

	res, err := v.Validate(context.Background(), fetchInput(map[string]interface{}{
		"retrieved_at": "2026-08-24T10:00:00Z",
	}))

	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, pipeline.SeverityCritical, res.Severity)
	assert.Equal(t, "missing_source_data", res.IssueType)
	assert.False(t, res.AutoFixable)
}

func TestFetchValidator_EmptySourceDataIsCritical(t *testing.T) {
	v := NewFetchValidator(DefaultFetchConfig(), nil)

	res, err := v.Validate(context.Background(), fetchInput(map[string]interface{}{
		"source_data":  map[string]interface{}{},
		"retrieved_at": "2026-08-24T10:00:00Z",
	}))

	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, "missing_source_data", res.IssueType)
}

func TestFetchValidator_MissingRetrievedAtIsFixableWarning(t *testing.T) {
	v := NewFetchValidator(DefaultFetchConfig(), nil)

	res, err := v.Validate(context.Background(), fetchInput(map[string]interface{}{
		"source_data": "payload",
	}))

	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, pipeline.SeverityWarning, res.Severity)
	assert.Equal(t, "missing_retrieved_at", res.IssueType)
	assert.True(t, res.AutoFixable)
}

func TestFetchValidator_AutoFixBackfillsRetrievedAt(t *testing.T) {
	v := NewFetchValidator(DefaultFetchConfig(), nil)
	sessionContext := map[string]interface{}{}

	outcome, err := v.AutoFix(context.Background(),
		&pipeline.StageResult{IssueType: "missing_retrieved_at"}, sessionContext)

	require.NoError(t, err)
	assert.True(t, outcome.Fixed)
	assert.Equal(t, "default_fill", outcome.FixType)
	assert.False(t, outcome.RetryNeeded)
	assert.NotEmpty(t, sessionContext["retrieved_at"])
}

func TestFetchValidator_ExpiredCredentialFixableOnlyWithRefresher(t *testing.T) {
	output := map[string]interface{}{
		"credential_expired": true,
		"source_data":        "payload",
	}

	bare, err := NewFetchValidator(DefaultFetchConfig(), nil).Validate(context.Background(), fetchInput(output))
	require.NoError(t, err)
	assert.Equal(t, "credential_expired", bare.IssueType)
	assert.False(t, bare.AutoFixable)

	refreshed := false
	v := NewFetchValidator(DefaultFetchConfig(), func(ctx context.Context) error {
		refreshed = true
		return nil
	})
	res, err := v.Validate(context.Background(), fetchInput(output))
	require.NoError(t, err)
	assert.True(t, res.AutoFixable)

	outcome, err := v.AutoFix(context.Background(), res, nil)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.True(t, outcome.Fixed)
	assert.Equal(t, "credential_refresh", outcome.FixType)
	assert.True(t, outcome.RetryNeeded)
}

func TestFetchValidator_AutoFixSurfacesRefreshError(t *testing.T) {
	v := NewFetchValidator(DefaultFetchConfig(), func(ctx context.Context) error {
		return errors.New("provider unreachable")
	})

	outcome, err := v.AutoFix(context.Background(),
		&pipeline.StageResult{IssueType: "credential_expired"}, nil)

	require.Error(t, err)
	assert.False(t, outcome.Fixed)
}

func TestKnowledgeValidator_Passes(t *testing.T) {
	v := NewKnowledgeValidator()

	res, err := v.Validate(context.Background(), ValidateInput{
		Stage: pipeline.StageKnowledge,
		Output: map[string]interface{}{
			"knowledge_context": []interface{}{
				map[string]interface{}{"text": "tenth house governs vocation"},
			},
		},
	})

	require.NoError(t, err)
	assert.True(t, res.Passed)
}

func TestKnowledgeValidator_EmptyKnowledge(t *testing.T) {
	v := NewKnowledgeValidator()

	for _, output := range []map[string]interface{}{
		{},
		{"knowledge_context": []interface{}{}},
		{"knowledge_context": ""},
	} {
		res, err := v.Validate(context.Background(), ValidateInput{
			Stage:  pipeline.StageKnowledge,
			Output: output,
		})
		require.NoError(t, err)
		assert.False(t, res.Passed)
		assert.Equal(t, pipeline.SeverityError, res.Severity)
		assert.Equal(t, "empty_knowledge", res.IssueType)
	}
}

func TestKnowledgeValidator_DocumentMissingText(t *testing.T) {
	v := NewKnowledgeValidator()

	res, err := v.Validate(context.Background(), ValidateInput{
		Stage: pipeline.StageKnowledge,
		Output: map[string]interface{}{
			"knowledge_context": []interface{}{
				map[string]interface{}{"text": "first doc"},
				map[string]interface{}{"source": "kb/42"},
			},
		},
	})

	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, pipeline.SeverityWarning, res.Severity)
	assert.Equal(t, "document_missing_text", res.IssueType)
	assert.Equal(t, 1, res.Actual["document_index"])
}

func TestGenerateValidator_Passes(t *testing.T) {
	v := NewGenerateValidator(GenerateConfig{MinLength: 10, MaxLength: 100})

	res, err := v.Validate(context.Background(), ValidateInput{
		Stage: pipeline.StageGenerate,
		Output: map[string]interface{}{
			"generated_content": "Your chart points toward research work.",
		},
	})

	require.NoError(t, err)
	assert.True(t, res.Passed)
}

func TestGenerateValidator_MissingContentIsCritical(t *testing.T) {
	v := NewGenerateValidator(DefaultGenerateConfig())

	res, err := v.Validate(context.Background(), ValidateInput{
		Stage:  pipeline.StageGenerate,
		Output: map[string]interface{}{},
	})

	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, pipeline.SeverityCritical, res.Severity)
	assert.Equal(t, "missing_content", res.IssueType)
}

func TestGenerateValidator_LengthBounds(t *testing.T) {
	v := NewGenerateValidator(GenerateConfig{MinLength: 20, MaxLength: 40})

	short, err := v.Validate(context.Background(), ValidateInput{
		Stage:  pipeline.StageGenerate,
		Output: map[string]interface{}{"generated_content": "too short"},
	})
	require.NoError(t, err)
	assert.Equal(t, "content_too_short", short.IssueType)
	assert.Equal(t, pipeline.SeverityError, short.Severity)
	assert.False(t, short.AutoFixable)

	long, err := v.Validate(context.Background(), ValidateInput{
		Stage:  pipeline.StageGenerate,
		Output: map[string]interface{}{"generated_content": strings.Repeat("a", 41)},
	})
	require.NoError(t, err)
	assert.Equal(t, "content_too_long", long.IssueType)
	assert.Equal(t, pipeline.SeverityWarning, long.Severity)
	assert.True(t, long.AutoFixable)
}

func TestGenerateValidator_RequiredSections(t *testing.T) {
	v := NewGenerateValidator(GenerateConfig{
		MinLength:        5,
		MaxLength:        500,
		RequiredSections: []string{"Summary", "Outlook"},
	})

	res, err := v.Validate(context.Background(), ValidateInput{
		Stage:  pipeline.StageGenerate,
		Output: map[string]interface{}{"generated_content": "A summary of the reading without the rest."},
	})

	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, "missing_section", res.IssueType)
	assert.Equal(t, []string{"Outlook"}, res.Actual["missing_sections"])
}

func TestGenerateValidator_AutoFixTruncates(t *testing.T) {
	v := NewGenerateValidator(GenerateConfig{MinLength: 1, MaxLength: 10})
	sessionContext := map[string]interface{}{
		"generated_content": strings.Repeat("x", 25),
	}

	outcome, err := v.AutoFix(context.Background(),
		&pipeline.StageResult{IssueType: "content_too_long"}, sessionContext)

	require.NoError(t, err)
	assert.True(t, outcome.Fixed)
	assert.Equal(t, "truncate_payload", outcome.FixType)
	assert.Len(t, sessionContext["generated_content"], 10)
}

func TestGenerateValidator_AutoFixIgnoresOtherIssues(t *testing.T) {
	v := NewGenerateValidator(DefaultGenerateConfig())

	outcome, err := v.AutoFix(context.Background(),
		&pipeline.StageResult{IssueType: "missing_content"}, map[string]interface{}{})

	require.NoError(t, err)
	assert.False(t, outcome.Fixed)
}

func TestMediaValidator_Passes(t *testing.T) {
	v := NewMediaValidator(DefaultMediaConfig())

	res, err := v.Validate(context.Background(), ValidateInput{
		Stage: pipeline.StageMedia,
		Output: map[string]interface{}{
			"asset_url":  "https://cdn.example.com/readings/42.png",
			"asset_size": float64(2048),
		},
	})

	require.NoError(t, err)
	assert.True(t, res.Passed)
}

func TestMediaValidator_MissingAssetFixableOnlyWithFallback(t *testing.T) {
	bare, err := NewMediaValidator(DefaultMediaConfig()).Validate(context.Background(), ValidateInput{
		Stage:  pipeline.StageMedia,
		Output: map[string]interface{}{},
	})
	require.NoError(t, err)
	assert.Equal(t, "missing_asset", bare.IssueType)
	assert.Equal(t, pipeline.SeverityError, bare.Severity)
	assert.False(t, bare.AutoFixable)

	cfg := DefaultMediaConfig()
	cfg.FallbackAssetURL = "https://cdn.example.com/fallback.png"
	fixable, err := NewMediaValidator(cfg).Validate(context.Background(), ValidateInput{
		Stage:  pipeline.StageMedia,
		Output: map[string]interface{}{},
	})
	require.NoError(t, err)
	assert.True(t, fixable.AutoFixable)
}

func TestMediaValidator_UnsupportedFormat(t *testing.T) {
	v := NewMediaValidator(DefaultMediaConfig())

	res, err := v.Validate(context.Background(), ValidateInput{
		Stage:  pipeline.StageMedia,
		Output: map[string]interface{}{"asset_url": "https://cdn.example.com/readings/42.tiff"},
	})

	require.NoError(t, err)
	assert.Equal(t, "unsupported_format", res.IssueType)
	assert.Equal(t, "tiff", res.Actual["format"])
}

func TestMediaValidator_AssetTooLarge(t *testing.T) {
	v := NewMediaValidator(MediaConfig{
		AllowedFormats: []string{"png"},
		MaxAssetBytes:  1024,
	})

	res, err := v.Validate(context.Background(), ValidateInput{
		Stage: pipeline.StageMedia,
		Output: map[string]interface{}{
			"asset_url":  "https://cdn.example.com/readings/42.png",
			"asset_size": 4096,
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "asset_too_large", res.IssueType)
}

func TestMediaValidator_AutoFixSubstitutesFallback(t *testing.T) {
	cfg := DefaultMediaConfig()
	cfg.FallbackAssetURL = "https://cdn.example.com/fallback.png"
	v := NewMediaValidator(cfg)
	sessionContext := map[string]interface{}{"asset_url": "https://cdn.example.com/readings/42.tiff"}

	outcome, err := v.AutoFix(context.Background(),
		&pipeline.StageResult{IssueType: "unsupported_format"}, sessionContext)

	require.NoError(t, err)
	assert.True(t, outcome.Fixed)
	assert.Equal(t, "fallback_asset", outcome.FixType)
	assert.Equal(t, cfg.FallbackAssetURL, sessionContext["asset_url"])
}

func TestPublishValidator_Passes(t *testing.T) {
	v := NewPublishValidator(DefaultPublishConfig())

	res, err := v.Validate(context.Background(), ValidateInput{
		Stage: pipeline.StagePublish,
		Output: map[string]interface{}{
			"ack_id":  "pub_789",
			"visible": true,
		},
	})

	require.NoError(t, err)
	assert.True(t, res.Passed)
}

func TestPublishValidator_MissingAckIsCritical(t *testing.T) {
	v := NewPublishValidator(DefaultPublishConfig())

	res, err := v.Validate(context.Background(), ValidateInput{
		Stage:  pipeline.StagePublish,
		Output: map[string]interface{}{"visible": true},
	})

	require.NoError(t, err)
	assert.Equal(t, pipeline.SeverityCritical, res.Severity)
	assert.Equal(t, "missing_acknowledgement", res.IssueType)
}

func TestPublishValidator_HiddenContentIsWarning(t *testing.T) {
	v := NewPublishValidator(DefaultPublishConfig())

	res, err := v.Validate(context.Background(), ValidateInput{
		Stage: pipeline.StagePublish,
		Output: map[string]interface{}{
			"ack_id":  "pub_789",
			"visible": false,
		},
	})

	require.NoError(t, err)
	assert.Equal(t, pipeline.SeverityWarning, res.Severity)
	assert.Equal(t, "content_hidden", res.IssueType)
}

func TestPublishValidator_RateLimitedBackoff(t *testing.T) {
	v := NewPublishValidator(DefaultPublishConfig())

	res, err := v.Validate(context.Background(), ValidateInput{
		Stage:  pipeline.StagePublish,
		Output: map[string]interface{}{"rate_limited": true},
	})
	require.NoError(t, err)
	assert.Equal(t, "rate_limited", res.IssueType)
	assert.True(t, res.AutoFixable)

	sessionContext := map[string]interface{}{}
	outcome, err := v.AutoFix(context.Background(), res, sessionContext)
	require.NoError(t, err)
	assert.True(t, outcome.Fixed)
	assert.Equal(t, "rate_limit_backoff", outcome.FixType)
	assert.True(t, outcome.RetryNeeded)
	assert.NotEmpty(t, sessionContext["publish_backoff_until"])
}
