package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
)

// plainValidator passes everything and has no fixer capability.
type plainValidator struct{}

func (plainValidator) Validate(_ context.Context, in ValidateInput) (*pipeline.StageResult, error) {
	return PassResult(in), nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	require.NoError(t, r.Register(pipeline.StageFetch, plainValidator{}))

	v, ok := r.Validator(pipeline.StageFetch)
	require.True(t, ok)
	assert.NotNil(t, v)

	_, ok = r.Validator(pipeline.StageKnowledge)
	assert.False(t, ok)
}

func TestRegistry_RegisterValidatesArguments(t *testing.T) {
	r := NewRegistry(nil)

	assert.Error(t, r.Register("", plainValidator{}))
	assert.Error(t, r.Register(pipeline.StageFetch, nil))
}

func TestRegistry_FixerCapabilityDetectedAtRegistration(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	require.NoError(t, r.Register(pipeline.StageGenerate, NewGenerateValidator(DefaultGenerateConfig())))
	require.NoError(t, r.Register(pipeline.StageKnowledge, NewKnowledgeValidator()))

	_, ok := r.Fixer(pipeline.StageGenerate)
	assert.True(t, ok)

	_, ok = r.Fixer(pipeline.StageKnowledge)
	assert.False(t, ok, "knowledge validator has no mechanical fix")
}

func TestRegistry_ReRegisterReplacesFixerCapability(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	require.NoError(t, r.Register(pipeline.StageGenerate, NewGenerateValidator(DefaultGenerateConfig())))
	_, ok := r.Fixer(pipeline.StageGenerate)
	require.True(t, ok)

	require.NoError(t, r.Register(pipeline.StageGenerate, plainValidator{}))
	_, ok = r.Fixer(pipeline.StageGenerate)
	assert.False(t, ok)
}

func TestNewDefaultRegistry_CoversCanonicalStages(t *testing.T) {
	r := NewDefaultRegistry(zap.NewNop())

	for _, stage := range pipeline.CanonicalOrder() {
		_, ok := r.Validator(stage)
		assert.True(t, ok, "stage %s should have a default validator", stage)
	}
	assert.Equal(t, pipeline.CanonicalOrder(), r.Stages())
}

func TestRegistry_StagesOrdersUnknownLast(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	require.NoError(t, r.Register(pipeline.Stage("archive"), plainValidator{}))
	require.NoError(t, r.Register(pipeline.StagePublish, plainValidator{}))
	require.NoError(t, r.Register(pipeline.StageFetch, plainValidator{}))

	assert.Equal(t, []pipeline.Stage{pipeline.StageFetch, pipeline.StagePublish, pipeline.Stage("archive")}, r.Stages())
}

func TestUnknownStageResult(t *testing.T) {
	res := UnknownStageResult(pipeline.Stage("archive"), 1200)

	assert.True(t, res.Passed)
	assert.Equal(t, pipeline.SeverityWarning, res.Severity)
	assert.Equal(t, "unknown_stage", res.IssueType)
	assert.Equal(t, int64(1200), res.DurationMS)
}
