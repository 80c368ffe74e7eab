package stages

import (
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
)

// Registry maps stages to their validators. The auto-fix capability of each
// validator is detected once, at registration.
type Registry struct {
	logger     *zap.Logger
	validators map[pipeline.Stage]Validator
	fixers     map[pipeline.Stage]AutoFixer
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:     logger,
		validators: make(map[pipeline.Stage]Validator),
		fixers:     make(map[pipeline.Stage]AutoFixer),
	}
}

// NewDefaultRegistry creates a registry with the default validator for each
// canonical stage.
func NewDefaultRegistry(logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	_ = r.Register(pipeline.StageFetch, NewFetchValidator(DefaultFetchConfig(), nil))
	_ = r.Register(pipeline.StageKnowledge, NewKnowledgeValidator())
	_ = r.Register(pipeline.StageGenerate, NewGenerateValidator(DefaultGenerateConfig()))
	_ = r.Register(pipeline.StageMedia, NewMediaValidator(DefaultMediaConfig()))
	_ = r.Register(pipeline.StagePublish, NewPublishValidator(DefaultPublishConfig()))
	return r
}

// Register binds a validator to a stage. Re-registering a stage replaces the
// previous binding, including its fixer capability. Registration happens
// during wiring; Register is not safe for concurrent use with lookups.
func (r *Registry) Register(stage pipeline.Stage, v Validator) error {
	if stage == "" {
		return errors.New("stage is required")
	}
	if v == nil {
		return errors.New("validator is required")
	}

	r.validators[stage] = v
	fixer, fixable := v.(AutoFixer)
	if fixable {
		r.fixers[stage] = fixer
	} else {
		delete(r.fixers, stage)
	}

	r.logger.Debug("stage validator registered",
		zap.String("stage", string(stage)),
		zap.Bool("auto_fixer", fixable),
	)
	return nil
}

// Validator returns the validator registered for the stage.
func (r *Registry) Validator(stage pipeline.Stage) (Validator, bool) {
	v, ok := r.validators[stage]
	return v, ok
}

// Fixer returns the auto-fix capability registered for the stage.
func (r *Registry) Fixer(stage pipeline.Stage) (AutoFixer, bool) {
	f, ok := r.fixers[stage]
	return f, ok
}

// Stages lists the registered stages in canonical order, with unknown
// stages appended alphabetically.
func (r *Registry) Stages() []pipeline.Stage {
	out := make([]pipeline.Stage, 0, len(r.validators))
	for stage := range r.validators {
		out = append(out, stage)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].Position(), out[j].Position()
		if pi != pj {
			if pi == -1 {
				return false
			}
			if pj == -1 {
				return true
			}
			return pi < pj
		}
		return out[i] < out[j]
	})
	return out
}
