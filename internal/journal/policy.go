package journal

import (
	"sort"

	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
)

// Policy maps each pipeline stage to the context fields introduced by that
// stage which later stages must preserve. Requirements accumulate: the
// fields required at a stage are the union of the fields declared for every
// stage at or before it in the canonical order.
type Policy struct {
	fields map[pipeline.Stage][]string
}

// DefaultPolicy returns the compiled-in critical-field policy for the
// content generation pipeline.
func DefaultPolicy() *Policy {
	return NewPolicy(map[pipeline.Stage][]string{
		pipeline.StageFetch:     {"user_question", "source_data"},
		pipeline.StageKnowledge: {"knowledge_context"},
		pipeline.StageGenerate:  {"generated_content"},
	})
}

// NewPolicy builds a policy from per-stage field declarations. Declarations
// for unknown stages are ignored.
func NewPolicy(perStage map[pipeline.Stage][]string) *Policy {
	fields := make(map[pipeline.Stage][]string, len(perStage))
	for stage, names := range perStage {
		if !stage.Known() {
			continue
		}
		copied := make([]string, len(names))
		copy(copied, names)
		fields[stage] = copied
	}
	return &Policy{fields: fields}
}

// PolicyFromConfig converts a config critical-field table (keyed by stage
// name) into a Policy. Falls back to the default policy when the table is
// empty.
func PolicyFromConfig(table map[string][]string) *Policy {
	if len(table) == 0 {
		return DefaultPolicy()
	}
	perStage := make(map[pipeline.Stage][]string, len(table))
	for name, fields := range table {
		perStage[pipeline.Stage(name)] = fields
	}
	return NewPolicy(perStage)
}

// RequiredAt returns the cumulative set of critical fields required when the
// given stage runs, sorted for deterministic iteration. Unknown stages have
// no requirements.
func (p *Policy) RequiredAt(stage pipeline.Stage) []string {
	pos := stage.Position()
	if pos < 0 {
		return nil
	}

	set := make(map[string]bool)
	for _, s := range pipeline.CanonicalOrder() {
		if s.Position() > pos {
			break
		}
		for _, f := range p.fields[s] {
			set[f] = true
		}
	}

	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Universe returns every critical field the policy declares across all
// stages, sorted.
func (p *Policy) Universe() []string {
	set := make(map[string]bool)
	for _, names := range p.fields {
		for _, f := range names {
			set[f] = true
		}
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
