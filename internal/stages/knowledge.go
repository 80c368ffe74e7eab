package stages

import (
	"context"

	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
)

// KnowledgeValidator checks the knowledge retrieval stage: the retrieved
// context must be non-empty, and document-shaped entries must carry text.
// Retrieval failures have no mechanical fix, so the validator deliberately
// does not implement AutoFixer.
type KnowledgeValidator struct{}

// NewKnowledgeValidator creates a knowledge validator.
func NewKnowledgeValidator() *KnowledgeValidator {
	return &KnowledgeValidator{}
}

// Validate checks one knowledge retrieval execution.
func (v *KnowledgeValidator) Validate(_ context.Context, in ValidateInput) (*pipeline.StageResult, error) {
	kc := in.Output["knowledge_context"]
	if emptyValue(kc) {
		return FailResult(in, pipeline.SeverityError, "empty_knowledge",
			map[string]interface{}{"knowledge_context": "at least one retrieved document"},
			map[string]interface{}{"knowledge_context": kc},
			false,
		), nil
	}

	if docs, ok := kc.([]interface{}); ok {
		for i, doc := range docs {
			entry, isMap := doc.(map[string]interface{})
			if !isMap {
				continue
			}
			if text, _ := entry["text"].(string); text == "" {
				return FailResult(in, pipeline.SeverityWarning, "document_missing_text",
					map[string]interface{}{"text": "non-empty document body"},
					map[string]interface{}{"document_index": i},
					false,
				), nil
			}
		}
	}

	return PassResult(in), nil
}

var _ Validator = (*KnowledgeValidator)(nil)
