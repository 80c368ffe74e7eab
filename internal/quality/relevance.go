package quality

import "context"

// relevanceFullCredit is the reuse fraction that earns a full score.
// Reusing 40% of the distinct reference terms is treated as fully grounded
// output; the density is scaled up accordingly and capped at 1.
const relevanceFullCredit = 0.4

// minReferenceTermLength filters trivial tokens out of the reference
// vocabulary.
const minReferenceTermLength = 3

// RelevanceScorer measures how much of the structured source data the
// generated output actually references.
type RelevanceScorer struct{}

// NewRelevanceScorer creates the structured-data reuse scorer.
func NewRelevanceScorer() *RelevanceScorer {
	return &RelevanceScorer{}
}

// Name returns the sub-score key.
func (s *RelevanceScorer) Name() string { return ScoreContextRelevance }

// Score extracts reference terms from the context's structured source data
// and returns the capped reuse density in the output. Sessions without
// source data score neutral.
func (s *RelevanceScorer) Score(_ context.Context, in ScoreInput) (float64, error) {
	terms := referenceTerms(in.Context)
	if len(terms) == 0 {
		return neutralScore, nil
	}

	outputTokens := tokenSet(in.Output)
	reused := 0
	for term := range terms {
		if _, ok := outputTokens[term]; ok {
			reused++
		}
	}

	density := float64(reused) / float64(len(terms))
	return clamp01(density / relevanceFullCredit), nil
}

// referenceTerms collects distinct word tokens from the scalar leaves of the
// context's source_data subtree.
func referenceTerms(contextMap map[string]interface{}) map[string]struct{} {
	terms := make(map[string]struct{})
	source, ok := contextMap["source_data"]
	if !ok {
		return terms
	}
	collectLeafTerms(source, terms)
	return terms
}

func collectLeafTerms(v interface{}, terms map[string]struct{}) {
	switch val := v.(type) {
	case string:
		for _, tok := range tokenize(val) {
			if len(tok) < minReferenceTermLength {
				continue
			}
			terms[tok] = struct{}{}
		}
	case map[string]interface{}:
		for _, nested := range val {
			collectLeafTerms(nested, terms)
		}
	case []interface{}:
		for _, item := range val {
			collectLeafTerms(item, terms)
		}
	}
}

var _ Scorer = (*RelevanceScorer)(nil)
