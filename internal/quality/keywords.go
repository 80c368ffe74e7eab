package quality

import "context"

// keywordGroup is one topical keyword set. The weight says how much a
// request-detected group counts toward the overlap score.
type keywordGroup struct {
	topic    string
	weight   float64
	keywords []string
}

// keywordGroups cover the request topics the content service answers.
// Groups detected in the request must reappear in the generated output.
var keywordGroups = []keywordGroup{
	{topic: "career", weight: 1.0, keywords: []string{
		"career", "job", "work", "profession", "promotion", "business",
		"workplace", "employment", "colleague", "interview",
	}},
	{topic: "love", weight: 1.0, keywords: []string{
		"love", "relationship", "partner", "romance", "romantic", "marriage",
		"dating", "heart", "soulmate",
	}},
	{topic: "finance", weight: 0.9, keywords: []string{
		"money", "finance", "financial", "wealth", "investment", "income",
		"savings", "debt", "budget",
	}},
	{topic: "health", weight: 0.9, keywords: []string{
		"health", "wellness", "healing", "body", "sleep", "stress",
		"vitality", "recovery",
	}},
	{topic: "family", weight: 0.8, keywords: []string{
		"family", "children", "parents", "home", "sibling", "mother",
		"father",
	}},
	{topic: "education", weight: 0.8, keywords: []string{
		"education", "study", "learning", "exam", "school", "university",
		"course",
	}},
	{topic: "travel", weight: 0.7, keywords: []string{
		"travel", "journey", "trip", "abroad", "relocation", "move",
	}},
	{topic: "spiritual", weight: 0.7, keywords: []string{
		"spiritual", "destiny", "fate", "purpose", "meaning", "fortune",
	}},
}

// KeywordScorer measures weighted overlap of topical keyword sets between
// the request and the generated output.
type KeywordScorer struct{}

// NewKeywordScorer creates the keyword overlap scorer.
func NewKeywordScorer() *KeywordScorer {
	return &KeywordScorer{}
}

// Name returns the sub-score key.
func (s *KeywordScorer) Name() string { return ScoreKeywordMatch }

// Score finds the keyword groups present in the request and returns the
// weighted fraction of them echoed in the output. A request mentioning no
// known topic scores neutral.
func (s *KeywordScorer) Score(_ context.Context, in ScoreInput) (float64, error) {
	requestTokens := tokenSet(in.Request)
	outputTokens := tokenSet(in.Output)

	var total, matched float64
	for _, group := range keywordGroups {
		if !containsAny(requestTokens, group.keywords) {
			continue
		}
		total += group.weight
		if containsAny(outputTokens, group.keywords) {
			matched += group.weight
		}
	}
	if total == 0 {
		return neutralScore, nil
	}
	return clamp01(matched / total), nil
}

var _ Scorer = (*KeywordScorer)(nil)
