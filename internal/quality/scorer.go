package quality

import (
	"context"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/pipevet/internal/config"
)

const instrumentationName = "github.com/fyrsmithlabs/pipevet/internal/quality"

// Sub-score names. They key both the weights table and the session's
// QualityMetrics.Scores map.
const (
	ScoreKeywordMatch       = "keyword_match"
	ScoreDomainMatch        = "domain_match"
	ScoreContextRelevance   = "context_relevance"
	ScoreSemanticSimilarity = "semantic_similarity"
	ScoreAuthenticity       = "authenticity"
)

// Aggregate score names reported alongside the weighted sub-scores.
const (
	ScoreComposite           = "composite"
	ScoreResponseQuality     = "response_quality"
	ScoreChainCompleteness   = "chain_completeness"
	ScoreStructuredData      = "structured_data"
	ScoreContextPreservation = "context_preservation"
	ScoreUserExperience      = "ux"
)

// neutralScore is returned when a scorer has nothing to judge or its backing
// provider failed. Neutral never moves a gate decision on its own.
const neutralScore = 0.5

// ScoreInput carries the texts a scorer inspects, extracted once from the
// session's final context.
type ScoreInput struct {
	// Request is the originating user request.
	Request string

	// Output is the final generated content.
	Output string

	// Knowledge is the flattened retrieved-knowledge text.
	Knowledge string

	// Context is the session's full accumulated context map.
	Context map[string]interface{}
}

// Scorer computes one independent sub-score in [0,1]. Implementations are
// swappable strategies behind this interface.
type Scorer interface {
	// Name returns the sub-score key.
	Name() string

	// Score computes the sub-score. Errors mean the scorer itself broke;
	// scorers that depend on flaky providers degrade to neutral internally
	// instead of erroring.
	Score(ctx context.Context, in ScoreInput) (float64, error)
}

// Composite folds named sub-scores into the fixed convex combination. Scores
// missing from the map count as zero.
func Composite(scores map[string]float64, weights config.WeightsConfig) float64 {
	sum := scores[ScoreKeywordMatch]*weights.KeywordMatch +
		scores[ScoreDomainMatch]*weights.DomainMatch +
		scores[ScoreContextRelevance]*weights.ContextRelevance +
		scores[ScoreSemanticSimilarity]*weights.SemanticSimilarity +
		scores[ScoreAuthenticity]*weights.Authenticity
	return clamp01(sum)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var wordPattern = regexp.MustCompile(`[a-z][a-z']*`)

// tokenize lowercases the text and extracts word tokens.
func tokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// tokenSet returns the distinct word tokens of the text.
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}

// containsAny reports whether any of the words is in the token set.
func containsAny(set map[string]struct{}, words []string) bool {
	for _, w := range words {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}

// countOccurrences counts how many tokens appear in the vocabulary.
func countOccurrences(tokens []string, vocabulary map[string]struct{}) int {
	count := 0
	for _, tok := range tokens {
		if _, ok := vocabulary[tok]; ok {
			count++
		}
	}
	return count
}

func asVocabulary(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
