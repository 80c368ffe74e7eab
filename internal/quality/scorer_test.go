package quality

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/pipevet/internal/config"
)

func testQualityConfig() config.QualityConfig {
	return config.QualityConfig{
		Weights: config.WeightsConfig{
			KeywordMatch:       0.25,
			DomainMatch:        0.30,
			ContextRelevance:   0.20,
			SemanticSimilarity: 0.15,
			Authenticity:       0.10,
		},
		RelevanceGate:          0.65,
		ResponseQualityGate:    0.6,
		AuthenticityGate:       0.8,
		MaxEmbedCallsPerMinute: 60,
		EmbedCacheSize:         1024,
		MinLength:              120,
		MaxLength:              6000,
	}
}

func TestTokenize(t *testing.T) {
	tokens := tokenize("You'll find GROWTH: trust, balance... 42 times!")
	assert.Equal(t, []string{"you'll", "find", "growth", "trust", "balance", "times"}, tokens)
}

func TestTokenize_Empty(t *testing.T) {
	assert.Empty(t, tokenize(""))
	assert.Empty(t, tokenize("123 456 --- !!!"))
}

func TestComposite_FullScores(t *testing.T) {
	scores := map[string]float64{
		ScoreKeywordMatch:       1,
		ScoreDomainMatch:        1,
		ScoreContextRelevance:   1,
		ScoreSemanticSimilarity: 1,
		ScoreAuthenticity:       1,
	}
	assert.InDelta(t, 1.0, Composite(scores, testQualityConfig().Weights), 1e-9)
}

func TestComposite_MissingScoresCountZero(t *testing.T) {
	scores := map[string]float64{ScoreDomainMatch: 1}
	assert.InDelta(t, 0.30, Composite(scores, testQualityConfig().Weights), 1e-9)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-0.3))
	assert.Equal(t, 1.0, clamp01(1.7))
	assert.Equal(t, 0.42, clamp01(0.42))
}

func TestKeywordScorer_EchoedGroups(t *testing.T) {
	s := NewKeywordScorer()

	score, err := s.Score(context.Background(), ScoreInput{
		Request: "Will I get the promotion at work, and will my savings grow?",
		Output:  "Your career is moving upward this season.",
	})
	require.NoError(t, err)

	// Career (weight 1.0) and finance (weight 0.9) detected in the request;
	// only career is echoed in the output.
	assert.InDelta(t, 1.0/1.9, score, 1e-9)
}

func TestKeywordScorer_AllEchoed(t *testing.T) {
	s := NewKeywordScorer()

	score, err := s.Score(context.Background(), ScoreInput{
		Request: "Will my relationship survive this move abroad?",
		Output:  "Love travels with you; this journey strengthens your partner bond.",
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestKeywordScorer_NoKnownTopicIsNeutral(t *testing.T) {
	s := NewKeywordScorer()

	score, err := s.Score(context.Background(), ScoreInput{
		Request: "Tell me something nice.",
		Output:  "Here is something nice.",
	})
	require.NoError(t, err)
	assert.Equal(t, neutralScore, score)
}

func TestRelevanceScorer_ReuseDensity(t *testing.T) {
	s := NewRelevanceScorer()

	in := ScoreInput{
		Output: "The libra energy brings harmony to everything you touch.",
		Context: map[string]interface{}{
			"source_data": map[string]interface{}{
				"zodiac":  "libra",
				"element": "air",
				"focus":   "harmony patience discipline",
			},
		},
	}

	score, err := s.Score(context.Background(), in)
	require.NoError(t, err)

	// 2 of 5 reference terms reused: density 0.4 scales to full credit.
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestRelevanceScorer_NoSourceDataIsNeutral(t *testing.T) {
	s := NewRelevanceScorer()

	score, err := s.Score(context.Background(), ScoreInput{
		Output:  "Anything at all.",
		Context: map[string]interface{}{"user_question": "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, neutralScore, score)
}

func TestRelevanceScorer_NoReuseScoresZero(t *testing.T) {
	s := NewRelevanceScorer()

	score, err := s.Score(context.Background(), ScoreInput{
		Output: "Completely unrelated words only.",
		Context: map[string]interface{}{
			"source_data": map[string]interface{}{"zodiac": "libra", "element": "fire"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestReferenceTerms_NestedLeaves(t *testing.T) {
	terms := referenceTerms(map[string]interface{}{
		"source_data": map[string]interface{}{
			"profile": map[string]interface{}{"sign": "gemini"},
			"lucky":   []interface{}{"emerald", "tuesday"},
			"short":   "ab",
		},
	})

	assert.Contains(t, terms, "gemini")
	assert.Contains(t, terms, "emerald")
	assert.Contains(t, terms, "tuesday")
	assert.NotContains(t, terms, "ab")
}

func TestAuthenticityScorer_FullVoice(t *testing.T) {
	s := NewAuthenticityScorer()

	score, err := s.Score(context.Background(), ScoreInput{
		Output: "You will find balance on your journey. Trust your energy and embrace the growth your path offers you.",
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestAuthenticityScorer_FlatProseScoresLow(t *testing.T) {
	s := NewAuthenticityScorer()

	score, err := s.Score(context.Background(), ScoreInput{
		Output: "The quarterly report shows revenue increased by twelve percent compared with the previous fiscal period.",
	})
	require.NoError(t, err)
	assert.Less(t, score, 0.2)
}

func TestAuthenticityScorer_EmptyOutput(t *testing.T) {
	s := NewAuthenticityScorer()

	score, err := s.Score(context.Background(), ScoreInput{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestScorerNames(t *testing.T) {
	assert.Equal(t, ScoreKeywordMatch, NewKeywordScorer().Name())
	assert.Equal(t, ScoreDomainMatch, NewDomainScorer().Name())
	assert.Equal(t, ScoreContextRelevance, NewRelevanceScorer().Name())
	assert.Equal(t, ScoreAuthenticity, NewAuthenticityScorer().Name())
	assert.Equal(t, ScoreSemanticSimilarity, NewSemanticScorer(nil, 0, 0, nil).Name())
}

// Guards the latency normalization used by the UX composite.
func TestUserExperienceLatencyBuckets(t *testing.T) {
	fast := userExperience(testSession(2*time.Second), "", 0)
	slow := userExperience(testSession(20*time.Second), "", 0)
	assert.Greater(t, fast, slow)
}
