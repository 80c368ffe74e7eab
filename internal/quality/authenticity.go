package quality

import "context"

// Second-person address marks guidance written to the reader rather than
// about them.
var voiceMarkers = asVocabulary([]string{"you", "your", "you'll", "yourself"})

// House terminology expected from the advisory persona.
var terminologyMarkers = asVocabulary([]string{
	"energy", "path", "journey", "insight", "guidance", "balance",
	"opportunity", "growth", "reflect", "embrace", "trust", "potential",
})

// AuthenticityScorer checks that output keeps the persona voice: direct
// second-person address plus the house terminology, measured as token
// densities against expected floors.
type AuthenticityScorer struct{}

// NewAuthenticityScorer creates the persona voice scorer.
func NewAuthenticityScorer() *AuthenticityScorer { return &AuthenticityScorer{} }

// Name returns the sub-score key.
func (s *AuthenticityScorer) Name() string { return ScoreAuthenticity }

// Score rates voice density (60%) and terminology density (40%). Full credit
// needs one second-person token per 20 words and one term per 50 words.
func (s *AuthenticityScorer) Score(_ context.Context, in ScoreInput) (float64, error) {
	tokens := tokenize(in.Output)
	if len(tokens) == 0 {
		return 0, nil
	}

	voiceHits := countOccurrences(tokens, voiceMarkers)
	termHits := countOccurrences(tokens, terminologyMarkers)

	total := float64(len(tokens))
	voiceDensity := float64(voiceHits) / total
	termDensity := float64(termHits) / total

	voiceScore := min1(voiceDensity / 0.05)
	termScore := min1(termDensity / 0.02)

	return clamp01(0.6*voiceScore + 0.4*termScore), nil
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

var _ Scorer = (*AuthenticityScorer)(nil)
