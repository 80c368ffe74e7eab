package quality

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/fyrsmithlabs/pipevet/internal/config"
)

// Tone vocabularies for the encouragement balance check.
var positiveTones = asVocabulary([]string{
	"will", "can", "grow", "growth", "succeed", "success", "flourish",
	"improve", "opportunity", "hope", "strength", "achieve", "bright",
	"thrive", "confidence",
})

var negativeTones = asVocabulary([]string{
	"never", "fail", "failure", "lose", "loss", "fear", "worry", "doubt",
	"cannot", "impossible", "hopeless", "stuck",
})

// Words too generic to identify the subject of a request.
var phraseStopwords = asVocabulary([]string{
	"what", "when", "where", "which", "will", "with", "your", "yours",
	"about", "should", "could", "would", "this", "that", "these", "those",
	"they", "them", "there", "have", "does", "from", "into", "want",
	"need", "tell", "give", "know", "going", "been", "some", "more",
	"really", "please",
})

// minimum word length for a request token to count as a key phrase
const minPhraseLength = 4

// checklist check names
const (
	checkPersonaVoice   = "persona_voice"
	checkSourceGrounded = "source_grounded"
	checkRequestCovered = "request_covered"
	checkLengthBounds   = "length_bounds"
	checkToneBalance    = "tone_balance"
	checkTerminology    = "terminology"
)

// ChecklistItem is one deterministic response-quality check. A failed check
// carries a concrete suggestion for fixing the content.
type ChecklistItem struct {
	Name       string `json:"name"`
	Passed     bool   `json:"passed"`
	Suggestion string `json:"suggestion,omitempty"`
}

// evaluateChecklist runs the fixed response-quality checks against the
// generated output. Checks that have nothing to judge pass vacuously.
func evaluateChecklist(in ScoreInput, cfg config.QualityConfig) []ChecklistItem {
	tokens := tokenize(in.Output)
	outputSet := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		outputSet[tok] = struct{}{}
	}

	items := make([]ChecklistItem, 0, 6)

	voice := countOccurrences(tokens, voiceMarkers) > 0
	items = append(items, check(checkPersonaVoice, voice,
		"Rewrite the guidance in direct second person so it speaks to the reader."))

	grounded := true
	if terms := referenceTerms(in.Context); len(terms) > 0 {
		grounded = false
		for term := range terms {
			if _, ok := outputSet[term]; ok {
				grounded = true
				break
			}
		}
	}
	items = append(items, check(checkSourceGrounded, grounded,
		"Reference the retrieved source data explicitly in the generated content."))

	items = append(items, check(checkRequestCovered, requestCovered(in.Request, outputSet),
		"Echo the key subjects of the request so the response stays on topic."))

	length := utf8.RuneCountInString(in.Output)
	withinBounds := length >= cfg.MinLength && length <= cfg.MaxLength
	items = append(items, check(checkLengthBounds, withinBounds,
		fmt.Sprintf("Keep the content between %d and %d characters.", cfg.MinLength, cfg.MaxLength)))

	positive := countOccurrences(tokens, positiveTones)
	negative := countOccurrences(tokens, negativeTones)
	items = append(items, check(checkToneBalance, positive >= 1 && positive >= negative,
		"Balance the tone so encouragement outweighs warnings."))

	items = append(items, check(checkTerminology, countOccurrences(tokens, terminologyMarkers) >= 2,
		"Work more of the advisory vocabulary into the guidance."))

	return items
}

func check(name string, passed bool, suggestion string) ChecklistItem {
	item := ChecklistItem{Name: name, Passed: passed}
	if !passed {
		item.Suggestion = suggestion
	}
	return item
}

// requestCovered requires the output to reuse at least two of the request's
// top key phrases. Requests with fewer than two candidate phrases require
// all of them; requests with none pass vacuously.
func requestCovered(request string, outputSet map[string]struct{}) bool {
	phrases := keyPhrases(request, 5)
	required := 2
	if len(phrases) < required {
		required = len(phrases)
	}
	matched := 0
	for _, p := range phrases {
		if _, ok := outputSet[p]; ok {
			matched++
		}
	}
	return matched >= required
}

// keyPhrases extracts up to limit distinct request tokens, preferring longer
// words. Ties break lexicographically so the selection is deterministic.
func keyPhrases(request string, limit int) []string {
	seen := make(map[string]struct{})
	var candidates []string
	for _, tok := range tokenize(request) {
		if len(tok) < minPhraseLength {
			continue
		}
		if _, stop := phraseStopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		candidates = append(candidates, tok)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if len(candidates[i]) != len(candidates[j]) {
			return len(candidates[i]) > len(candidates[j])
		}
		return candidates[i] < candidates[j]
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// checklistScore is the fraction of passed checks.
func checklistScore(items []ChecklistItem) float64 {
	if len(items) == 0 {
		return 1
	}
	passed := 0
	for _, item := range items {
		if item.Passed {
			passed++
		}
	}
	return float64(passed) / float64(len(items))
}
