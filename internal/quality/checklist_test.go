package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findCheck(t *testing.T, items []ChecklistItem, name string) ChecklistItem {
	t.Helper()
	for _, item := range items {
		if item.Name == name {
			return item
		}
	}
	t.Fatalf("check %q not found", name)
	return ChecklistItem{}
}

// richOutput passes every checklist item against richInput.
func richInput() ScoreInput {
	return ScoreInput{
		Request: "Will my relationship with my partner grow stronger this year?",
		Output: "Your relationship is entering a season of growth. You and your " +
			"partner will find that love deepens when you embrace patience and " +
			"harmony together. Trust your heart, reflect on the journey you " +
			"share, and your bond will grow stronger. The energy around you " +
			"favors balance, and this path brings real opportunity.",
		Context: map[string]interface{}{
			"source_data": map[string]interface{}{
				"zodiac": "libra",
				"focus":  "harmony patience",
			},
		},
	}
}

func TestChecklist_AllPass(t *testing.T) {
	items := evaluateChecklist(richInput(), testQualityConfig())

	require.Len(t, items, 6)
	for _, item := range items {
		assert.True(t, item.Passed, "check %s failed", item.Name)
		assert.Empty(t, item.Suggestion)
	}
	assert.Equal(t, 1.0, checklistScore(items))
}

func TestChecklist_PersonaVoice(t *testing.T) {
	in := richInput()
	in.Output = "The subject should expect moderate improvements across most " +
		"areas during the coming months, with stable conditions overall and " +
		"gradual progress in the second half given current trends and signals."

	item := findCheck(t, evaluateChecklist(in, testQualityConfig()), checkPersonaVoice)
	assert.False(t, item.Passed)
	assert.Contains(t, item.Suggestion, "second person")
}

func TestChecklist_SourceGrounding(t *testing.T) {
	in := richInput()
	in.Context = map[string]interface{}{
		"source_data": map[string]interface{}{"zodiac": "capricorn", "stone": "garnet"},
	}

	item := findCheck(t, evaluateChecklist(in, testQualityConfig()), checkSourceGrounded)
	assert.False(t, item.Passed)
	assert.Contains(t, item.Suggestion, "source data")
}

func TestChecklist_SourceGroundingVacuousWithoutSourceData(t *testing.T) {
	in := richInput()
	in.Context = map[string]interface{}{}

	item := findCheck(t, evaluateChecklist(in, testQualityConfig()), checkSourceGrounded)
	assert.True(t, item.Passed)
}

func TestChecklist_RequestCoverage(t *testing.T) {
	in := richInput()
	in.Request = "Will my investment portfolio recover after the downturn?"

	item := findCheck(t, evaluateChecklist(in, testQualityConfig()), checkRequestCovered)
	assert.False(t, item.Passed)
	assert.Contains(t, item.Suggestion, "request")
}

func TestChecklist_RequestCoverageVacuousWithoutPhrases(t *testing.T) {
	in := richInput()
	in.Request = "so, um..."

	item := findCheck(t, evaluateChecklist(in, testQualityConfig()), checkRequestCovered)
	assert.True(t, item.Passed)
}

func TestChecklist_LengthBounds(t *testing.T) {
	in := richInput()
	in.Output = "You will do fine."

	item := findCheck(t, evaluateChecklist(in, testQualityConfig()), checkLengthBounds)
	assert.False(t, item.Passed)
	assert.Contains(t, item.Suggestion, "between 120 and 6000")
}

func TestChecklist_ToneBalance(t *testing.T) {
	in := richInput()
	in.Output = "You cannot win this. Fear and doubt follow every loss, and " +
		"failure shadows whatever you attempt; never expect the outcome to " +
		"change, because your worry is justified and the doubt runs deep."

	item := findCheck(t, evaluateChecklist(in, testQualityConfig()), checkToneBalance)
	assert.False(t, item.Passed)
	assert.Contains(t, item.Suggestion, "tone")
}

func TestChecklist_Terminology(t *testing.T) {
	in := richInput()
	in.Output = "You should talk to your manager about the open position and " +
		"ask directly what the team expects from you before the next review " +
		"cycle begins, then follow up with them in writing afterwards."

	item := findCheck(t, evaluateChecklist(in, testQualityConfig()), checkTerminology)
	assert.False(t, item.Passed)
	assert.Contains(t, item.Suggestion, "vocabulary")
}

func TestChecklistScore_Fraction(t *testing.T) {
	items := []ChecklistItem{
		{Name: "a", Passed: true},
		{Name: "b", Passed: false},
		{Name: "c", Passed: true},
		{Name: "d", Passed: false},
	}
	assert.Equal(t, 0.5, checklistScore(items))
	assert.Equal(t, 1.0, checklistScore(nil))
}

func TestKeyPhrases_LongDistinctWordsFirst(t *testing.T) {
	phrases := keyPhrases("Will my relationship with my partner grow stronger this year?", 5)

	assert.Equal(t, []string{"relationship", "stronger", "partner", "grow", "year"}, phrases)
}

func TestKeyPhrases_SkipsStopwordsAndShortTokens(t *testing.T) {
	phrases := keyPhrases("what should I do about this?", 5)
	assert.Empty(t, phrases)
}

func TestKeyPhrases_Deterministic(t *testing.T) {
	first := keyPhrases("career money health family travel wisdom", 3)
	second := keyPhrases("career money health family travel wisdom", 3)
	assert.Equal(t, first, second)
	assert.Len(t, first, 3)
}

func TestFailingChecksEmitDistinctSuggestions(t *testing.T) {
	in := ScoreInput{Request: "Will my career recover?", Output: "No."}
	items := evaluateChecklist(in, testQualityConfig())

	seen := map[string]bool{}
	for _, item := range items {
		if item.Passed {
			continue
		}
		require.NotEmpty(t, item.Suggestion)
		assert.False(t, seen[item.Suggestion], "duplicate suggestion %q", item.Suggestion)
		seen[item.Suggestion] = true
	}
	assert.NotEmpty(t, seen)
}

func TestChecklist_SuggestionsAreActionable(t *testing.T) {
	in := ScoreInput{Request: "", Output: ""}
	for _, item := range evaluateChecklist(in, testQualityConfig()) {
		if !item.Passed {
			assert.True(t, strings.HasSuffix(item.Suggestion, "."),
				"suggestion for %s should be a sentence", item.Name)
		}
	}
}
