package quality

import (
	"context"
	"regexp"
)

// domainRule pairs a compiled regex with the domain it detects. Rules are
// evaluated in order; for classification the first match wins.
type domainRule struct {
	regex  *regexp.Regexp
	domain string
}

// domainRules classify request topics. More specific patterns are listed
// first to avoid shadowing. All patterns are case-insensitive.
var domainRules = []domainRule{
	{regexp.MustCompile(`(?i)\b(?:career|job|work(?:place|ing)?|profession(?:al)?|promotion|employ(?:er|ment|ee)?|business|interview|colleagues?)\b`), "career"},
	{regexp.MustCompile(`(?i)\b(?:love|relationships?|partner|roman(?:ce|tic)|marriage|marry|dating|soulmate|crush)\b`), "love"},
	{regexp.MustCompile(`(?i)\b(?:money|financ(?:e|es|ial)|wealth|invest(?:ment|ing)?|income|savings?|debts?|budget)\b`), "finance"},
	{regexp.MustCompile(`(?i)\b(?:health|wellness|healing|illness|sleep|stress|vitality|recovery|diet)\b`), "health"},
	{regexp.MustCompile(`(?i)\b(?:family|child(?:ren)?|parents?|home|siblings?|mother|father)\b`), "family"},
	{regexp.MustCompile(`(?i)\b(?:education|study(?:ing)?|learn(?:ing)?|exams?|school|university|courses?|degree)\b`), "education"},
	{regexp.MustCompile(`(?i)\b(?:travel(?:ling)?|trip|abroad|relocat(?:e|ion)|journey|moving)\b`), "travel"},
	{regexp.MustCompile(`(?i)\b(?:spiritual(?:ity)?|destiny|fate|purpose|fortune|future|meaning)\b`), "spiritual"},
}

// relatedDomains grants partial credit when the answer lands in an adjacent
// topic instead of the asked one.
var relatedDomains = map[string][]string{
	"career":    {"finance", "education"},
	"finance":   {"career"},
	"love":      {"family"},
	"family":    {"love"},
	"health":    {"spiritual"},
	"education": {"career"},
	"travel":    {"career"},
	"spiritual": {"health"},
}

// classifyDomain returns the first matching domain for the text.
func classifyDomain(text string) (string, bool) {
	for _, rule := range domainRules {
		if rule.regex.MatchString(text) {
			return rule.domain, true
		}
	}
	return "", false
}

// detectDomains returns every domain matched anywhere in the text.
func detectDomains(text string) map[string]bool {
	detected := make(map[string]bool)
	for _, rule := range domainRules {
		if rule.regex.MatchString(text) {
			detected[rule.domain] = true
		}
	}
	return detected
}

// DomainScorer classifies the request topic and checks whether the retrieved
// knowledge and generated output actually cover it.
type DomainScorer struct{}

// NewDomainScorer creates the domain classification scorer.
func NewDomainScorer() *DomainScorer {
	return &DomainScorer{}
}

// Name returns the sub-score key.
func (s *DomainScorer) Name() string { return ScoreDomainMatch }

// Score returns 1.0 when the request's domain is detected in the knowledge
// or output, 0.5 for a related domain, 0 for a miss. An unclassifiable
// request scores neutral.
func (s *DomainScorer) Score(_ context.Context, in ScoreInput) (float64, error) {
	domain, ok := classifyDomain(in.Request)
	if !ok {
		return neutralScore, nil
	}

	detected := detectDomains(in.Knowledge + " " + in.Output)
	if detected[domain] {
		return 1.0, nil
	}
	for _, related := range relatedDomains[domain] {
		if detected[related] {
			return 0.5, nil
		}
	}
	return 0.0, nil
}

var _ Scorer = (*DomainScorer)(nil)
