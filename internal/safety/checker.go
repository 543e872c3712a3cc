// Package safety screens prompts for content that commonly trips the
// responsible-AI filters of the video back-ends, so users get an
// actionable rejection instead of an opaque provider failure.
package safety

import (
	"fmt"
	"regexp"
	"strings"
)

// Term lists. Substring matching for multi-word names, word-boundary
// matching for short generic terms that would otherwise over-match.
var (
	celebrityIndicators = []string{
		"elon musk", "taylor swift", "beyonce", "trump", "obama", "biden",
		"kardashian", "celebrity", "famous person", "actor", "actress",
	}
	brandIndicators = []string{
		"nike", "adidas", "apple", "google", "microsoft", "coca-cola",
		"pepsi", "disney", "marvel", "star wars", "pokemon", "ferrari",
		"lamborghini", "tesla", "iphone", "android", "playstation", "xbox",
	}
	copyrightedCharacters = []string{
		"mickey mouse", "superman", "batman", "spider-man", "iron man",
		"harry potter", "darth vader", "pikachu", "mario", "sonic",
	}
	violenceIndicators = []string{
		"gun", "weapon", "sword", "knife", "blood", "violence", "fight",
		"attack", "war", "battle", "explosion", "shoot", "kill", "death",
		"murder", "assault", "combat",
	}
	inappropriateContent = []string{
		"naked", "nude", "sexy", "sexual", "intimate", "erotic",
		"lingerie", "bikini", "underwear", "revealing",
	}
	dangerousActivities = []string{
		"suicide", "self-harm", "overdose", "poison", "drugs", "cocaine",
		"heroin", "methamphetamine", "bomb", "terrorist",
	}
)

// RiskLevel grades how likely a prompt is to be rejected downstream.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Report is the outcome of screening one prompt. Blockers should stop
// submission; warnings are informational.
type Report struct {
	Safe        bool      `json:"safe"`
	RiskLevel   RiskLevel `json:"risk_level"`
	Warnings    []string  `json:"warnings"`
	Blockers    []string  `json:"blockers"`
	Suggestions []string  `json:"suggestions"`
}

// Checker screens prompt text against the term lists. The zero value is
// not usable; construct with NewChecker.
type Checker struct {
	wordPatterns map[string]*regexp.Regexp
}

// NewChecker compiles the word-boundary patterns once.
func NewChecker() *Checker {
	patterns := make(map[string]*regexp.Regexp)
	for _, list := range [][]string{violenceIndicators, inappropriateContent, dangerousActivities} {
		for _, term := range list {
			patterns[term] = regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `\b`)
		}
	}
	return &Checker{wordPatterns: patterns}
}

// CheckPrompt screens the prompt and returns the full report.
func (c *Checker) CheckPrompt(prompt string) Report {
	r := Report{}
	lower := strings.ToLower(prompt)

	for _, name := range celebrityIndicators {
		if strings.Contains(lower, name) {
			r.Blockers = append(r.Blockers, fmt.Sprintf("contains reference to public figure: %q", name))
			r.Suggestions = append(r.Suggestions, fmt.Sprintf("replace %q with a generic description like 'a person'", name))
		}
	}
	for _, brand := range brandIndicators {
		if strings.Contains(lower, brand) {
			r.Warnings = append(r.Warnings, fmt.Sprintf("contains brand name: %q", brand))
			r.Suggestions = append(r.Suggestions, fmt.Sprintf("replace %q with a generic term", brand))
		}
	}
	for _, character := range copyrightedCharacters {
		if strings.Contains(lower, character) {
			r.Blockers = append(r.Blockers, fmt.Sprintf("contains copyrighted character: %q", character))
			r.Suggestions = append(r.Suggestions, fmt.Sprintf("replace %q with a generic description", character))
		}
	}
	for _, term := range violenceIndicators {
		if c.wordPatterns[term].MatchString(lower) {
			r.Blockers = append(r.Blockers, fmt.Sprintf("contains violent content: %q", term))
			r.Suggestions = append(r.Suggestions, fmt.Sprintf("remove or replace the reference to %q", term))
		}
	}
	for _, term := range inappropriateContent {
		if c.wordPatterns[term].MatchString(lower) {
			r.Blockers = append(r.Blockers, fmt.Sprintf("contains inappropriate content: %q", term))
			r.Suggestions = append(r.Suggestions, fmt.Sprintf("remove or replace the reference to %q", term))
		}
	}
	for _, term := range dangerousActivities {
		if c.wordPatterns[term].MatchString(lower) {
			r.Blockers = append(r.Blockers, fmt.Sprintf("contains dangerous content: %q", term))
			r.Suggestions = append(r.Suggestions, fmt.Sprintf("remove or replace the reference to %q", term))
		}
	}

	r.Safe = len(r.Blockers) == 0
	switch {
	case len(r.Blockers) > 0:
		r.RiskLevel = RiskHigh
	case len(r.Warnings) > 0:
		r.RiskLevel = RiskMedium
	default:
		r.RiskLevel = RiskLow
	}
	return r
}
