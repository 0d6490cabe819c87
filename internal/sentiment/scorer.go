// Package sentiment scores message text with a keyword-frequency heuristic.
package sentiment

import (
	"regexp"
	"strings"
	"unicode"
)

// Label constants for the coarse classification.
const (
	LabelPositive = "positive"
	LabelNeutral  = "neutral"
	LabelNegative = "negative"
	LabelAngry    = "angry"
)

// shoutPenalty is subtracted once per shouting signal (all-caps words,
// repeated ! or ?) before clamping.
const shoutPenalty = 0.2

var positiveWords = map[string]struct{}{
	"thank": {}, "thanks": {}, "great": {}, "love": {}, "perfect": {},
	"amazing": {}, "awesome": {}, "excellent": {}, "good": {}, "nice": {},
	"fantastic": {}, "wonderful": {}, "brilliant": {}, "superb": {},
	"outstanding": {}, "pleased": {}, "satisfied": {}, "happy": {},
	"delighted": {}, "helpful": {},
}

var negativeWords = map[string]struct{}{
	"angry": {}, "frustrated": {}, "terrible": {}, "awful": {}, "hate": {},
	"disappointed": {}, "annoyed": {}, "upset": {}, "mad": {}, "furious": {},
	"horrible": {}, "disgusting": {}, "worst": {}, "pathetic": {},
	"ridiculous": {}, "stupid": {}, "useless": {}, "broken": {},
	"problem": {}, "issue": {}, "bug": {}, "error": {}, "crash": {},
	"fail": {}, "failed": {}, "failing": {},
}

var (
	repeatedBangPattern = regexp.MustCompile(`[!]{2,}`)
	repeatedQueryPattern = regexp.MustCompile(`[?]{2,}`)
	capsWordPattern      = regexp.MustCompile(`\b[A-Z]{3,}\b`)
)

// Result is the outcome of scoring one message.
type Result struct {
	Score      float64  `json:"score"`
	Label      string   `json:"label"`
	Indicators []string `json:"indicators,omitempty"`
}

// Score evaluates text and returns a value in [-1, 1]. Empty input scores
// 0.0. The function is pure: no state, no failure mode.
func Score(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Score: 0, Label: LabelNeutral}
	}

	var (
		positive   int
		negative   int
		indicators []string
	)
	seen := map[string]struct{}{}
	for _, raw := range strings.Fields(text) {
		word := cleanWord(raw)
		if word == "" {
			continue
		}
		if _, ok := positiveWords[word]; ok {
			positive++
			if _, dup := seen[word]; !dup {
				seen[word] = struct{}{}
				indicators = append(indicators, word)
			}
			continue
		}
		if _, ok := negativeWords[word]; ok {
			negative++
			if _, dup := seen[word]; !dup {
				seen[word] = struct{}{}
				indicators = append(indicators, word)
			}
		}
	}

	score := 0.0
	if positive+negative > 0 {
		score = float64(positive-negative) / float64(positive+negative)
	}

	// Shouting and urgency push toward the negative end after the base
	// ratio, then the result is clamped.
	shouts := len(capsWordPattern.FindAllString(text, -1)) +
		len(repeatedBangPattern.FindAllString(text, -1)) +
		len(repeatedQueryPattern.FindAllString(text, -1))
	if shouts > 0 {
		score -= shoutPenalty * float64(shouts)
		indicators = append(indicators, "shouting")
	}
	score = clamp(score)

	return Result{
		Score:      score,
		Label:      labelFor(score),
		Indicators: indicators,
	}
}

func labelFor(score float64) string {
	switch {
	case score > 0.1:
		return LabelPositive
	case score >= -0.1:
		return LabelNeutral
	case score >= -0.6:
		return LabelNegative
	default:
		return LabelAngry
	}
}

func cleanWord(raw string) string {
	return strings.TrimFunc(strings.ToLower(raw), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
