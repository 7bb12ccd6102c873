package tokens

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// DefaultCharsPerToken is used for models without a configured ratio.
const DefaultCharsPerToken = 4.0

// Completion estimates used when the caller gives no output cap.
const (
	minCompletionTokens = 100
	maxCompletionTokens = 1000
)

// Estimator estimates the tokens a call will consume, for reserving
// against the daily budget before the call is made.
type Estimator interface {
	// Estimate returns prompt tokens plus expected completion tokens.
	// maxOutput caps the completion; zero derives it from the prompt.
	Estimate(prompt, model string, maxOutput int64) int64
}

// SimpleEstimator estimates tokens from character counts with a
// characters-per-token ratio per model family.
type SimpleEstimator struct {
	mu     sync.RWMutex
	ratios map[string]float64
}

// NewSimpleEstimator creates an estimator. ratios maps a model name or
// prefix ("gpt-4", "claude") to characters per token; the "default" entry
// replaces DefaultCharsPerToken. Non-positive ratios are ignored.
func NewSimpleEstimator(ratios map[string]float64) *SimpleEstimator {
	e := &SimpleEstimator{ratios: make(map[string]float64, len(ratios))}
	for model, ratio := range ratios {
		if ratio > 0 {
			e.ratios[model] = ratio
		}
	}
	return e
}

// EstimateText estimates the tokens in text. Non-empty text is at least
// one token.
func (e *SimpleEstimator) EstimateText(text, model string) int64 {
	chars := utf8.RuneCountInString(text)
	if chars == 0 {
		return 0
	}

	tokens := float64(chars) / e.charsPerToken(model)
	if tokens < 1 {
		return 1
	}
	return int64(tokens + 0.5)
}

// Estimate implements Estimator. The prompt carries a small formatting
// overhead. Without maxOutput the completion is a third of the prompt,
// clamped to [100, 1000].
func (e *SimpleEstimator) Estimate(prompt, model string, maxOutput int64) int64 {
	promptTokens := e.EstimateText(prompt, model) + 5

	completion := maxOutput
	if completion <= 0 {
		completion = min(max(promptTokens/3, minCompletionTokens), maxCompletionTokens)
	}
	return promptTokens + completion
}

// charsPerToken resolves the ratio for model: exact match, then the
// longest matching prefix, then "default".
func (e *SimpleEstimator) charsPerToken(model string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if ratio, ok := e.ratios[model]; ok {
		return ratio
	}

	best, bestLen := 0.0, 0
	for prefix, ratio := range e.ratios {
		if len(prefix) > bestLen && strings.HasPrefix(model, prefix) {
			best, bestLen = ratio, len(prefix)
		}
	}
	if bestLen > 0 {
		return best
	}

	if ratio, ok := e.ratios["default"]; ok {
		return ratio
	}
	return DefaultCharsPerToken
}
