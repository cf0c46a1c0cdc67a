// Package budget implements the token/cost budget tracker (SPEC_FULL.md
// §4.10): token and dollar usage are checked against configured limits on
// every call, producing an alert level that the pipeline and the Slack
// notifier (§4.12) act on.
package budget

import (
	"github.com/wavehq/orchestrator/pkg/domain"
)

// alert thresholds are usage fractions of the configured limit.
const (
	warningThreshold  = 0.75
	criticalThreshold = 0.90
)

// ModelRate holds per-million-token input/output pricing in USD.
type ModelRate struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// DefaultRates mirrors the per-model pricing referenced in SPEC_FULL.md
// §4.10 ("Sonnet 3/15 per M tokens in/out").
var DefaultRates = map[string]ModelRate{
	"claude-sonnet": {InputPerMillion: 3, OutputPerMillion: 15},
	"claude-haiku":  {InputPerMillion: 0.8, OutputPerMillion: 4},
	"claude-opus":   {InputPerMillion: 15, OutputPerMillion: 75},
}

// CheckResult is the outcome of one budget check.
type CheckResult struct {
	Allowed     bool
	Level       domain.AlertLevel
	UsageFrac   float64
	TokensUsed  int64
	TokenLimit  int64
}

// Tracker evaluates usage against a limit; HardLimit, when true, makes
// usage over 100% deny the call outright (an emergency stop) rather than
// merely flag EXCEEDED.
type Tracker struct {
	HardLimit bool
}

func NewTracker(hardLimit bool) *Tracker {
	return &Tracker{HardLimit: hardLimit}
}

// CheckBudget evaluates tokensUsed against tokenLimit.
func (t *Tracker) CheckBudget(tokensUsed, tokenLimit int64) CheckResult {
	if tokenLimit <= 0 {
		tokenLimit = domain.DefaultTokenLimit
	}
	frac := float64(tokensUsed) / float64(tokenLimit)

	result := CheckResult{
		Allowed:    true,
		UsageFrac:  frac,
		TokensUsed: tokensUsed,
		TokenLimit: tokenLimit,
	}

	switch {
	case frac > 1.0:
		result.Level = domain.AlertExceeded
		if t.HardLimit {
			result.Allowed = false
		}
	case frac >= criticalThreshold:
		result.Level = domain.AlertCritical
	case frac >= warningThreshold:
		result.Level = domain.AlertWarning
	default:
		result.Level = domain.AlertNormal
	}
	return result
}

// EstimateCost computes a USD cost estimate for a model's input/output
// token counts using DefaultRates (or a custom rate table).
func EstimateCost(model string, inputTokens, outputTokens int64, rates map[string]ModelRate) float64 {
	if rates == nil {
		rates = DefaultRates
	}
	rate, ok := rates[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1_000_000*rate.InputPerMillion + float64(outputTokens)/1_000_000*rate.OutputPerMillion
}

// EstimateTokensFromText approximates a token count from raw text length
// using the chars/4 heuristic shared with the RLM context manager.
func EstimateTokensFromText(text string) int64 {
	return int64(domain.EstimateTokens(text))
}
