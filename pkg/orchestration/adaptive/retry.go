// Package adaptive implements the three cooperating control-flow patterns
// layered over the story execution engine (SPEC_FULL.md §4.9): the
// cyclic dev-fix retry loop, multi-reviewer consensus, and the
// human-in-the-loop interrupt/resume handshake.
package adaptive

import (
	"math"
	"time"
)

// RetryDecision is where the retry router sends control next.
type RetryDecision string

const (
	RouteCTOApproval     RetryDecision = "cto_approval"
	RouteHumanEscalation RetryDecision = "human_escalation"
	RouteDevFix          RetryDecision = "dev_fix"
)

// RetryBackoff configures the exponential backoff between dev-fix
// attempts.
type RetryBackoff struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
}

// DefaultBackoff matches the spec's defaults: base=1s, multiplier=2,
// cap=300s.
var DefaultBackoff = RetryBackoff{Base: time.Second, Multiplier: 2, Max: 300 * time.Second}

// DefaultMaxRetries is the standard retry ceiling; some domains configure
// 7 instead.
const DefaultMaxRetries = 3

// SafetyEscalationThreshold is the safety score below which a failure
// escalates to a human regardless of retry count.
const SafetyEscalationThreshold = 0.3

// Delay computes min(base * multiplier^count, max).
func (b RetryBackoff) Delay(count int) time.Duration {
	d := float64(b.Base) * math.Pow(b.Multiplier, float64(count))
	if d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}

// QAOutcome is the input to the retry router: the result of one QA pass
// plus the story's accumulated retry state.
type QAOutcome struct {
	QAPassed    bool
	SafetyScore float64
	RetryCount  int
	MaxRetries  int
}

// RouteRetry implements the retry router's decision tree from
// SPEC_FULL.md §4.9.
func RouteRetry(o QAOutcome) RetryDecision {
	if o.QAPassed {
		return RouteCTOApproval
	}
	if o.SafetyScore < SafetyEscalationThreshold {
		return RouteHumanEscalation
	}
	maxRetries := o.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if o.RetryCount >= maxRetries {
		return RouteHumanEscalation
	}
	return RouteDevFix
}
