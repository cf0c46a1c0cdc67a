// Package safety implements the unified constitutional safety checker
// (SPEC_FULL.md §4.10): it scores arbitrary text — code, shell commands,
// diffs — against pattern categories and server/client context rules, and
// renders ALLOW/WARN/BLOCK via a Rego policy evaluated through OPA.
package safety

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"

	apperrors "github.com/wavehq/orchestrator/internal/errors"
)

//go:embed policy.rego
var policySource string

// Recommendation is the checker's verdict.
type Recommendation string

const (
	Allow Recommendation = "ALLOW"
	Warn  Recommendation = "WARN"
	Block Recommendation = "BLOCK"
)

// DefaultBlockThreshold is the score floor below which content is unsafe.
const DefaultBlockThreshold = 0.85

// Violation is one matched pattern.
type Violation struct {
	Category string
	Pattern  string
}

// Result is the outcome of one Check call.
type Result struct {
	Score            float64
	Recommendation   Recommendation
	Violations       []Violation
	EscalateUncertain bool // Principle P006
}

// Checker scores text against the constitutional pattern set via a
// prepared Rego query.
type Checker struct {
	blockThreshold float64
	query          rego.PreparedEvalQuery
}

// New compiles the embedded policy once; blockThreshold <= 0 uses the
// spec default of 0.85.
func New(ctx context.Context, blockThreshold float64) (*Checker, error) {
	if blockThreshold <= 0 {
		blockThreshold = DefaultBlockThreshold
	}

	query, err := rego.New(
		rego.Query("data.wave.safety"),
		rego.Module("policy.rego", policySource),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to prepare safety policy")
	}

	return &Checker{blockThreshold: blockThreshold, query: query}, nil
}

// Check scores text. filePath and confidence drive the server/client
// context detection and the escalate-uncertainty principle respectively.
func (c *Checker) Check(ctx context.Context, text, filePath string, confidence float64) (*Result, error) {
	var violations []Violation
	critical, warnCount := 0, 0
	hasBlockMatch := false

	for _, cat := range allCategories {
		for _, pat := range cat.patterns {
			if !pat.MatchString(text) {
				continue
			}
			violations = append(violations, Violation{Category: cat.name, Pattern: pat.String()})
			if cat.isWarn {
				warnCount++
				continue
			}
			critical++
			hasBlockMatch = true
		}
	}

	if client := !isServerSide(filePath, text); client {
		if v, ok := checkClientEnvLeak(text); ok {
			violations = append(violations, v)
			critical++
			hasBlockMatch = true
		}
	}

	input := map[string]interface{}{
		"critical_count":  critical,
		"warn_count":      warnCount,
		"block_threshold": c.blockThreshold,
		"has_block_match": hasBlockMatch,
	}

	results, err := c.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "safety policy evaluation failed")
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, apperrors.New(apperrors.ErrorTypeInternal, "safety policy produced no result")
	}

	out, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return nil, apperrors.New(apperrors.ErrorTypeInternal, "unexpected safety policy output shape")
	}

	score, _ := out["score"].(float64)
	rec, _ := out["recommendation"].(string)

	return &Result{
		Score:             score,
		Recommendation:    Recommendation(rec),
		Violations:        violations,
		EscalateUncertain: shouldEscalateUncertainty(text, confidence),
	}, nil
}

// checkClientEnvLeak flags a non-allowlisted env-var reference found in
// client-side code (the FE-DANGEROUS env-var rule).
func checkClientEnvLeak(content string) (Violation, bool) {
	loc := anyEnvVarRef.FindString(content)
	if loc == "" {
		return Violation{}, false
	}
	for _, allowed := range clientAllowedEnvPrefixes {
		if allowed.MatchString(loc) {
			return Violation{}, false
		}
	}
	return Violation{Category: "FE_DANGEROUS", Pattern: fmt.Sprintf("disallowed client env var: %s", loc)}, true
}

// shouldEscalateUncertainty implements Principle P006.
func shouldEscalateUncertainty(text string, confidence float64) bool {
	if confidence < 0.6 {
		return true
	}
	lower := strings.ToLower(text)
	for _, kw := range ambiguousKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
