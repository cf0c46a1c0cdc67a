// Package validation provides input-sanitization and domain-shape
// validators shared by the HTTP API, task queue dispatcher, and RLM budget
// components.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	apperrors "github.com/wavehq/orchestrator/internal/errors"
)

var unsafePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bunion\b.*\bselect\b`),
	regexp.MustCompile(`(?i)\bdrop\b.*\btable\b`),
	regexp.MustCompile(`(?i)<script[^>]*>`),
	regexp.MustCompile(`--`),
	regexp.MustCompile(`;`),
	regexp.MustCompile(`'`),
}

// ValidateStringInput rejects field values that are too long, contain
// control characters, or match a known SQL/script injection signature.
func ValidateStringInput(field, value string, maxLen int) error {
	if len(value) > maxLen {
		return apperrors.NewValidationError(fmt.Sprintf("%s must be %d characters or less", field, maxLen))
	}

	for _, r := range value {
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
			return apperrors.NewValidationError(fmt.Sprintf("%s contains invalid control characters", field))
		}
	}

	for _, pattern := range unsafePatterns {
		if pattern.MatchString(value) {
			return apperrors.NewValidationError(fmt.Sprintf("%s contains potentially unsafe characters", field))
		}
	}

	return nil
}

// knownGates lists the canonical 10-gate sequence names; used to validate
// gate identifiers arriving over the HTTP API or task queue payloads.
var knownGates = map[string]bool{
	"design": true, "plan": true, "develop": true, "tests_red": true,
	"qa": true, "safety": true, "refactor": true, "review": true,
	"merge": true, "deploy": true,
}

// ValidateGateName rejects unknown gate identifiers and anything carrying an
// injection signature.
func ValidateGateName(gate string) error {
	if err := ValidateStringInput("gate", gate, 64); err != nil {
		return err
	}
	if !knownGates[gate] {
		return apperrors.NewValidationError(fmt.Sprintf("%q is not a recognized gate", gate))
	}
	return nil
}

var timeRangePattern = regexp.MustCompile(`^\d+[mhd]$`)

// ValidateTimeRange accepts durations of the form "<n>m", "<n>h", "<n>d".
func ValidateTimeRange(timeRange string) error {
	if err := ValidateStringInput("time_range", timeRange, 16); err != nil {
		return err
	}
	if !timeRangePattern.MatchString(timeRange) {
		return apperrors.NewValidationError("time range must be in format like '1h', '24h', '7d'")
	}
	return nil
}

// ValidateWindowMinutes bounds an RLM/budget lookback window to one week.
func ValidateWindowMinutes(minutes int) error {
	if minutes <= 0 {
		return apperrors.NewValidationError("window minutes must be greater than 0")
	}
	if minutes > 10080 {
		return apperrors.NewValidationError("window minutes must be 7 days (10080 minutes) or less")
	}
	return nil
}

// ValidateLimit bounds a pagination/result-set limit.
func ValidateLimit(limit int) error {
	if limit <= 0 {
		return apperrors.NewValidationError("limit must be greater than 0")
	}
	if limit > 10000 {
		return apperrors.NewValidationError("limit must be 10000 or less")
	}
	return nil
}

// ValidateWorktreePath rejects paths that could escape the assigned
// worktree (absolute paths, parent traversal).
func ValidateWorktreePath(path string) error {
	if path == "" {
		return apperrors.NewValidationError("path is required")
	}
	if strings.HasPrefix(path, "/") {
		return apperrors.NewValidationError("path must be relative to the worktree root")
	}
	for _, segment := range strings.Split(path, "/") {
		if segment == ".." {
			return apperrors.NewValidationError("path must not contain parent directory traversal")
		}
	}
	return nil
}

// SanitizeForLogging replaces control characters with '?' and truncates to
// 200 characters (with a trailing ellipsis) so untrusted strings are safe to
// write into structured logs.
func SanitizeForLogging(input string) string {
	var b strings.Builder
	for _, r := range input {
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
			b.WriteRune('?')
			continue
		}
		b.WriteRune(r)
	}

	result := b.String()
	if len(result) > 200 {
		result = result[:197] + "..."
	}
	return result
}
