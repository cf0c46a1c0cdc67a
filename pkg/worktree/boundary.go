package worktree

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/wavehq/orchestrator/pkg/domain"
)

// AccessResult is the outcome of one CheckAccess call (SPEC_FULL.md §4.6).
type AccessResult struct {
	Allowed     bool
	AgentDomain string
	FilePath    string
	OwnerDomain string
	Reason      string
	Override    bool
}

// Violation records a denied (and not overridden) access attempt for the
// audit trail.
type Violation struct {
	AgentDomain string
	FilePath    string
	OwnerDomain string
	Occurred    time.Time
}

// Override is a time-bounded exception letting agentDomain touch files
// owned by targetDomain.
type Override struct {
	AgentDomain  string
	TargetDomain string
	GrantedAt    time.Time
	ExpiresAt    time.Time
}

func (o Override) active(now time.Time) bool {
	return now.Before(o.ExpiresAt)
}

// OverrideUse records one instance of an override being exercised, for the
// audit trail.
type OverrideUse struct {
	AgentDomain  string
	TargetDomain string
	FilePath     string
	UsedAt       time.Time
}

// BoundaryEnforcer evaluates file-path access requests against the
// project's domain rule set, following the seven-step check in
// SPEC_FULL.md §4.6: unknown agent domain, then ownership resolution
// (shared checked first), then shared/self/override/deny in that order.
type BoundaryEnforcer struct {
	rules       []domain.DomainRule
	ruleByID    map[string]domain.DomainRule
	nowFn       func() time.Time

	mu          sync.Mutex
	overrides   []Override
	violations  []Violation
	overrideLog []OverrideUse
}

func NewBoundaryEnforcer(rules []domain.DomainRule) *BoundaryEnforcer {
	byID := make(map[string]domain.DomainRule, len(rules))
	for _, r := range rules {
		byID[r.ID] = r
	}
	return &BoundaryEnforcer{rules: rules, ruleByID: byID, nowFn: time.Now}
}

// GrantOverride records a time-bounded exception for agentDomain to touch
// files owned by targetDomain.
func (b *BoundaryEnforcer) GrantOverride(agentDomain, targetDomain string, duration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.nowFn()
	b.overrides = append(b.overrides, Override{
		AgentDomain: agentDomain, TargetDomain: targetDomain,
		GrantedAt: now, ExpiresAt: now.Add(duration),
	})
}

// RevokeOverride removes any active override for (agentDomain,
// targetDomain).
func (b *BoundaryEnforcer) RevokeOverride(agentDomain, targetDomain string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.overrides[:0]
	for _, o := range b.overrides {
		if o.AgentDomain == agentDomain && o.TargetDomain == targetDomain {
			continue
		}
		kept = append(kept, o)
	}
	b.overrides = kept
}

// CheckAccess evaluates whether agentDomain may write to filePath.
func (b *BoundaryEnforcer) CheckAccess(agentDomain, filePath string) AccessResult {
	filePath = filepath.ToSlash(filePath)

	if _, ok := b.ruleByID[agentDomain]; !ok {
		return AccessResult{Allowed: false, AgentDomain: agentDomain, FilePath: filePath, Reason: "Unknown agent domain"}
	}

	owner, ok := b.resolveOwner(filePath)
	if !ok {
		return AccessResult{Allowed: false, AgentDomain: agentDomain, FilePath: filePath, Reason: "File is not in any defined domain"}
	}

	if owner == domain.SharedDomainID {
		return AccessResult{Allowed: true, AgentDomain: agentDomain, FilePath: filePath, OwnerDomain: owner, Reason: "shared path"}
	}

	if owner == agentDomain {
		return AccessResult{Allowed: true, AgentDomain: agentDomain, FilePath: filePath, OwnerDomain: owner, Reason: "owned by domain"}
	}

	if b.useOverrideIfActive(agentDomain, owner, filePath) {
		return AccessResult{Allowed: true, AgentDomain: agentDomain, FilePath: filePath, OwnerDomain: owner, Override: true, Reason: "override granted"}
	}

	reason := fmt.Sprintf("Agent '%s' cannot modify '%s' — owned by domain '%s'", agentDomain, filePath, owner)
	b.mu.Lock()
	b.violations = append(b.violations, Violation{AgentDomain: agentDomain, FilePath: filePath, OwnerDomain: owner, Occurred: b.nowFn()})
	b.mu.Unlock()

	return AccessResult{Allowed: false, AgentDomain: agentDomain, FilePath: filePath, OwnerDomain: owner, Reason: reason}
}

// resolveOwner computes filePath's owning domain: shared is checked
// before any other domain's patterns, then domains in configured order.
func (b *BoundaryEnforcer) resolveOwner(filePath string) (string, bool) {
	if shared, ok := b.ruleByID[domain.SharedDomainID]; ok && matchesAny(shared.FilePatterns, filePath) {
		return domain.SharedDomainID, true
	}
	for _, r := range b.rules {
		if r.ID == domain.SharedDomainID {
			continue
		}
		if matchesAny(r.FilePatterns, filePath) {
			return r.ID, true
		}
	}
	return "", false
}

func (b *BoundaryEnforcer) useOverrideIfActive(agentDomain, targetDomain, filePath string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.nowFn()
	for _, o := range b.overrides {
		if o.AgentDomain == agentDomain && o.TargetDomain == targetDomain && o.active(now) {
			b.overrideLog = append(b.overrideLog, OverrideUse{AgentDomain: agentDomain, TargetDomain: targetDomain, FilePath: filePath, UsedAt: now})
			return true
		}
	}
	return false
}

// Violations returns a snapshot of recorded violations.
func (b *BoundaryEnforcer) Violations() []Violation {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Violation, len(b.violations))
	copy(out, b.violations)
	return out
}

// OverrideLog returns a snapshot of recorded override usages.
func (b *BoundaryEnforcer) OverrideLog() []OverrideUse {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]OverrideUse, len(b.overrideLog))
	copy(out, b.overrideLog)
	return out
}

var globCache sync.Map // pattern string -> *regexp.Regexp

// MatchGlob reports whether path matches pattern, a glob supporting
// single-level `*`, `?`, and `**` spanning any number of path segments.
// Exported so other packages (e.g. the RLM domain scoper) can apply the
// same domain-pattern matching rules used for boundary enforcement.
func MatchGlob(pattern, path string) bool {
	return compileGlob(pattern).MatchString(path)
}

// matchesAny reports whether path matches any of patterns, each a glob
// supporting single-level `*`, `?`, and `**` spanning any number of path
// segments (including zero), e.g. `app/api/**/*.ts` matches both
// `app/api/users.ts` and `app/api/v1/users/list.ts`.
func matchesAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if re := compileGlob(p); re.MatchString(path) {
			return true
		}
	}
	return false
}

func compileGlob(pattern string) *regexp.Regexp {
	if cached, ok := globCache.Load(pattern); ok {
		return cached.(*regexp.Regexp)
	}
	re := regexp.MustCompile("^" + globToRegexp(pattern) + "$")
	globCache.Store(pattern, re)
	return re
}

func globToRegexp(pattern string) string {
	var sb strings.Builder
	segments := strings.Split(pattern, "/")
	for i, seg := range segments {
		if i > 0 {
			sb.WriteString("/")
		}
		if seg == "**" {
			// A **-segment matches zero or more whole path segments. We
			// special-case the boundary slash so "a/**/b" also matches "a/b".
			sb.WriteString(`.*`)
			continue
		}
		sb.WriteString(segmentToRegexp(seg))
	}
	result := sb.String()
	result = strings.ReplaceAll(result, "/.*/", "/(?:.*/)?")
	result = strings.TrimSuffix(result, "/.*")
	if strings.HasSuffix(pattern, "/**") {
		result += "(?:/.*)?"
	}
	return result
}

func segmentToRegexp(seg string) string {
	var sb strings.Builder
	for _, r := range seg {
		switch r {
		case '*':
			sb.WriteString(`[^/]*`)
		case '?':
			sb.WriteString(`[^/]`)
		case '.', '+', '(', ')', '|', '^', '$', '[', ']', '{', '}', '\\':
			sb.WriteString(regexp.QuoteMeta(string(r)))
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
