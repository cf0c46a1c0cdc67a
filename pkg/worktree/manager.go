// Package worktree manages per-run, per-domain git worktrees and the
// integration branch successful stories merge into (SPEC_FULL.md §4.6). It
// shells out to the git CLI — the spec's declared opaque collaborator
// (§1) — through a narrow GitRunner seam so tests never touch a real
// repository.
package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	apperrors "github.com/wavehq/orchestrator/internal/errors"
	"github.com/wavehq/orchestrator/pkg/domain"
)

// GitRunner executes one git subcommand against repoPath and returns
// combined output. Production code backs this with exec.CommandContext;
// tests back it with a scripted fake.
type GitRunner interface {
	Run(ctx context.Context, repoPath string, args ...string) (string, error)
}

// Manager creates, tracks, and tears down worktrees for a run, and drives
// the integration-branch merge step.
type Manager struct {
	git      GitRunner
	repoPath string
	baseDir  string
	baseRef  string

	mu        sync.Mutex
	worktrees map[string]*domain.Worktree // keyed by path
}

func NewManager(git GitRunner, repoPath, baseDir, baseRef string) *Manager {
	return &Manager{
		git:       git,
		repoPath:  repoPath,
		baseDir:   baseDir,
		baseRef:   baseRef,
		worktrees: map[string]*domain.Worktree{},
	}
}

// CreateDomainWorktree creates a branch run-{runID}/{domain} off the base
// branch at a dedicated path, and registers it for lifecycle tracking.
func (m *Manager) CreateDomainWorktree(ctx context.Context, domainName, runID string) (*domain.Worktree, error) {
	branch := fmt.Sprintf("run-%s/%s", runID, domainName)
	path := filepath.Join(m.baseDir, runID, domainName)

	if _, err := m.git.Run(ctx, m.repoPath, "worktree", "add", "-b", branch, path, m.baseRef); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, fmt.Sprintf("failed to create worktree for domain %s", domainName))
	}

	head, err := m.git.Run(ctx, path, "rev-parse", "HEAD")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "failed to resolve worktree HEAD")
	}

	wt := &domain.Worktree{
		Path: path, BranchName: branch, BaseCommit: trim(head), CurrentCommit: trim(head),
		Domain: domainName, RunID: runID, IsValid: true,
	}

	m.mu.Lock()
	m.worktrees[path] = wt
	m.mu.Unlock()
	return wt, nil
}

// ListRunWorktrees enumerates active worktrees for a run.
func (m *Manager) ListRunWorktrees(runID string) []*domain.Worktree {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Worktree
	for _, wt := range m.worktrees {
		if wt.RunID == runID && wt.IsValid {
			out = append(out, wt)
		}
	}
	return out
}

// CleanupRunWorktrees forcibly removes every worktree for a run. Errors
// removing an individual worktree are collected, not raised, so one bad
// worktree never blocks cleanup of the rest (the guaranteed-release
// invariant from SPEC_FULL.md §4.6).
func (m *Manager) CleanupRunWorktrees(ctx context.Context, runID string) []error {
	m.mu.Lock()
	targets := make([]*domain.Worktree, 0)
	for _, wt := range m.worktrees {
		if wt.RunID == runID {
			targets = append(targets, wt)
		}
	}
	m.mu.Unlock()

	var errs []error
	for _, wt := range targets {
		if _, err := m.git.Run(ctx, m.repoPath, "worktree", "remove", "--force", wt.Path); err != nil {
			errs = append(errs, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, fmt.Sprintf("failed to remove worktree %s", wt.Path)))
		}
		_ = os.RemoveAll(wt.Path)

		m.mu.Lock()
		delete(m.worktrees, wt.Path)
		m.mu.Unlock()
	}
	return errs
}

// CreateIntegrationBranch branches run-{runID}/integration off the base
// branch.
func (m *Manager) CreateIntegrationBranch(ctx context.Context, runID string) (string, error) {
	branch := fmt.Sprintf("run-%s/integration", runID)
	if _, err := m.git.Run(ctx, m.repoPath, "branch", branch, m.baseRef); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "failed to create integration branch")
	}
	return branch, nil
}

// MergeResult is the outcome of merging one domain branch.
type MergeResult struct {
	Success      bool
	HasConflicts bool
	Message      string
}

// MergeAllDomains merges each successful domain's branch into the
// integration branch sequentially. It does not auto-resolve conflicts: on
// the first conflicting merge it aborts that merge, records
// HasConflicts=true, and continues to the next domain.
func (m *Manager) MergeAllDomains(ctx context.Context, runID string, successfulDomains []string) MergeResult {
	integrationBranch := fmt.Sprintf("run-%s/integration", runID)
	if _, err := m.git.Run(ctx, m.repoPath, "checkout", integrationBranch); err != nil {
		return MergeResult{Success: false, Message: fmt.Sprintf("failed to checkout integration branch: %v", err)}
	}

	hasConflicts := false
	var messages []string
	for _, domainName := range successfulDomains {
		branch := fmt.Sprintf("run-%s/%s", runID, domainName)
		if _, err := m.git.Run(ctx, m.repoPath, "merge", "--no-ff", branch); err != nil {
			hasConflicts = true
			messages = append(messages, fmt.Sprintf("conflict merging %s: %v", domainName, err))
			_, _ = m.git.Run(ctx, m.repoPath, "merge", "--abort")
			continue
		}
		messages = append(messages, fmt.Sprintf("merged %s", domainName))
	}

	return MergeResult{
		Success:      !hasConflicts,
		HasConflicts: hasConflicts,
		Message:      fmt.Sprintf("%v", messages),
	}
}

func trim(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
