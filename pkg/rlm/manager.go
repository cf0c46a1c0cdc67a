package rlm

import (
	"context"
	"fmt"

	"github.com/wavehq/orchestrator/pkg/worktree"
)

// FileSource is the repo access an agent's context Manager reads through.
// Backed by the real worktree filesystem in production and an in-memory
// fixture in tests.
type FileSource interface {
	ListFiles(ctx context.Context) ([]string, error)
	ReadFile(ctx context.Context, path string) (string, error)
}

// StoryContext is the subset of a StoryExecution's metadata the context
// manager needs to load story-scoped files.
type StoryContext struct {
	StoryID        string
	DomainPatterns []string
	ReadFiles      []string
}

// Manager is one agent's Relevant Local Memory: a token-bounded cache
// loaded from its domain's native files (pinned) and the current story's
// declared read files (unpinned), per SPEC_FULL.md §4.11.
type Manager struct {
	source FileSource
	cache  *Cache
}

func NewManager(source FileSource, maxTokens int) *Manager {
	return &Manager{source: source, cache: NewCache(maxTokens)}
}

// LoadDomainContext walks the repo and pins every file matching any of
// domainPatterns. Pinned entries are never evicted.
func (m *Manager) LoadDomainContext(ctx context.Context, domainPatterns []string) error {
	files, err := m.source.ListFiles(ctx)
	if err != nil {
		return fmt.Errorf("listing repo files: %w", err)
	}
	for _, path := range files {
		if !matchesAnyPattern(domainPatterns, path) {
			continue
		}
		content, err := m.source.ReadFile(ctx, path)
		if err != nil {
			return fmt.Errorf("reading domain file %s: %w", path, err)
		}
		m.cache.Put(path, content, true)
	}
	return nil
}

// LoadStoryContext loads every file the story explicitly declared as a
// read dependency, unpinned, so a later, larger story's files can evict
// them once they age out.
func (m *Manager) LoadStoryContext(ctx context.Context, story StoryContext) error {
	for _, path := range story.ReadFiles {
		content, err := m.source.ReadFile(ctx, path)
		if err != nil {
			return fmt.Errorf("reading story file %s: %w", path, err)
		}
		m.cache.Put(path, content, false)
	}
	return nil
}

// Retrieve returns the cached content for relPath, loading it on demand
// (unpinned) if it isn't already cached.
func (m *Manager) Retrieve(ctx context.Context, relPath string) (string, error) {
	if entry, ok := m.cache.Get(relPath); ok {
		return entry.Content, nil
	}
	content, err := m.source.ReadFile(ctx, relPath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", relPath, err)
	}
	m.cache.Put(relPath, content, false)
	return content, nil
}

// GetContext returns path -> content for every entry currently cached.
func (m *Manager) GetContext() map[string]string {
	return m.cache.Snapshot()
}

// TotalTokens reports the cache's current token usage.
func (m *Manager) TotalTokens() int {
	return m.cache.TotalTokens()
}

func matchesAnyPattern(patterns []string, path string) bool {
	for _, p := range patterns {
		if worktree.MatchGlob(p, path) {
			return true
		}
	}
	return false
}
