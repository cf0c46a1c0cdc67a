package rlm

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/wavehq/orchestrator/internal/errors"
	"github.com/wavehq/orchestrator/pkg/metrics"
)

// Complexity selects the model tier a spawned Subagent runs under
// (SPEC_FULL.md §4.11).
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// ModelTier is the LLM tier a Complexity maps onto.
type ModelTier string

const (
	ModelHaiku  ModelTier = "haiku"
	ModelSonnet ModelTier = "sonnet"
	ModelOpus   ModelTier = "opus"
)

// TierFor maps a task's declared complexity to its model tier.
func TierFor(c Complexity) ModelTier {
	switch c {
	case ComplexitySimple:
		return ModelHaiku
	case ComplexityComplex:
		return ModelOpus
	default:
		return ModelSonnet
	}
}

// DefaultMaxDepth bounds subagent delegation chains (SPEC_FULL.md §4.11).
const DefaultMaxDepth = 3

// Subagent is a child agent delegated a scoped task by a parent.
type Subagent struct {
	ID            string
	ParentID      string
	Depth         int
	Task          string
	Complexity    Complexity
	ModelTier     ModelTier
	ContextFiles  map[string]string
}

// SubagentResult is what a spawned Subagent reports back to its parent.
type SubagentResult struct {
	SubagentID    string
	Success       bool
	Output        string
	TokensUsed    int
	FilesModified []string
	Error         string
	Duration      time.Duration
}

// TaskFunc executes one subagent's task against its isolated context copy.
type TaskFunc func(ctx context.Context, sub *Subagent) (SubagentResult, error)

// Spawner creates depth-bounded subagents and runs them through a
// supplied TaskFunc, converting panics and errors into failed results
// rather than propagating them to the parent.
type Spawner struct {
	maxDepth int
	idFn     func() string

	mu    sync.Mutex
	count int
}

func NewSpawner(maxDepth int, idFn func() string) *Spawner {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Spawner{maxDepth: maxDepth, idFn: idFn}
}

// Spawn creates a Subagent at parentDepth+1 and runs taskFn against it.
// contextFiles is copied, never shared with the parent's own cache, so
// the child cannot mutate state the parent still depends on. Returns an
// AppError if parentDepth+1 exceeds the spawner's max depth.
func (s *Spawner) Spawn(ctx context.Context, parentID string, parentDepth int, task string, contextFiles map[string]string, complexity Complexity, taskFn TaskFunc) (result SubagentResult, err error) {
	depth := parentDepth + 1
	if depth > s.maxDepth {
		return SubagentResult{}, apperrors.NewValidationError(
			fmt.Sprintf("subagent depth %d exceeds max depth %d", depth, s.maxDepth))
	}

	sub := &Subagent{
		ID:           s.nextID(),
		ParentID:     parentID,
		Depth:        depth,
		Task:         task,
		Complexity:   complexity,
		ModelTier:    TierFor(complexity),
		ContextFiles: copyFiles(contextFiles),
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = SubagentResult{SubagentID: sub.ID, Success: false,
				Error: fmt.Sprintf("subagent panicked: %v", r), Duration: time.Since(start)}
			err = nil
		}
	}()

	r, taskErr := taskFn(ctx, sub)
	r.SubagentID = sub.ID
	r.Duration = time.Since(start)
	if taskErr != nil {
		r.Success = false
		r.Error = taskErr.Error()
	}
	metrics.RecordGateTransition("subagent:"+string(sub.ModelTier), resultLabel(r.Success))
	return r, nil
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func (s *Spawner) nextID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	if s.idFn != nil {
		return s.idFn()
	}
	return fmt.Sprintf("subagent-%d", s.count)
}

func copyFiles(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// ResultCollector aggregates multiple SubagentResults into a summary for
// the parent agent.
type ResultCollector struct {
	mu      sync.Mutex
	results []SubagentResult
}

func NewResultCollector() *ResultCollector {
	return &ResultCollector{}
}

func (c *ResultCollector) Add(r SubagentResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

// Summary is the ResultCollector's aggregate view across every collected
// result.
type Summary struct {
	Total         int
	Succeeded     int
	Failed        int
	TotalTokens   int
	FilesModified []string
	Errors        []string
}

func (c *ResultCollector) Summarize() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{Total: len(c.results)}
	for _, r := range c.results {
		if r.Success {
			s.Succeeded++
		} else {
			s.Failed++
			if r.Error != "" {
				s.Errors = append(s.Errors, r.Error)
			}
		}
		s.TotalTokens += r.TokensUsed
		s.FilesModified = append(s.FilesModified, r.FilesModified...)
	}
	return s
}
