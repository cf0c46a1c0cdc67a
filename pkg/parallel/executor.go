// Package parallel implements the Parallel Story Executor (SPEC_FULL.md
// §4.5): greedy domain-conflict-avoiding batch planning, worktree-isolated
// fan-out of story agents, and sequential merge-back into an integration
// branch.
package parallel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wavehq/orchestrator/pkg/domain"
	"github.com/wavehq/orchestrator/pkg/metrics"
	"github.com/wavehq/orchestrator/pkg/worktree"
)

const defaultMaxParallel = 4

// StoryTask is one unit of work offered to the executor.
type StoryTask struct {
	StoryID string
	Domain  string
	Title   string
}

// StoryResult is what an agent function reports back for one story.
type StoryResult struct {
	StoryID       string
	Domain        string
	Success       bool
	Error         string
	TokensUsed    int
	FilesCreated  []string
	FilesModified []string
	BranchName    string
}

// AgentFunc executes one story inside its dedicated worktree. A panic or
// returned error is converted into a failed StoryResult by the executor —
// it never takes down the batch (SPEC_FULL.md §4.5 tolerance contract).
type AgentFunc func(ctx context.Context, task StoryTask, worktreePath string) (StoryResult, error)

// WorktreeManager is the subset of worktree.Manager the executor depends
// on.
type WorktreeManager interface {
	CreateDomainWorktree(ctx context.Context, domainName, runID string) (*domain.Worktree, error)
	CleanupRunWorktrees(ctx context.Context, runID string) []error
	CreateIntegrationBranch(ctx context.Context, runID string) (string, error)
	MergeAllDomains(ctx context.Context, runID string, successfulDomains []string) worktree.MergeResult
}

// Plan is the outcome of a single scheduling pass: which tasks run this
// round and which wait for the next one.
type Plan struct {
	ParallelBatch []StoryTask
	Waiting       []StoryTask
	RunID         string
}

// Executor runs StoryTasks through the Worktree Manager with
// domain-conflict avoidance, batch by batch, until the input set is
// exhausted.
type Executor struct {
	worktrees   WorktreeManager
	maxParallel int

	mu       sync.Mutex
	total    int
	succeeded int
	failed    int
	tokens    int64
	startedAt time.Time
	duration  time.Duration
}

func NewExecutor(wm WorktreeManager, maxParallel int) *Executor {
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}
	return &Executor{worktrees: wm, maxParallel: maxParallel}
}

// Plan walks stories in input order; a story joins the parallel batch iff
// its domain isn't already claimed by the batch and the batch has not yet
// reached maxParallel. This is a greedy, stable scheduling rule: the same
// input always produces the same plan.
func (e *Executor) Plan(stories []StoryTask, runID string) Plan {
	if runID == "" {
		runID = uuid.NewString()
	}
	plan := Plan{RunID: runID}
	claimed := map[string]bool{}

	for _, task := range stories {
		if !claimed[task.Domain] && len(plan.ParallelBatch) < e.maxParallel {
			plan.ParallelBatch = append(plan.ParallelBatch, task)
			claimed[task.Domain] = true
			continue
		}
		plan.Waiting = append(plan.Waiting, task)
	}
	return plan
}

// Execute drives stories to completion across as many batches as the
// domain conflicts require, then merges every successful story's branch
// into a fresh integration branch and tears down every worktree for the
// run — on every exit path, including early failures.
func (e *Executor) Execute(ctx context.Context, stories []StoryTask, agentFn AgentFunc) ([]StoryResult, error) {
	runID := uuid.NewString()
	e.mu.Lock()
	e.total = len(stories)
	e.startedAt = time.Now()
	e.mu.Unlock()

	defer func() {
		e.worktrees.CleanupRunWorktrees(ctx, runID)
		e.mu.Lock()
		e.duration = time.Since(e.startedAt)
		e.mu.Unlock()
	}()

	var allResults []StoryResult
	remaining := stories

	for len(remaining) > 0 {
		plan := e.Plan(remaining, runID)
		batchResults := e.runBatch(ctx, plan.ParallelBatch, runID, agentFn)
		allResults = append(allResults, batchResults...)
		remaining = plan.Waiting
	}

	e.recordTotals(allResults)

	var successfulDomains []string
	for _, r := range allResults {
		if r.Success {
			successfulDomains = append(successfulDomains, r.Domain)
		}
	}
	if len(successfulDomains) == 0 {
		return allResults, nil
	}

	if _, err := e.worktrees.CreateIntegrationBranch(ctx, runID); err != nil {
		return allResults, nil
	}
	e.worktrees.MergeAllDomains(ctx, runID, successfulDomains)

	return allResults, nil
}

// runBatch creates one worktree per task in the batch and fans agentFn out
// across a worker pool bounded by maxParallel, collecting every result
// before returning.
func (e *Executor) runBatch(ctx context.Context, batch []StoryTask, runID string, agentFn AgentFunc) []StoryResult {
	results := make([]StoryResult, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxParallel)

	for i, task := range batch {
		i, task := i, task
		g.Go(func() error {
			results[i] = e.runOne(gctx, task, runID, agentFn)
			return nil
		})
	}
	_ = g.Wait()

	metrics.ConcurrentStoriesRunning.Set(0)
	return results
}

func (e *Executor) runOne(ctx context.Context, task StoryTask, runID string, agentFn AgentFunc) (result StoryResult) {
	metrics.IncrementConcurrentStories()
	defer metrics.DecrementConcurrentStories()

	wt, err := e.worktrees.CreateDomainWorktree(ctx, task.Domain, runID)
	if err != nil {
		return StoryResult{StoryID: task.StoryID, Domain: task.Domain, Success: false,
			Error: fmt.Sprintf("Failed to create worktree for %s", task.Domain)}
	}

	defer func() {
		if r := recover(); r != nil {
			result = StoryResult{StoryID: task.StoryID, Domain: task.Domain, Success: false,
				Error: fmt.Sprintf("agent panicked: %v", r)}
		}
	}()

	timer := metrics.NewTimer()
	r, err := agentFn(ctx, task, wt.Path)
	timer.RecordStoryExecution(task.Domain)
	if err != nil {
		return StoryResult{StoryID: task.StoryID, Domain: task.Domain, Success: false, Error: err.Error()}
	}
	r.StoryID = task.StoryID
	r.Domain = task.Domain
	r.BranchName = wt.BranchName
	return r
}

func (e *Executor) recordTotals(results []StoryResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range results {
		if r.Success {
			e.succeeded++
		} else {
			e.failed++
		}
		e.tokens += int64(r.TokensUsed)
	}
}

// Status summarizes the most recent (or in-progress) run.
type Status struct {
	TotalStories    int
	Succeeded       int
	Failed          int
	TotalTokens     int64
	DurationSeconds float64
}

// GetStatus returns the executor's running tallies.
func (e *Executor) GetStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.duration
	if d == 0 && !e.startedAt.IsZero() {
		d = time.Since(e.startedAt)
	}
	return Status{
		TotalStories:    e.total,
		Succeeded:       e.succeeded,
		Failed:          e.failed,
		TotalTokens:     e.tokens,
		DurationSeconds: d.Seconds(),
	}
}
