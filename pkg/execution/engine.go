// Package execution implements the story execution state machine: gate
// progression, checkpoint writes, and the bounded retry-then-fail path
// described in SPEC_FULL.md §4.2.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/wavehq/orchestrator/internal/errors"
	"github.com/wavehq/orchestrator/pkg/domain"
)

// DefaultMaxRetries is the canonical max_retries default resolved from the
// spec's Open Question (SPEC_FULL.md §3): 3, matching the StoryExecution
// invariant and execute_gate's contract. The retry subgraph's alternate
// default of 7 lives only on RetrySubgraphConfig, never here.
const DefaultMaxRetries = 3

// StoryRepository is the subset of persistence.StoryRepository the engine
// depends on.
type StoryRepository interface {
	Create(ctx context.Context, s *domain.StoryExecution) error
	Update(ctx context.Context, s *domain.StoryExecution) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.StoryExecution, error)
	GetBySessionAndStoryID(ctx context.Context, sessionID uuid.UUID, storyID string) (*domain.StoryExecution, error)
}

// CheckpointRepository is the subset of persistence.CheckpointRepository
// the engine depends on.
type CheckpointRepository interface {
	Create(ctx context.Context, cp *domain.Checkpoint) error
	LatestByStory(ctx context.Context, sessionID uuid.UUID, storyID string) (*domain.Checkpoint, error)
}

// GateResult carries the outcome of one gate execution: SPEC_FULL.md §4.2.
type GateResult struct {
	Gate       int
	Status     GateStatus
	ACPassed   int
	ACTotal    int
	Error      string
}

type GateStatus string

const (
	GatePassed GateStatus = "passed"
	GateFailed GateStatus = "failed"
)

// Engine drives one story's state machine, writing a checkpoint at every
// transition so the recovery manager can replay from any point.
type Engine struct {
	stories     StoryRepository
	checkpoints CheckpointRepository
	maxRetries  int
	terminalGate int
}

// NewEngine constructs an Engine with the canonical max_retries default and
// a 10-gate terminal index (gate 9 = DEPLOYED).
func NewEngine(stories StoryRepository, checkpoints CheckpointRepository) *Engine {
	return &Engine{stories: stories, checkpoints: checkpoints, maxRetries: DefaultMaxRetries, terminalGate: 9}
}

// WithMaxRetries overrides the default retry ceiling (used by TDD-sequence
// deployments with a different terminal gate, or test harnesses).
func (e *Engine) WithMaxRetries(n int) *Engine {
	e.maxRetries = n
	return e
}

// WithTerminalGate overrides the terminal gate index (9 for the standard
// 10-gate sequence, 11 for the TDD-aware sequence).
func (e *Engine) WithTerminalGate(g int) *Engine {
	e.terminalGate = g
	return e
}

// StartExecution creates a StoryExecution, fails on an existing
// (session, story_id) pair, writes a story_start checkpoint, and sets
// status=in_progress at gate 0.
func (e *Engine) StartExecution(ctx context.Context, sessionID uuid.UUID, storyID, title, domainName, agent string) (uuid.UUID, error) {
	if existing, err := e.stories.GetBySessionAndStoryID(ctx, sessionID, storyID); err == nil && existing != nil {
		return uuid.Nil, apperrors.New(apperrors.ErrorTypeConflict, fmt.Sprintf("story %s already exists in this session", storyID))
	}

	story := domain.NewStoryExecution(sessionID, storyID, title, domainName, agent)
	story.Status = domain.StoryInProgress
	now := time.Now()
	story.StartedAt = &now

	if err := e.stories.Create(ctx, story); err != nil {
		return uuid.Nil, err
	}

	cp := domain.NewCheckpoint(sessionID, storyID, domain.CheckpointStoryStart, "story started", map[string]interface{}{
		"story_execution_id": story.ID.String(),
		"domain":              domainName,
		"agent":               agent,
	})
	if err := e.checkpoints.Create(ctx, cp); err != nil {
		return uuid.Nil, err
	}

	return story.ID, nil
}

// TransitionState validates newState against the allowed graph, records the
// reason in metadata, persists the story, and writes a tagged checkpoint.
func (e *Engine) TransitionState(ctx context.Context, execID uuid.UUID, newState domain.StoryStatus, reason string) error {
	story, err := e.stories.GetByID(ctx, execID)
	if err != nil {
		return err
	}

	if !domain.CanTransition(story.Status, newState) {
		return apperrors.New(apperrors.ErrorTypeValidation,
			fmt.Sprintf("invalid story transition: %s -> %s", story.Status, newState))
	}

	story.Status = newState
	if story.Metadata == nil {
		story.Metadata = map[string]interface{}{}
	}
	if reason != "" {
		story.Metadata["last_transition_reason"] = reason
	}

	if err := e.stories.Update(ctx, story); err != nil {
		return err
	}

	cp := domain.NewCheckpoint(story.SessionID, story.StoryID, domain.CheckpointManual,
		fmt.Sprintf("transitioned to %s", newState), map[string]interface{}{
			"new_state": string(newState),
			"reason":    reason,
		})
	return e.checkpoints.Create(ctx, cp)
}

// ExecuteGate applies a gate's PASSED/FAILED result: on PASSED it writes a
// gate checkpoint, advances current_gate, and completes the story if this
// was the terminal gate; on FAILED it increments retry_count and escalates
// to failed once the retry ceiling is exceeded.
func (e *Engine) ExecuteGate(ctx context.Context, execID uuid.UUID, result GateResult) error {
	story, err := e.stories.GetByID(ctx, execID)
	if err != nil {
		return err
	}

	story.AcceptanceCriteriaPassed = result.ACPassed
	story.AcceptanceCriteriaTotal = result.ACTotal

	switch result.Status {
	case GatePassed:
		return e.executeGatePassed(ctx, story, result)
	case GateFailed:
		return e.executeGateFailed(ctx, story, result)
	default:
		return apperrors.NewValidationError(fmt.Sprintf("unknown gate result status: %s", result.Status))
	}
}

func (e *Engine) executeGatePassed(ctx context.Context, story *domain.StoryExecution, result GateResult) error {
	gateIdx := result.Gate
	cp := domain.NewCheckpoint(story.SessionID, story.StoryID, domain.CheckpointGate,
		fmt.Sprintf("gate %d passed", gateIdx), map[string]interface{}{
			"gate":      gateIdx,
			"status":    string(GatePassed),
			"ac_passed": result.ACPassed,
			"ac_total":  result.ACTotal,
		})
	cp.Gate = &gateIdx
	if err := e.checkpoints.Create(ctx, cp); err != nil {
		return err
	}

	story.CurrentGate = gateIdx + 1

	if gateIdx == e.terminalGate {
		story.Status = domain.StoryComplete
		now := time.Now()
		story.CompletedAt = &now
	}

	return e.stories.Update(ctx, story)
}

func (e *Engine) executeGateFailed(ctx context.Context, story *domain.StoryExecution, result GateResult) error {
	story.RetryCount++

	cp := domain.NewCheckpoint(story.SessionID, story.StoryID, domain.CheckpointError,
		fmt.Sprintf("gate %d failed", result.Gate), map[string]interface{}{
			"gate":        result.Gate,
			"status":      string(GateFailed),
			"error":       result.Error,
			"retry_count": story.RetryCount,
		})
	gateIdx := result.Gate
	cp.Gate = &gateIdx
	if err := e.checkpoints.Create(ctx, cp); err != nil {
		return err
	}

	if story.RetryCount < e.maxRetries {
		story.Status = domain.StoryInProgress
	} else {
		story.Status = domain.StoryFailed
		story.ErrorMessage = fmt.Sprintf("gate-%d failed: %s", result.Gate, result.Error)
		now := time.Now()
		story.FailedAt = &now
	}

	return e.stories.Update(ctx, story)
}

// CompleteExecution stores artefact references and marks the story
// complete with a story_complete checkpoint.
func (e *Engine) CompleteExecution(ctx context.Context, execID uuid.UUID, filesCreated, filesModified []string, branch, sha, prURL string, testsPassing bool, coverage float64) error {
	story, err := e.stories.GetByID(ctx, execID)
	if err != nil {
		return err
	}

	story.FilesCreated = filesCreated
	story.FilesModified = filesModified
	story.BranchName = branch
	story.CommitSHA = sha
	story.PRURL = prURL
	story.TestsPassing = &testsPassing
	story.CoverageAchieved = coverage
	story.Status = domain.StoryComplete
	now := time.Now()
	story.CompletedAt = &now

	if err := e.stories.Update(ctx, story); err != nil {
		return err
	}

	cp := domain.NewCheckpoint(story.SessionID, story.StoryID, domain.CheckpointStoryComplete, "story completed", map[string]interface{}{
		"branch_name":   branch,
		"commit_sha":    sha,
		"pr_url":        prURL,
		"tests_passing": testsPassing,
		"coverage":      coverage,
	})
	return e.checkpoints.Create(ctx, cp)
}

// FailExecution marks the story failed and writes an error checkpoint.
func (e *Engine) FailExecution(ctx context.Context, execID uuid.UUID, errMsg string) error {
	story, err := e.stories.GetByID(ctx, execID)
	if err != nil {
		return err
	}

	story.Status = domain.StoryFailed
	story.ErrorMessage = errMsg
	now := time.Now()
	story.FailedAt = &now

	if err := e.stories.Update(ctx, story); err != nil {
		return err
	}

	cp := domain.NewCheckpoint(story.SessionID, story.StoryID, domain.CheckpointError, "story failed", map[string]interface{}{
		"error": errMsg,
	})
	return e.checkpoints.Create(ctx, cp)
}

// CurrentState summarizes a story's live state plus its latest checkpoint.
type CurrentState struct {
	Status      domain.StoryStatus
	CurrentGate int
	ACPassed    int
	ACTotal     int
	Checkpoint  *domain.Checkpoint
}

// GetCurrentState returns story's status, current gate, AC counts, and its
// latest checkpoint (by monotonic sequence, never by wall-clock alone —
// SPEC_FULL.md §4.2 edge case).
func (e *Engine) GetCurrentState(ctx context.Context, execID uuid.UUID) (*CurrentState, error) {
	story, err := e.stories.GetByID(ctx, execID)
	if err != nil {
		return nil, err
	}

	cp, err := e.checkpoints.LatestByStory(ctx, story.SessionID, story.StoryID)
	if err != nil && apperrors.GetType(err) != apperrors.ErrorTypeNotFound {
		return nil, err
	}

	return &CurrentState{
		Status:      story.Status,
		CurrentGate: story.CurrentGate,
		ACPassed:    story.AcceptanceCriteriaPassed,
		ACTotal:     story.AcceptanceCriteriaTotal,
		Checkpoint:  cp,
	}, nil
}
