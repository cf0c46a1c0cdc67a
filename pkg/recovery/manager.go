// Package recovery implements the four recovery strategies
// (RESUME_FROM_LAST, RESUME_FROM_GATE, RESTART, SKIP) that replay a story's
// checkpoint history back into live state after a crash or an operator
// decision (SPEC_FULL.md §4.4). Every exported operation here is expected
// to complete well within the <5s performance contract: it is a handful of
// indexed reads plus one write, never a full table scan.
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/wavehq/orchestrator/internal/errors"
	"github.com/wavehq/orchestrator/pkg/domain"
)

// Strategy selects how a story is restored.
type Strategy string

const (
	ResumeFromLast Strategy = "RESUME_FROM_LAST"
	ResumeFromGate Strategy = "RESUME_FROM_GATE"
	Restart        Strategy = "RESTART"
	Skip           Strategy = "SKIP"
)

// StoryRepository is the subset of persistence.StoryRepository the recovery
// manager depends on.
type StoryRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.StoryExecution, error)
	GetBySessionAndStoryID(ctx context.Context, sessionID uuid.UUID, storyID string) (*domain.StoryExecution, error)
	Update(ctx context.Context, s *domain.StoryExecution) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.StoryExecution, error)
}

// CheckpointRepository is the subset of persistence.CheckpointRepository
// the recovery manager depends on.
type CheckpointRepository interface {
	Create(ctx context.Context, cp *domain.Checkpoint) error
	ListByStory(ctx context.Context, sessionID uuid.UUID, storyID string) ([]*domain.Checkpoint, error)
	LatestByStory(ctx context.Context, sessionID uuid.UUID, storyID string) (*domain.Checkpoint, error)
}

// RecoveryPoint is one checkpoint annotated with whether it's safe to
// resume from.
type RecoveryPoint struct {
	Checkpoint *domain.Checkpoint
	CanResume  bool
}

// Manager implements the four recovery strategies over a story's checkpoint
// history.
type Manager struct {
	stories     StoryRepository
	checkpoints CheckpointRepository
}

func NewManager(stories StoryRepository, checkpoints CheckpointRepository) *Manager {
	return &Manager{stories: stories, checkpoints: checkpoints}
}

// FindRecoveryPoints lists a story's checkpoints in chronological order,
// each tagged can_resume=true unless it is an error checkpoint with no
// successor (the last entry in the list).
func (m *Manager) FindRecoveryPoints(ctx context.Context, sessionID uuid.UUID, storyID string) ([]RecoveryPoint, error) {
	cps, err := m.checkpoints.ListByStory(ctx, sessionID, storyID)
	if err != nil {
		return nil, err
	}

	points := make([]RecoveryPoint, len(cps))
	for i, cp := range cps {
		isLast := i == len(cps)-1
		canResume := !(cp.Type == domain.CheckpointError && isLast)
		points[i] = RecoveryPoint{Checkpoint: cp, CanResume: canResume}
	}
	return points, nil
}

// GetLastRecoveryPoint returns the most recent checkpoint for storyID.
func (m *Manager) GetLastRecoveryPoint(ctx context.Context, sessionID uuid.UUID, storyID string) (*domain.Checkpoint, error) {
	return m.checkpoints.LatestByStory(ctx, sessionID, storyID)
}

// CanRecover reports whether the story exists and is not already terminal
// in a way recovery cannot touch (complete or cancelled).
func (m *Manager) CanRecover(ctx context.Context, sessionID uuid.UUID, storyID string) (bool, error) {
	story, err := m.stories.GetBySessionAndStoryID(ctx, sessionID, storyID)
	if err != nil {
		if apperrors.GetType(err) == apperrors.ErrorTypeNotFound {
			return false, nil
		}
		return false, err
	}
	return story.Status != domain.StoryComplete && story.Status != domain.StoryCancelled, nil
}

// RecoverStory applies strategy to the named story, within the <5s
// performance contract.
func (m *Manager) RecoverStory(ctx context.Context, sessionID uuid.UUID, storyID string, strategy Strategy, targetGate *int) error {
	story, err := m.stories.GetBySessionAndStoryID(ctx, sessionID, storyID)
	if err != nil {
		return err
	}

	switch strategy {
	case ResumeFromLast:
		return m.resumeFromLast(ctx, story)
	case ResumeFromGate:
		if targetGate == nil {
			return apperrors.NewValidationError("target_gate is required for RESUME_FROM_GATE")
		}
		return m.resumeFromGate(ctx, story, *targetGate)
	case Restart:
		return m.restart(ctx, story)
	case Skip:
		return m.skip(ctx, story)
	default:
		return apperrors.NewValidationError(fmt.Sprintf("unknown recovery strategy: %s", strategy))
	}
}

func (m *Manager) resumeFromLast(ctx context.Context, story *domain.StoryExecution) error {
	latest, err := m.checkpoints.LatestByStory(ctx, story.SessionID, story.StoryID)
	if err != nil {
		return err
	}

	story.Status = domain.StoryInProgress
	story.FailedAt = nil

	if err := m.stories.Update(ctx, story); err != nil {
		return err
	}

	cp := domain.NewCheckpoint(story.SessionID, story.StoryID, domain.CheckpointManual, "recovered: resume from last", map[string]interface{}{
		"strategy":            string(ResumeFromLast),
		"resumed_from_seq":    latest.Sequence,
		"resumed_from_gate":   latest.Gate,
	})
	return m.checkpoints.Create(ctx, cp)
}

func (m *Manager) resumeFromGate(ctx context.Context, story *domain.StoryExecution, targetGate int) error {
	cps, err := m.checkpoints.ListByStory(ctx, story.SessionID, story.StoryID)
	if err != nil {
		return err
	}

	var found *domain.Checkpoint
	for _, cp := range cps {
		if cp.Type == domain.CheckpointGate && cp.Gate != nil && *cp.Gate == targetGate {
			found = cp
		}
	}
	if found == nil {
		return apperrors.New(apperrors.ErrorTypeNotFound, fmt.Sprintf("No checkpoint found for gate %d", targetGate))
	}

	story.Status = domain.StoryInProgress
	story.FailedAt = nil
	story.CurrentGate = targetGate

	if err := m.stories.Update(ctx, story); err != nil {
		return err
	}

	cp := domain.NewCheckpoint(story.SessionID, story.StoryID, domain.CheckpointManual, "recovered: resume from gate", map[string]interface{}{
		"strategy":    string(ResumeFromGate),
		"target_gate": targetGate,
	})
	return m.checkpoints.Create(ctx, cp)
}

func (m *Manager) restart(ctx context.Context, story *domain.StoryExecution) error {
	story.Status = domain.StoryPending
	story.StartedAt = nil
	story.RetryCount = 0
	story.AcceptanceCriteriaPassed = 0
	story.CurrentGate = 0

	if err := m.stories.Update(ctx, story); err != nil {
		return err
	}

	cp := domain.NewCheckpoint(story.SessionID, story.StoryID, domain.CheckpointManual, "recovered: restart", map[string]interface{}{
		"strategy": string(Restart),
	})
	return m.checkpoints.Create(ctx, cp)
}

func (m *Manager) skip(ctx context.Context, story *domain.StoryExecution) error {
	story.Status = domain.StoryCancelled

	if err := m.stories.Update(ctx, story); err != nil {
		return err
	}

	cp := domain.NewCheckpoint(story.SessionID, story.StoryID, domain.CheckpointManual, "recovered: skipped", map[string]interface{}{
		"strategy": string(Skip),
	})
	return m.checkpoints.Create(ctx, cp)
}

// SessionRecoveryResult summarizes a session-wide recovery sweep.
type SessionRecoveryResult struct {
	Recovered []string
	Failed    []SessionRecoveryFailure
	Total     int
}

type SessionRecoveryFailure struct {
	StoryID string
	Error   string
}

// RecoverSession iterates every recoverable story in the session, applying
// strategy to each; a single story's failure does not stop the sweep.
func (m *Manager) RecoverSession(ctx context.Context, sessionID uuid.UUID, strategy Strategy) (*SessionRecoveryResult, error) {
	stories, err := m.stories.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	result := &SessionRecoveryResult{Total: len(stories)}
	for _, story := range stories {
		recoverable, err := m.CanRecover(ctx, sessionID, story.StoryID)
		if err != nil {
			result.Failed = append(result.Failed, SessionRecoveryFailure{StoryID: story.StoryID, Error: err.Error()})
			continue
		}
		if !recoverable {
			continue
		}

		if err := m.RecoverStory(ctx, sessionID, story.StoryID, strategy, nil); err != nil {
			result.Failed = append(result.Failed, SessionRecoveryFailure{StoryID: story.StoryID, Error: err.Error()})
			continue
		}
		result.Recovered = append(result.Recovered, story.StoryID)
	}
	return result, nil
}

// RecoveryStatus summarizes a session's recovery posture.
type RecoveryStatus struct {
	TotalStories int
	ByStatus     map[domain.StoryStatus]int
	Recoverable  []string
}

// GetRecoveryStatus returns per-status counts and the set of non-terminal
// (hence recoverable) stories in the session.
func (m *Manager) GetRecoveryStatus(ctx context.Context, sessionID uuid.UUID) (*RecoveryStatus, error) {
	stories, err := m.stories.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	status := &RecoveryStatus{TotalStories: len(stories), ByStatus: map[domain.StoryStatus]int{}}
	for _, story := range stories {
		status.ByStatus[story.Status]++
		if !story.IsTerminal() {
			status.Recoverable = append(status.Recoverable, story.StoryID)
		}
	}
	return status, nil
}

// recoveryDeadline is the performance contract from SPEC_FULL.md §4.4:
// single-story recovery must complete within this bound.
const recoveryDeadline = 5 * time.Second
