package queue

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/wavehq/orchestrator/internal/errors"
	"github.com/wavehq/orchestrator/pkg/domain"
)

const (
	defaultPMTimeout = 300 * time.Second
	minPMTimeout     = 30 * time.Second
	maxPMTimeout     = 600 * time.Second
)

// ClampPMTimeout enforces the [30s, 600s] bound WAVE_PM_TIMEOUT is
// clamped to at config load (SPEC_FULL.md §6).
func ClampPMTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultPMTimeout
	}
	if d < minPMTimeout {
		return minPMTimeout
	}
	if d > maxPMTimeout {
		return maxPMTimeout
	}
	return d
}

// Supervisor layers domain-typed dispatch over the raw Queue: one method
// per roster domain plus a fan-out helper for parallel frontend/backend
// development on the same story (SPEC_FULL.md §4.7).
type Supervisor struct {
	queue     *Queue
	pmTimeout time.Duration
}

func NewSupervisor(q *Queue, pmTimeout time.Duration) *Supervisor {
	return &Supervisor{queue: q, pmTimeout: ClampPMTimeout(pmTimeout)}
}

func (s *Supervisor) dispatch(ctx context.Context, queueName, storyID, action string, payload map[string]interface{}) (string, error) {
	task := &domain.AgentTask{
		StoryID: storyID,
		Domain:  queueName,
		Action:  action,
		Payload: payload,
		Timeout: s.pmTimeout,
	}
	if err := s.queue.Enqueue(ctx, queueName, task); err != nil {
		return "", err
	}
	return task.TaskID, nil
}

// DispatchToPM enqueues a planning task on the pm queue.
func (s *Supervisor) DispatchToPM(ctx context.Context, storyID, action string, payload map[string]interface{}) (string, error) {
	return s.dispatch(ctx, QueuePM, storyID, action, payload)
}

// DispatchToCTO enqueues a plan-approval/review task on the cto queue.
func (s *Supervisor) DispatchToCTO(ctx context.Context, storyID, action string, payload map[string]interface{}) (string, error) {
	return s.dispatch(ctx, QueueCTO, storyID, action, payload)
}

// DispatchToFE enqueues a frontend development task.
func (s *Supervisor) DispatchToFE(ctx context.Context, storyID, action string, payload map[string]interface{}) (string, error) {
	return s.dispatch(ctx, QueueFE, storyID, action, payload)
}

// DispatchToBE enqueues a backend development task.
func (s *Supervisor) DispatchToBE(ctx context.Context, storyID, action string, payload map[string]interface{}) (string, error) {
	return s.dispatch(ctx, QueueBE, storyID, action, payload)
}

// DispatchToQA enqueues a validation task.
func (s *Supervisor) DispatchToQA(ctx context.Context, storyID, action string, payload map[string]interface{}) (string, error) {
	return s.dispatch(ctx, QueueQA, storyID, action, payload)
}

// ParallelDevTaskIDs pairs the frontend and backend task IDs produced by
// DispatchParallelDev.
type ParallelDevTaskIDs struct {
	FETaskID string
	BETaskID string
}

// DispatchParallelDev fans a story's development work out to the fe and be
// queues in one call, each scoped to its own file list so the two agents
// never touch overlapping files within the same worktree.
func (s *Supervisor) DispatchParallelDev(ctx context.Context, storyID string, feFiles, beFiles []string) (*ParallelDevTaskIDs, error) {
	feID, err := s.DispatchToFE(ctx, storyID, "develop", map[string]interface{}{"files": feFiles})
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrorTypeNetwork, "failed to dispatch frontend task for story %s", storyID)
	}
	beID, err := s.DispatchToBE(ctx, storyID, "develop", map[string]interface{}{"files": beFiles})
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrorTypeNetwork, "failed to dispatch backend task for story %s", storyID)
	}
	return &ParallelDevTaskIDs{FETaskID: feID, BETaskID: beID}, nil
}

// WaitForResult waits on the queue's completion channel for taskID.
func (s *Supervisor) WaitForResult(ctx context.Context, taskID string, timeout time.Duration) (*domain.TaskResult, error) {
	return s.queue.WaitForResult(ctx, taskID, timeout)
}

// WaitForParallelDev waits for both halves of a parallel-dev dispatch and
// reports a combined failure if either leg times out or fails.
func (s *Supervisor) WaitForParallelDev(ctx context.Context, ids *ParallelDevTaskIDs, timeout time.Duration) (fe, be *domain.TaskResult, err error) {
	results, err := s.queue.WaitForMultiple(ctx, []string{ids.FETaskID, ids.BETaskID}, timeout)
	if err != nil {
		return nil, nil, err
	}
	fe, be = results[0], results[1]
	if fe.Status == domain.TaskTimeout && be.Status == domain.TaskTimeout {
		return fe, be, apperrors.New(apperrors.ErrorTypeTimeout, fmt.Sprintf("parallel dev timed out for fe=%s be=%s", ids.FETaskID, ids.BETaskID))
	}
	return fe, be, nil
}
