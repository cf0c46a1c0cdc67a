// Package queue implements the Redis-backed task queue (SPEC_FULL.md
// §4.7): per-domain FIFO lists plus a results channel, with a Supervisor
// layered on top for domain-typed dispatch.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/wavehq/orchestrator/internal/errors"
	"github.com/wavehq/orchestrator/pkg/domain"
	"github.com/wavehq/orchestrator/pkg/metrics"
)

const taskTTL = 24 * time.Hour

// Domain queue names, matching the spec's fixed roster.
const (
	QueuePM     = "pm"
	QueueCTO    = "cto"
	QueueFE     = "fe"
	QueueBE     = "be"
	QueueQA     = "qa"
	QueueSafety = "safety"
	QueueHuman  = "human"
)

func taskKey(taskID string) string    { return "wave:task:" + taskID }
func resultKey(taskID string) string  { return "wave:result:" + taskID }
func listKey(queueName string) string { return "wave:tasks:" + queueName }

// resultsChannel is the pub/sub channel submit_result publishes
// completions on; wait_for_result subscribes here instead of polling.
const resultsChannel = "wave:task_results"

// Queue wraps a Redis client with the enqueue/dequeue/result operations
// from SPEC_FULL.md §4.7.
type Queue struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// Enqueue writes task to task:{id} with a 24h TTL, pushes its ID onto the
// named queue list, and publishes a task_enqueued notification.
func (q *Queue) Enqueue(ctx context.Context, queueName string, task *domain.AgentTask) error {
	if task.TaskID == "" {
		task.TaskID = uuid.New().String()
	}
	task.Status = domain.TaskPending
	task.CreatedAt = time.Now()

	payload, err := json.Marshal(task)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to marshal task")
	}

	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, taskKey(task.TaskID), payload, taskTTL)
	pipe.LPush(ctx, listKey(queueName), task.TaskID)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "failed to enqueue task")
	}

	metrics.SetQueueDepth(queueName, float64(q.rdb.LLen(ctx, listKey(queueName)).Val()))
	q.rdb.Publish(ctx, resultsChannel, notificationPayload("task_enqueued", task.TaskID))
	return nil
}

// Dequeue blocks (BRPOP) on queueName up to timeout, returning the next
// task, or nil if the timeout elapses.
func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*domain.AgentTask, error) {
	res, err := q.rdb.BRPop(ctx, timeout, listKey(queueName)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "failed to dequeue task")
	}

	taskID := res[1]
	task, err := q.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	task.Status = domain.TaskAssigned
	if err := q.saveTask(ctx, task); err != nil {
		return nil, err
	}
	metrics.SetQueueDepth(queueName, float64(q.rdb.LLen(ctx, listKey(queueName)).Val()))
	return task, nil
}

// MarkInProgress updates the task hash to reflect the agent now working
// it.
func (q *Queue) MarkInProgress(ctx context.Context, taskID, agentID string) error {
	task, err := q.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	task.Status = domain.TaskInProgress
	task.AssignedAgent = agentID
	return q.saveTask(ctx, task)
}

// SubmitResult writes result:{task_id} with a 24h TTL, updates the task's
// status, and publishes a completion notification.
func (q *Queue) SubmitResult(ctx context.Context, result *domain.TaskResult) error {
	result.CompletedAt = time.Now()
	if result.Status == "" {
		result.Status = domain.TaskCompleted
		if !result.Success {
			result.Status = domain.TaskFailed
		}
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to marshal result")
	}

	if err := q.rdb.Set(ctx, resultKey(result.TaskID), payload, taskTTL).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "failed to store result")
	}

	if task, err := q.getTask(ctx, result.TaskID); err == nil {
		task.Status = result.Status
		_ = q.saveTask(ctx, task)
	}

	q.rdb.Publish(ctx, resultsChannel, notificationPayload("task_completed", result.TaskID))
	return nil
}

// GetResult returns the stored result for taskID if present, without
// blocking.
func (q *Queue) GetResult(ctx context.Context, taskID string) (*domain.TaskResult, error) {
	raw, err := q.rdb.Get(ctx, resultKey(taskID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "failed to fetch result")
	}
	var result domain.TaskResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to decode result")
	}
	return &result, nil
}

// WaitForResult subscribes to the completion channel and waits until
// taskID's result appears or timeout elapses, returning a synthetic
// status=timeout result rather than an error on timeout (SPEC_FULL.md §5
// suspension-point cancellation contract).
func (q *Queue) WaitForResult(ctx context.Context, taskID string, timeout time.Duration) (*domain.TaskResult, error) {
	deadline := time.Now().Add(timeout)

	if result, err := q.GetResult(ctx, taskID); err != nil {
		return nil, err
	} else if result != nil {
		return result, nil
	}

	sub := q.rdb.Subscribe(ctx, resultsChannel)
	defer sub.Close()
	ch := sub.Channel()

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return timeoutResult(taskID), nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ch:
			timer.Stop()
			if result, err := q.GetResult(ctx, taskID); err != nil {
				return nil, err
			} else if result != nil {
				return result, nil
			}
		case <-timer.C:
			return timeoutResult(taskID), nil
		case <-ctx.Done():
			timer.Stop()
			return timeoutResult(taskID), nil
		}
	}
}

// WaitForMultiple waits for every task in taskIDs, each bounded by
// timeout, concurrently, and returns them in the same order.
func (q *Queue) WaitForMultiple(ctx context.Context, taskIDs []string, timeout time.Duration) ([]*domain.TaskResult, error) {
	results := make([]*domain.TaskResult, len(taskIDs))
	errs := make([]error, len(taskIDs))

	type outcome struct {
		idx    int
		result *domain.TaskResult
		err    error
	}
	out := make(chan outcome, len(taskIDs))
	for i, id := range taskIDs {
		go func(i int, id string) {
			r, err := q.WaitForResult(ctx, id, timeout)
			out <- outcome{idx: i, result: r, err: err}
		}(i, id)
	}
	for range taskIDs {
		o := <-out
		results[o.idx] = o.result
		errs[o.idx] = o.err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (q *Queue) getTask(ctx context.Context, taskID string) (*domain.AgentTask, error) {
	raw, err := q.rdb.Get(ctx, taskKey(taskID)).Bytes()
	if err == redis.Nil {
		return nil, apperrors.NewNotFoundError("task")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "failed to fetch task")
	}
	var task domain.AgentTask
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to decode task")
	}
	return &task, nil
}

func (q *Queue) saveTask(ctx context.Context, task *domain.AgentTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to marshal task")
	}
	if err := q.rdb.Set(ctx, taskKey(task.TaskID), payload, taskTTL).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "failed to persist task")
	}
	return nil
}

// ClearTasks deletes the task:{id} hash for every id in taskIDs — used by
// the workflow reset endpoint's clear_tasks option.
func (q *Queue) ClearTasks(ctx context.Context, taskIDs []string) error {
	if len(taskIDs) == 0 {
		return nil
	}
	keys := make([]string, len(taskIDs))
	for i, id := range taskIDs {
		keys[i] = taskKey(id)
	}
	if err := q.rdb.Del(ctx, keys...).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "failed to clear task keys")
	}
	return nil
}

// ClearResults deletes the result:{id} entry for every id in taskIDs — used
// by the workflow reset endpoint's clear_results option.
func (q *Queue) ClearResults(ctx context.Context, taskIDs []string) error {
	if len(taskIDs) == 0 {
		return nil
	}
	keys := make([]string, len(taskIDs))
	for i, id := range taskIDs {
		keys[i] = resultKey(id)
	}
	if err := q.rdb.Del(ctx, keys...).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "failed to clear result keys")
	}
	return nil
}

func timeoutResult(taskID string) *domain.TaskResult {
	return &domain.TaskResult{TaskID: taskID, Success: false, Status: domain.TaskTimeout, Error: "wait_for_result timed out", CompletedAt: time.Now()}
}

func notificationPayload(event, taskID string) string {
	b, _ := json.Marshal(map[string]string{"event": event, "task_id": taskID})
	return string(b)
}
