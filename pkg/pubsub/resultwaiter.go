package pubsub

import (
	"context"
	"sync"
	"time"

	"github.com/wavehq/orchestrator/pkg/domain"
)

// ResultWaiter is a handler-notified latch keyed by task id: callers
// register interest with Expect, a pub/sub handler fulfils it with
// Notify, and Wait blocks until notified or timed out. It exists to
// replace 500ms-poll-loop result waiting with delivery inside one
// signal-bus round trip (SPEC_FULL.md §4.8).
//
// The concurrent map is a plain mutex-guarded map of channels rather than
// sync.Map: every key is written at most once per wait cycle and the
// per-key channel close is itself the condition-variable signal, which is
// the correct primitive across implementations (SPEC_FULL.md §9).
type ResultWaiter struct {
	mu      sync.Mutex
	waiters map[string]chan *domain.TaskResult
}

func NewResultWaiter() *ResultWaiter {
	return &ResultWaiter{waiters: map[string]chan *domain.TaskResult{}}
}

// Expect registers interest in taskID. Calling Expect twice for the same
// unresolved taskID returns the existing channel rather than replacing
// it, so concurrent waiters on the same task share one notification.
func (w *ResultWaiter) Expect(taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.waiters[taskID]; !ok {
		w.waiters[taskID] = make(chan *domain.TaskResult, 1)
	}
}

// Notify fulfils taskID's registered interest, if any. A notification for
// a taskID nobody is waiting on is silently dropped.
func (w *ResultWaiter) Notify(taskID string, result *domain.TaskResult) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch, ok := w.waiters[taskID]
	if !ok {
		return
	}
	select {
	case ch <- result:
	default:
	}
}

// Wait blocks until taskID is notified or timeout elapses, returning a
// synthetic timeout result on expiry rather than an error.
func (w *ResultWaiter) Wait(ctx context.Context, taskID string, timeout time.Duration) *domain.TaskResult {
	w.Expect(taskID)
	w.mu.Lock()
	ch := w.waiters[taskID]
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.waiters, taskID)
		w.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-ch:
		return result
	case <-timer.C:
		return domainTimeoutResult(taskID)
	case <-ctx.Done():
		return domainTimeoutResult(taskID)
	}
}

func domainTimeoutResult(taskID string) *domain.TaskResult {
	r := domain.TimeoutResult(taskID, "")
	return &r
}
