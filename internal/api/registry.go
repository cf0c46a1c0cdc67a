package api

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// workflowStatus is the registry-local lifecycle of a running workflow,
// distinct from domain.SessionStatus/StoryStatus: it tracks whether the HTTP
// layer still considers the thread addressable, not the story's gate state.
type workflowStatus string

const (
	workflowRunning workflowStatus = "running"
	workflowStopped workflowStatus = "stopped"
)

// workflowEntry is the registry's record of one POST /workflow/start call:
// enough to look up the backing session/story rows and to answer
// GET /workflow/{thread_id}/status without a database round trip for the
// fields that never change after start.
type workflowEntry struct {
	ThreadID    string
	SessionID   uuid.UUID
	ExecutionID uuid.UUID
	StoryID     string
	ProjectPath string
	TaskIDs     []string
	Status      workflowStatus
	CreatedAt   time.Time
}

// Registry is the in-memory index of active workflow threads. It does not
// replace the durable session/story_execution rows — it exists so
// /workflow/{thread_id}/* can resolve a thread_id to the session/execution
// IDs it fronts, and so /workflow/{thread_id}/reset has something to clear
// (SPEC_FULL.md §6: reset "clears in-memory state").
type Registry struct {
	mu      sync.RWMutex
	threads map[string]*workflowEntry
}

func NewRegistry() *Registry {
	return &Registry{threads: make(map[string]*workflowEntry)}
}

func (r *Registry) put(e *workflowEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads[e.ThreadID] = e
}

func (r *Registry) get(threadID string) (*workflowEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.threads[threadID]
	return e, ok
}

// delete removes threadID's entry entirely — used by reset when the caller
// wants the thread forgotten rather than just marked stopped.
func (r *Registry) delete(threadID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.threads, threadID)
}

func (r *Registry) list() []*workflowEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*workflowEntry, 0, len(r.threads))
	for _, e := range r.threads {
		out = append(out, e)
	}
	return out
}
