package domain

import "time"

// TaskStatus is the lifecycle state of an AgentTask on the task queue.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskTimeout    TaskStatus = "timeout"
)

// AgentTask is a work unit enqueued onto a domain queue.
type AgentTask struct {
	TaskID        string                 `json:"task_id"`
	StoryID       string                 `json:"story_id"`
	Domain        string                 `json:"domain"`
	Action        string                 `json:"action"`
	Payload       map[string]interface{} `json:"payload"`
	Priority      int                    `json:"priority"`
	Timeout       time.Duration          `json:"timeout"`
	ThreadID      string                 `json:"thread_id"`
	Status        TaskStatus             `json:"status"`
	AssignedAgent string                 `json:"assigned_agent,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// TaskResult is the outcome of executing an AgentTask.
type TaskResult struct {
	TaskID       string                 `json:"task_id"`
	Status       TaskStatus             `json:"status"`
	Domain       string                 `json:"domain"`
	AgentID      string                 `json:"agent_id"`
	Success      bool                   `json:"success"`
	Result       map[string]interface{} `json:"result"`
	DurationSecs float64                `json:"duration_seconds"`
	SafetyScore  float64                `json:"safety_score"`
	Error        string                 `json:"error,omitempty"`
	CompletedAt  time.Time              `json:"completed_at"`
}

// TimeoutResult builds the synthetic result produced when a blocking wait
// exceeds its deadline (SPEC_FULL.md §5, suspension-point cancellation
// contract): callers must receive a result, never an unhandled error.
func TimeoutResult(taskID, domain string) TaskResult {
	return TaskResult{
		TaskID:      taskID,
		Status:      TaskTimeout,
		Domain:      domain,
		Error:       "timed out waiting for result",
		CompletedAt: time.Now(),
	}
}
