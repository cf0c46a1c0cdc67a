// Package domain defines the orchestrator's persisted entities: Session,
// StoryExecution, Checkpoint, and the value types threaded between them
// (gates, budgets, safety state). These are plain structs; validation and
// transition rules live in the packages that own each entity's lifecycle
// (pkg/execution, pkg/gate, pkg/recovery).
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of one PRD-to-merge run.
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionCancelled  SessionStatus = "cancelled"
)

// Session is one PRD-to-merge run: a numbered wave of stories sharing a
// budget cap and a project name.
type Session struct {
	ID                uuid.UUID              `db:"id" json:"id"`
	ProjectName       string                 `db:"project_name" json:"project_name"`
	WaveNumber        int                    `db:"wave_number" json:"wave_number"`
	Status            SessionStatus          `db:"status" json:"status"`
	BudgetUSD         float64                `db:"budget_usd" json:"budget_usd"`
	ActualCostUSD     float64                `db:"actual_cost_usd" json:"actual_cost_usd"`
	TokenCount        int64                  `db:"token_count" json:"token_count"`
	StoryCount        int                    `db:"story_count" json:"story_count"`
	StoriesCompleted  int                    `db:"stories_completed" json:"stories_completed"`
	StoriesFailed     int                    `db:"stories_failed" json:"stories_failed"`
	Metadata          map[string]interface{} `db:"-" json:"metadata"`
	CreatedAt         time.Time              `db:"created_at" json:"created_at"`
	StartedAt         *time.Time             `db:"started_at" json:"started_at,omitempty"`
	CompletedAt       *time.Time             `db:"completed_at" json:"completed_at,omitempty"`
	FailedAt          *time.Time             `db:"failed_at" json:"failed_at,omitempty"`
}

// NewSession constructs a pending Session with a freshly generated ID.
func NewSession(projectName string, waveNumber int, budgetUSD float64) *Session {
	return &Session{
		ID:          uuid.New(),
		ProjectName: projectName,
		WaveNumber:  waveNumber,
		Status:      SessionPending,
		BudgetUSD:   budgetUSD,
		Metadata:    map[string]interface{}{},
		CreatedAt:   time.Now(),
	}
}

// InvariantHolds reports the session invariant from SPEC_FULL.md §3:
// stories_completed + stories_failed must never exceed story_count.
func (s *Session) InvariantHolds() bool {
	return s.StoriesCompleted+s.StoriesFailed <= s.StoryCount
}

// IsTerminal reports whether the session has reached a state from which it
// never transitions again without an explicit reset.
func (s *Session) IsTerminal() bool {
	switch s.Status {
	case SessionCompleted, SessionFailed, SessionCancelled:
		return true
	default:
		return false
	}
}
