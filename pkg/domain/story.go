package domain

import (
	"time"

	"github.com/google/uuid"
)

// StoryStatus is the lifecycle state of a single story within a session.
type StoryStatus string

const (
	StoryPending    StoryStatus = "pending"
	StoryInProgress StoryStatus = "in_progress"
	StoryReview     StoryStatus = "review"
	StoryComplete   StoryStatus = "complete"
	StoryFailed     StoryStatus = "failed"
	StoryCancelled  StoryStatus = "cancelled"
)

// StoryExecution is one story's execution record within a session: its
// domain assignment, current gate, artefacts produced, and retry state.
type StoryExecution struct {
	ID                       uuid.UUID              `db:"id" json:"id"`
	SessionID                uuid.UUID              `db:"session_id" json:"session_id"`
	StoryID                  string                 `db:"story_id" json:"story_id"`
	Title                    string                 `db:"title" json:"title"`
	Domain                   string                 `db:"domain" json:"domain"`
	Agent                    string                 `db:"agent" json:"agent"`
	Priority                 int                    `db:"priority" json:"priority"`
	StoryPoints              int                    `db:"story_points" json:"story_points"`
	Status                   StoryStatus            `db:"status" json:"status"`
	CurrentGate              int                    `db:"current_gate" json:"current_gate"`
	AcceptanceCriteriaPassed int                    `db:"acceptance_criteria_passed" json:"acceptance_criteria_passed"`
	AcceptanceCriteriaTotal  int                    `db:"acceptance_criteria_total" json:"acceptance_criteria_total"`
	RetryCount               int                    `db:"retry_count" json:"retry_count"`
	FilesCreated             []string               `db:"-" json:"files_created"`
	FilesModified            []string               `db:"-" json:"files_modified"`
	BranchName               string                 `db:"branch_name" json:"branch_name,omitempty"`
	CommitSHA                string                 `db:"commit_sha" json:"commit_sha,omitempty"`
	PRURL                    string                 `db:"pr_url" json:"pr_url,omitempty"`
	TestsPassing             *bool                  `db:"tests_passing" json:"tests_passing,omitempty"`
	CoverageAchieved         float64                `db:"coverage_achieved" json:"coverage_achieved"`
	ErrorMessage             string                 `db:"error_message" json:"error_message,omitempty"`
	Metadata                 map[string]interface{} `db:"-" json:"metadata"`
	CreatedAt                time.Time              `db:"created_at" json:"created_at"`
	StartedAt                *time.Time             `db:"started_at" json:"started_at,omitempty"`
	CompletedAt              *time.Time             `db:"completed_at" json:"completed_at,omitempty"`
	FailedAt                 *time.Time             `db:"failed_at" json:"failed_at,omitempty"`
}

// NewStoryExecution constructs a pending StoryExecution at gate 0.
func NewStoryExecution(sessionID uuid.UUID, storyID, title, domain, agent string) *StoryExecution {
	return &StoryExecution{
		ID:          uuid.New(),
		SessionID:   sessionID,
		StoryID:     storyID,
		Title:       title,
		Domain:      domain,
		Agent:       agent,
		Status:      StoryPending,
		CurrentGate: 0,
		Metadata:    map[string]interface{}{},
		CreatedAt:   time.Now(),
	}
}

// IsTerminal reports whether the story has reached complete, failed, or
// cancelled — states with no further transitions.
func (s *StoryExecution) IsTerminal() bool {
	switch s.Status {
	case StoryComplete, StoryFailed, StoryCancelled:
		return true
	default:
		return false
	}
}

// storyTransitions is the allowed transition graph from SPEC_FULL.md §4.2.
var storyTransitions = map[StoryStatus]map[StoryStatus]bool{
	StoryPending: {
		StoryInProgress: true,
	},
	StoryInProgress: {
		StoryReview:    true,
		StoryComplete:  true,
		StoryFailed:    true,
		StoryCancelled: true,
	},
	StoryReview: {
		StoryInProgress: true,
		StoryComplete:   true,
		StoryFailed:     true,
	},
	StoryFailed: {
		StoryInProgress: true, // recovery only
	},
}

// CanTransition reports whether from->to is an edge in the allowed story
// status graph.
func CanTransition(from, to StoryStatus) bool {
	edges, ok := storyTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}
