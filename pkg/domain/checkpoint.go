package domain

import (
	"time"

	"github.com/google/uuid"
)

// CheckpointType classifies a checkpoint's origin.
type CheckpointType string

const (
	CheckpointGate           CheckpointType = "gate"
	CheckpointStoryStart     CheckpointType = "story_start"
	CheckpointStoryComplete  CheckpointType = "story_complete"
	CheckpointAgentHandoff   CheckpointType = "agent_handoff"
	CheckpointError          CheckpointType = "error"
	CheckpointManual         CheckpointType = "manual"
)

var validCheckpointTypes = map[CheckpointType]bool{
	CheckpointGate:          true,
	CheckpointStoryStart:    true,
	CheckpointStoryComplete: true,
	CheckpointAgentHandoff:  true,
	CheckpointError:         true,
	CheckpointManual:        true,
}

// IsValidCheckpointType reports whether t is one of the enumerated types.
func IsValidCheckpointType(t CheckpointType) bool {
	return validCheckpointTypes[t]
}

// Checkpoint is a durable snapshot of workflow state, taken at every state
// transition and gate boundary, enabling crash recovery within the
// performance contract in SPEC_FULL.md §4.4.
//
// Sequence is a per-session monotonic counter assigned by the repository at
// insert time; "latest checkpoint" is always defined by max(Sequence), never
// by comparing CreatedAt alone (two checkpoints may share a wall-clock tick).
type Checkpoint struct {
	ID                   uuid.UUID              `db:"id" json:"id"`
	SessionID            uuid.UUID              `db:"session_id" json:"session_id"`
	StoryID              string                 `db:"story_id" json:"story_id,omitempty"`
	Type                 CheckpointType         `db:"checkpoint_type" json:"checkpoint_type"`
	Name                 string                 `db:"checkpoint_name" json:"checkpoint_name"`
	State                map[string]interface{} `db:"-" json:"state"`
	Gate                 *int                   `db:"gate" json:"gate,omitempty"`
	AgentID              string                 `db:"agent_id" json:"agent_id,omitempty"`
	ParentCheckpointID   *uuid.UUID             `db:"parent_checkpoint_id" json:"parent_checkpoint_id,omitempty"`
	Sequence             int64                  `db:"sequence" json:"sequence"`
	CreatedAt            time.Time              `db:"created_at" json:"created_at"`
}

// NewCheckpoint constructs a checkpoint with a fresh ID. Sequence is left
// zero; the repository assigns it atomically at insert time.
func NewCheckpoint(sessionID uuid.UUID, storyID string, t CheckpointType, name string, state map[string]interface{}) *Checkpoint {
	if state == nil {
		state = map[string]interface{}{}
	}
	return &Checkpoint{
		ID:        uuid.New(),
		SessionID: sessionID,
		StoryID:   storyID,
		Type:      t,
		Name:      name,
		State:     state,
		CreatedAt: time.Now(),
	}
}
