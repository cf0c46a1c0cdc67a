package adaptive

import (
	apperrors "github.com/wavehq/orchestrator/internal/errors"
)

// WorkflowStatus is the subset of pipeline state the human-loop handshake
// reads and writes.
type WorkflowStatus string

const (
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowPaused    WorkflowStatus = "paused"
	WorkflowCancelled WorkflowStatus = "cancelled"
)

// EscalationContext is handed to a human reviewer when a story escalates.
type EscalationContext struct {
	RunID             string
	Reason            string
	QAFeedback        string
	RetryCount        int
	SafetyViolations  []string
	CurrentTask       string
	CurrentAgent      string
}

// HumanDecision is what a reviewer submits in response to an escalation.
type HumanDecision struct {
	Approved bool
	Feedback string
}

// PipelineState is the mutable state the human-loop handshake reads and
// writes; callers embed this alongside their own story/session state.
type PipelineState struct {
	NeedsHuman bool
	Status     WorkflowStatus
}

// BuildEscalation constructs the escalation context and flips the
// pipeline into the paused, needs-human state.
func BuildEscalation(state *PipelineState, ctx EscalationContext) EscalationContext {
	state.NeedsHuman = true
	state.Status = WorkflowPaused
	return ctx
}

// ResumeWorkflow validates decision against state and returns the state
// update to apply; a workflow may only be resumed when it is paused and
// awaiting a human.
func ResumeWorkflow(state *PipelineState, decision HumanDecision) (PipelineState, error) {
	if !(state.Status == WorkflowPaused && state.NeedsHuman) {
		return PipelineState{}, apperrors.NewValidationError("workflow is not awaiting a human decision")
	}

	next := PipelineState{NeedsHuman: false}
	if decision.Approved {
		next.Status = WorkflowRunning
	} else {
		next.Status = WorkflowCancelled
	}
	return next, nil
}
