package adaptive_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/wavehq/orchestrator/pkg/orchestration/adaptive"
)

var _ = Describe("Human-loop handshake", func() {
	It("pauses the pipeline and sets needs_human on escalation", func() {
		state := &adaptive.PipelineState{Status: adaptive.WorkflowRunning}
		adaptive.BuildEscalation(state, adaptive.EscalationContext{Reason: "safety score too low"})

		Expect(state.NeedsHuman).To(BeTrue())
		Expect(state.Status).To(Equal(adaptive.WorkflowPaused))
	})

	It("resumes to running on approval", func() {
		state := &adaptive.PipelineState{Status: adaptive.WorkflowPaused, NeedsHuman: true}
		next, err := adaptive.ResumeWorkflow(state, adaptive.HumanDecision{Approved: true})
		Expect(err).ToNot(HaveOccurred())
		Expect(next.Status).To(Equal(adaptive.WorkflowRunning))
		Expect(next.NeedsHuman).To(BeFalse())
	})

	It("cancels on rejection", func() {
		state := &adaptive.PipelineState{Status: adaptive.WorkflowPaused, NeedsHuman: true}
		next, err := adaptive.ResumeWorkflow(state, adaptive.HumanDecision{Approved: false})
		Expect(err).ToNot(HaveOccurred())
		Expect(next.Status).To(Equal(adaptive.WorkflowCancelled))
	})

	It("refuses to resume a workflow that isn't paused and awaiting a human", func() {
		state := &adaptive.PipelineState{Status: adaptive.WorkflowRunning, NeedsHuman: false}
		_, err := adaptive.ResumeWorkflow(state, adaptive.HumanDecision{Approved: true})
		Expect(err).To(HaveOccurred())
	})
})
