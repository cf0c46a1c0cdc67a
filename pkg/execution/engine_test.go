package execution

import (
	"context"

	"github.com/google/uuid"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/wavehq/orchestrator/pkg/domain"
)

var _ = Describe("Engine", func() {
	var (
		stories     *fakeStoryRepo
		checkpoints *fakeCheckpointRepo
		engine      *Engine
		sessionID   uuid.UUID
		ctx         = context.Background()
	)

	BeforeEach(func() {
		stories = newFakeStoryRepo()
		checkpoints = newFakeCheckpointRepo()
		engine = NewEngine(stories, checkpoints)
		sessionID = uuid.New()
	})

	Describe("StartExecution", func() {
		It("creates a story at gate 0 and writes a story_start checkpoint", func() {
			id, err := engine.StartExecution(ctx, sessionID, "AUTH-001", "Login flow", "auth", "auth-agent")
			Expect(err).ToNot(HaveOccurred())

			story, err := stories.GetByID(ctx, id)
			Expect(err).ToNot(HaveOccurred())
			Expect(story.Status).To(Equal(domain.StoryInProgress))
			Expect(story.CurrentGate).To(Equal(0))

			cps := checkpoints.all(sessionID, "AUTH-001")
			Expect(cps).To(HaveLen(1))
			Expect(cps[0].Type).To(Equal(domain.CheckpointStoryStart))
		})

		It("fails on a duplicate (session, story_id) pair", func() {
			_, err := engine.StartExecution(ctx, sessionID, "AUTH-001", "t", "auth", "a")
			Expect(err).ToNot(HaveOccurred())

			_, err = engine.StartExecution(ctx, sessionID, "AUTH-001", "t", "auth", "a")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Happy-path story: gates 0..9 all passed", func() {
		It("ends complete at gate 9 with 10 checkpoints", func() {
			id, err := engine.StartExecution(ctx, sessionID, "AUTH-001", "t", "auth", "a")
			Expect(err).ToNot(HaveOccurred())

			for g := 0; g <= 9; g++ {
				err := engine.ExecuteGate(ctx, id, GateResult{Gate: g, Status: GatePassed, ACPassed: 1, ACTotal: 1})
				Expect(err).ToNot(HaveOccurred())
			}

			state, err := engine.GetCurrentState(ctx, id)
			Expect(err).ToNot(HaveOccurred())
			Expect(state.Status).To(Equal(domain.StoryComplete))
			Expect(state.CurrentGate).To(Equal(10))

			Expect(checkpoints.all(sessionID, "AUTH-001")).To(HaveLen(11)) // story_start + 10 gate checkpoints
		})
	})

	Describe("Retry escalation", func() {
		It("keeps retrying below max_retries and escalates to failed at the ceiling", func() {
			id, err := engine.StartExecution(ctx, sessionID, "AUTH-001", "t", "auth", "a")
			Expect(err).ToNot(HaveOccurred())

			for i := 0; i < DefaultMaxRetries-1; i++ {
				err := engine.ExecuteGate(ctx, id, GateResult{Gate: 5, Status: GateFailed, Error: "qa failed"})
				Expect(err).ToNot(HaveOccurred())
				state, err := engine.GetCurrentState(ctx, id)
				Expect(err).ToNot(HaveOccurred())
				Expect(state.Status).To(Equal(domain.StoryInProgress))
			}

			err = engine.ExecuteGate(ctx, id, GateResult{Gate: 5, Status: GateFailed, Error: "qa failed"})
			Expect(err).ToNot(HaveOccurred())

			state, err := engine.GetCurrentState(ctx, id)
			Expect(err).ToNot(HaveOccurred())
			Expect(state.Status).To(Equal(domain.StoryFailed))

			story, err := stories.GetByID(ctx, id)
			Expect(err).ToNot(HaveOccurred())
			Expect(story.ErrorMessage).To(ContainSubstring("qa failed"))
			Expect(story.RetryCount).To(Equal(DefaultMaxRetries))
		})
	})

	Describe("TransitionState", func() {
		It("rejects an edge outside the allowed graph", func() {
			id, err := engine.StartExecution(ctx, sessionID, "AUTH-001", "t", "auth", "a")
			Expect(err).ToNot(HaveOccurred())

			err = engine.TransitionState(ctx, id, domain.StoryPending, "bogus")
			Expect(err).To(HaveOccurred())
		})

		It("records the transition reason and writes a checkpoint", func() {
			id, err := engine.StartExecution(ctx, sessionID, "AUTH-001", "t", "auth", "a")
			Expect(err).ToNot(HaveOccurred())

			Expect(engine.TransitionState(ctx, id, domain.StoryReview, "ready for review")).To(Succeed())

			story, err := stories.GetByID(ctx, id)
			Expect(err).ToNot(HaveOccurred())
			Expect(story.Status).To(Equal(domain.StoryReview))
			Expect(story.Metadata["last_transition_reason"]).To(Equal("ready for review"))
		})
	})

	Describe("CompleteExecution", func() {
		It("stores artefacts and writes a story_complete checkpoint", func() {
			id, err := engine.StartExecution(ctx, sessionID, "AUTH-001", "t", "auth", "a")
			Expect(err).ToNot(HaveOccurred())

			err = engine.CompleteExecution(ctx, id, []string{"a.go"}, []string{"b.go"}, "feature/auth-001", "abc123", "https://pr/1", true, 0.92)
			Expect(err).ToNot(HaveOccurred())

			story, err := stories.GetByID(ctx, id)
			Expect(err).ToNot(HaveOccurred())
			Expect(story.Status).To(Equal(domain.StoryComplete))
			Expect(story.PRURL).To(Equal("https://pr/1"))
			Expect(*story.TestsPassing).To(BeTrue())

			cps := checkpoints.all(sessionID, "AUTH-001")
			Expect(cps[len(cps)-1].Type).To(Equal(domain.CheckpointStoryComplete))
		})
	})
})
