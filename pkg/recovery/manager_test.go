package recovery

import (
	"context"
	"time"

	"github.com/google/uuid"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/wavehq/orchestrator/pkg/domain"
)

var _ = Describe("Manager", func() {
	var (
		stories     *fakeStoryRepo
		checkpoints *fakeCheckpointRepo
		mgr         *Manager
		sessionID   uuid.UUID
		ctx         = context.Background()
	)

	BeforeEach(func() {
		stories = newFakeStoryRepo()
		checkpoints = newFakeCheckpointRepo()
		mgr = NewManager(stories, checkpoints)
		sessionID = uuid.New()
	})

	seedCrashedStory := func() *domain.StoryExecution {
		story := domain.NewStoryExecution(sessionID, "AUTH-001", "t", "auth", "a")
		story.Status = domain.StoryInProgress
		story.CurrentGate = 4
		stories.put(story)

		for g := 0; g < 4; g++ {
			gate := g
			cp := domain.NewCheckpoint(sessionID, "AUTH-001", domain.CheckpointGate, "gate passed", nil)
			cp.Gate = &gate
			Expect(checkpoints.Create(ctx, cp)).To(Succeed())
		}

		story.Status = domain.StoryFailed
		story.ErrorMessage = "simulated crash"
		stories.put(story)
		errCp := domain.NewCheckpoint(sessionID, "AUTH-001", domain.CheckpointError, "crashed", nil)
		Expect(checkpoints.Create(ctx, errCp)).To(Succeed())

		return story
	}

	Describe("crash recovery (end-to-end scenario 4)", func() {
		It("resumes from the gate-3 checkpoint within the performance contract", func() {
			seedCrashedStory()

			start := time.Now()
			Expect(mgr.RecoverStory(ctx, sessionID, "AUTH-001", ResumeFromLast, nil)).To(Succeed())
			Expect(time.Since(start)).To(BeNumerically("<", recoveryDeadline))

			story, err := stories.GetBySessionAndStoryID(ctx, sessionID, "AUTH-001")
			Expect(err).ToNot(HaveOccurred())
			Expect(story.Status).To(Equal(domain.StoryInProgress))
			Expect(story.CurrentGate).To(Equal(4)) // unchanged
		})
	})

	Describe("CanRecover", func() {
		It("is false for a nonexistent story", func() {
			ok, err := mgr.CanRecover(ctx, sessionID, "NOPE-001")
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("is false once a story is complete or cancelled", func() {
			story := domain.NewStoryExecution(sessionID, "AUTH-002", "t", "auth", "a")
			story.Status = domain.StoryComplete
			stories.put(story)

			ok, err := mgr.CanRecover(ctx, sessionID, "AUTH-002")
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("RESUME_FROM_GATE", func() {
		It("fails when no checkpoint exists for the target gate", func() {
			seedCrashedStory()
			target := 7
			err := mgr.RecoverStory(ctx, sessionID, "AUTH-001", ResumeFromGate, &target)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("No checkpoint found"))
		})

		It("restores state at the requested gate", func() {
			seedCrashedStory()
			target := 2
			Expect(mgr.RecoverStory(ctx, sessionID, "AUTH-001", ResumeFromGate, &target)).To(Succeed())

			story, err := stories.GetBySessionAndStoryID(ctx, sessionID, "AUTH-001")
			Expect(err).ToNot(HaveOccurred())
			Expect(story.CurrentGate).To(Equal(2))
			Expect(story.Status).To(Equal(domain.StoryInProgress))
		})
	})

	Describe("RESTART", func() {
		It("resets to pending at gate 0 with retry_count cleared", func() {
			story := seedCrashedStory()
			story.RetryCount = 2
			stories.put(story)

			Expect(mgr.RecoverStory(ctx, sessionID, "AUTH-001", Restart, nil)).To(Succeed())

			got, err := stories.GetBySessionAndStoryID(ctx, sessionID, "AUTH-001")
			Expect(err).ToNot(HaveOccurred())
			Expect(got.Status).To(Equal(domain.StoryPending))
			Expect(got.CurrentGate).To(Equal(0))
			Expect(got.RetryCount).To(Equal(0))
			Expect(got.StartedAt).To(BeNil())
		})
	})

	Describe("SKIP", func() {
		It("cancels the story", func() {
			seedCrashedStory()
			Expect(mgr.RecoverStory(ctx, sessionID, "AUTH-001", Skip, nil)).To(Succeed())

			story, err := stories.GetBySessionAndStoryID(ctx, sessionID, "AUTH-001")
			Expect(err).ToNot(HaveOccurred())
			Expect(story.Status).To(Equal(domain.StoryCancelled))
		})
	})

	Describe("idempotence (testable property 8)", func() {
		It("produces the same final state whether recovered once or twice", func() {
			seedCrashedStory()
			Expect(mgr.RecoverStory(ctx, sessionID, "AUTH-001", ResumeFromLast, nil)).To(Succeed())
			first, _ := stories.GetBySessionAndStoryID(ctx, sessionID, "AUTH-001")

			Expect(mgr.RecoverStory(ctx, sessionID, "AUTH-001", ResumeFromLast, nil)).To(Succeed())
			second, _ := stories.GetBySessionAndStoryID(ctx, sessionID, "AUTH-001")

			Expect(second.Status).To(Equal(first.Status))
			Expect(second.CurrentGate).To(Equal(first.CurrentGate))
		})
	})

	Describe("FindRecoveryPoints", func() {
		It("marks a trailing error checkpoint as not resumable", func() {
			seedCrashedStory()
			points, err := mgr.FindRecoveryPoints(ctx, sessionID, "AUTH-001")
			Expect(err).ToNot(HaveOccurred())
			Expect(points[len(points)-1].CanResume).To(BeFalse())
			Expect(points[len(points)-1].Checkpoint.Type).To(Equal(domain.CheckpointError))
		})
	})

	Describe("RecoverSession", func() {
		It("recovers every non-terminal story and tolerates individual failures", func() {
			seedCrashedStory()
			done := domain.NewStoryExecution(sessionID, "AUTH-002", "t", "auth", "a")
			done.Status = domain.StoryComplete
			stories.put(done)

			result, err := mgr.RecoverSession(ctx, sessionID, ResumeFromLast)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Total).To(Equal(2))
			Expect(result.Recovered).To(ConsistOf("AUTH-001"))
			Expect(result.Failed).To(BeEmpty())
		})
	})
})
