package parallel_test

import (
	"context"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/wavehq/orchestrator/pkg/parallel"
)

var _ = Describe("Executor", func() {
	var (
		ctx context.Context
		wm  *fakeWorktreeManager
	)

	BeforeEach(func() {
		ctx = context.Background()
		wm = newFakeWorktreeManager()
	})

	Describe("Plan", func() {
		It("batches up to max_parallel distinct domains and defers the rest", func() {
			executor := parallel.NewExecutor(wm, 4)
			stories := []parallel.StoryTask{
				{StoryID: "AUTH-001", Domain: "auth"},
				{StoryID: "AUTH-002", Domain: "auth"},
				{StoryID: "BOOK-001", Domain: "booking"},
				{StoryID: "PAY-001", Domain: "payment"},
			}
			plan := executor.Plan(stories, "run-1")
			Expect(plan.ParallelBatch).To(HaveLen(3))
			Expect(plan.Waiting).To(HaveLen(1))
			Expect(plan.Waiting[0].StoryID).To(Equal("AUTH-002"))
		})

		It("caps the batch at max_parallel even with all-distinct domains", func() {
			executor := parallel.NewExecutor(wm, 2)
			stories := []parallel.StoryTask{
				{StoryID: "A", Domain: "auth"},
				{StoryID: "B", Domain: "booking"},
				{StoryID: "C", Domain: "payment"},
			}
			plan := executor.Plan(stories, "run-1")
			Expect(plan.ParallelBatch).To(HaveLen(2))
			Expect(plan.Waiting).To(HaveLen(1))
		})

		It("returns all four distinct-domain stories in one batch at the default cap", func() {
			executor := parallel.NewExecutor(wm, 0) // falls back to default 4
			stories := []parallel.StoryTask{
				{StoryID: "A", Domain: "auth"},
				{StoryID: "B", Domain: "booking"},
				{StoryID: "C", Domain: "payment"},
				{StoryID: "D", Domain: "frontend"},
			}
			plan := executor.Plan(stories, "run-1")
			Expect(plan.ParallelBatch).To(HaveLen(4))
			Expect(plan.Waiting).To(BeEmpty())
		})
	})

	Describe("Execute", func() {
		successFn := func(ctx context.Context, task parallel.StoryTask, worktreePath string) (parallel.StoryResult, error) {
			return parallel.StoryResult{Success: true, TokensUsed: 100, FilesCreated: []string{"x.go"}}, nil
		}

		It("runs four distinct-domain stories in one batch, merges, and cleans up every worktree", func() {
			executor := parallel.NewExecutor(wm, 4)
			stories := []parallel.StoryTask{
				{StoryID: "AUTH-001", Domain: "auth"},
				{StoryID: "BOOK-001", Domain: "booking"},
				{StoryID: "PAY-001", Domain: "payment"},
				{StoryID: "FE-001", Domain: "frontend"},
			}
			results, err := executor.Execute(ctx, stories, successFn)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(4))
			for _, r := range results {
				Expect(r.Success).To(BeTrue())
				Expect(r.TokensUsed).To(Equal(100))
			}

			status := executor.GetStatus()
			Expect(status.Succeeded).To(Equal(4))
			Expect(status.Failed).To(Equal(0))
			Expect(status.TotalTokens).To(Equal(int64(400)))

			Expect(wm.mergedDomains).To(ConsistOf("auth", "booking", "payment", "frontend"))
			Expect(wm.cleanedUpRuns).To(HaveLen(1))
		})

		It("defers a same-domain conflict to a second batch", func() {
			executor := parallel.NewExecutor(wm, 4)
			stories := []parallel.StoryTask{
				{StoryID: "AUTH-A", Domain: "auth"},
				{StoryID: "AUTH-B", Domain: "auth"},
				{StoryID: "BOOK-001", Domain: "booking"},
				{StoryID: "PAY-001", Domain: "payment"},
			}
			results, err := executor.Execute(ctx, stories, successFn)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(4))
			Expect(wm.created).To(ConsistOf("auth", "booking", "payment", "auth"))
		})

		It("converts a worktree creation failure into a failed result without stopping the batch", func() {
			wm.failDomain = "payment"
			executor := parallel.NewExecutor(wm, 4)
			stories := []parallel.StoryTask{
				{StoryID: "AUTH-001", Domain: "auth"},
				{StoryID: "PAY-001", Domain: "payment"},
			}
			results, err := executor.Execute(ctx, stories, successFn)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))

			var payResult parallel.StoryResult
			for _, r := range results {
				if r.Domain == "payment" {
					payResult = r
				}
			}
			Expect(payResult.Success).To(BeFalse())
			Expect(payResult.Error).To(ContainSubstring("Failed to create worktree for payment"))
		})

		It("converts a panicking agent into a failed result rather than crashing the run", func() {
			executor := parallel.NewExecutor(wm, 4)
			panicFn := func(ctx context.Context, task parallel.StoryTask, worktreePath string) (parallel.StoryResult, error) {
				panic("agent exploded")
			}
			results, err := executor.Execute(ctx, []parallel.StoryTask{{StoryID: "X", Domain: "auth"}}, panicFn)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Success).To(BeFalse())
			Expect(results[0].Error).To(ContainSubstring("agent exploded"))
		})

		It("converts an agent error into a failed result", func() {
			executor := parallel.NewExecutor(wm, 4)
			errFn := func(ctx context.Context, task parallel.StoryTask, worktreePath string) (parallel.StoryResult, error) {
				return parallel.StoryResult{}, fmt.Errorf("qa validation failed")
			}
			results, err := executor.Execute(ctx, []parallel.StoryTask{{StoryID: "X", Domain: "auth"}}, errFn)
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].Success).To(BeFalse())
			Expect(results[0].Error).To(Equal("qa validation failed"))
		})

		It("skips the merge step entirely when every story fails", func() {
			executor := parallel.NewExecutor(wm, 4)
			errFn := func(ctx context.Context, task parallel.StoryTask, worktreePath string) (parallel.StoryResult, error) {
				return parallel.StoryResult{}, fmt.Errorf("boom")
			}
			_, err := executor.Execute(ctx, []parallel.StoryTask{{StoryID: "X", Domain: "auth"}}, errFn)
			Expect(err).NotTo(HaveOccurred())
			Expect(wm.mergedDomains).To(BeEmpty())
		})

		It("never runs two same-domain agents concurrently within a batch", func() {
			executor := parallel.NewExecutor(wm, 4)
			var mu sync.Mutex
			var concurrentAuth int
			var maxConcurrentAuth int
			blockingFn := func(ctx context.Context, task parallel.StoryTask, worktreePath string) (parallel.StoryResult, error) {
				if task.Domain == "auth" {
					mu.Lock()
					concurrentAuth++
					if concurrentAuth > maxConcurrentAuth {
						maxConcurrentAuth = concurrentAuth
					}
					mu.Unlock()
					defer func() {
						mu.Lock()
						concurrentAuth--
						mu.Unlock()
					}()
				}
				return parallel.StoryResult{Success: true}, nil
			}
			stories := []parallel.StoryTask{
				{StoryID: "AUTH-A", Domain: "auth"},
				{StoryID: "AUTH-B", Domain: "auth"},
			}
			_, err := executor.Execute(ctx, stories, blockingFn)
			Expect(err).NotTo(HaveOccurred())
			Expect(maxConcurrentAuth).To(Equal(1))
		})
	})
})
