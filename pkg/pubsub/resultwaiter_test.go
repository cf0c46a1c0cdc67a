package pubsub_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/wavehq/orchestrator/pkg/domain"
	"github.com/wavehq/orchestrator/pkg/pubsub"
)

var _ = Describe("ResultWaiter", func() {
	It("delivers a result notified after Wait has started blocking", func() {
		w := pubsub.NewResultWaiter()
		done := make(chan *domain.TaskResult, 1)

		go func() {
			done <- w.Wait(context.Background(), "task-1", 2*time.Second)
		}()

		time.Sleep(20 * time.Millisecond)
		w.Notify("task-1", &domain.TaskResult{TaskID: "task-1", Success: true})

		var result *domain.TaskResult
		Eventually(done, 2*time.Second).Should(Receive(&result))
		Expect(result.Success).To(BeTrue())
	})

	It("returns a synthetic timeout result when never notified", func() {
		w := pubsub.NewResultWaiter()
		result := w.Wait(context.Background(), "task-2", 50*time.Millisecond)
		Expect(result.Status).To(Equal(domain.TaskTimeout))
	})

	It("drops a notification for a task nobody is waiting on", func() {
		w := pubsub.NewResultWaiter()
		Expect(func() { w.Notify("ghost", &domain.TaskResult{}) }).NotTo(Panic())
	})

	It("reuses the existing channel when Expect is called again before resolution", func() {
		w := pubsub.NewResultWaiter()
		w.Expect("task-3")
		w.Expect("task-3") // must not replace the first registration

		done := make(chan *domain.TaskResult, 1)
		go func() { done <- w.Wait(context.Background(), "task-3", 2*time.Second) }()

		time.Sleep(20 * time.Millisecond)
		w.Notify("task-3", &domain.TaskResult{TaskID: "task-3", Success: true})

		var result *domain.TaskResult
		Eventually(done, 2*time.Second).Should(Receive(&result))
		Expect(result.Success).To(BeTrue())
	})
})
