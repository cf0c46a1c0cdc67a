package llm_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/wavehq/orchestrator/pkg/llm"
)

var _ = Describe("BreakerClient", func() {
	It("passes a successful completion through unchanged", func() {
		inner := &fakeClient{}
		client := llm.NewBreakerClient("test-provider", inner)

		resp, err := client.Complete(context.Background(), llm.Request{Prompt: "hello"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Text).To(Equal("ok"))
		Expect(inner.calls).To(Equal(1))
		Expect(inner.lastReq.Prompt).To(Equal("hello"))
	})

	It("surfaces the inner error without tripping on a single failure", func() {
		inner := &fakeClient{fail: true}
		client := llm.NewBreakerClient("test-provider-2", inner)

		_, err := client.Complete(context.Background(), llm.Request{Prompt: "hello"})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("simulated provider failure"))
	})

	It("fails fast once consecutive failures trip the breaker", func() {
		inner := &fakeClient{fail: true}
		client := llm.NewBreakerClient("test-provider-3", inner)

		for i := 0; i < 5; i++ {
			_, _ = client.Complete(context.Background(), llm.Request{})
		}
		callsBeforeOpen := inner.calls

		_, err := client.Complete(context.Background(), llm.Request{})
		Expect(err).To(HaveOccurred())
		Expect(inner.calls).To(Equal(callsBeforeOpen), "breaker should have failed fast without calling inner again")
	})
})
