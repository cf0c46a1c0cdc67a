package llm_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/wavehq/orchestrator/pkg/llm"
)

var _ = Describe("NewClient", func() {
	It("rejects an unsupported provider", func() {
		_, err := llm.NewClient(context.Background(), llm.ProviderConfig{Provider: "carrier-pigeon"})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("unsupported LLM provider"))
	})

	It("builds a breaker-wrapped anthropic client without making a network call", func() {
		client, err := llm.NewClient(context.Background(), llm.ProviderConfig{
			Provider: "anthropic", AnthropicAPIKey: "sk-ant-fake", Model: "claude-3-5-sonnet",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(client).NotTo(BeNil())
	})

	It("builds a breaker-wrapped openai-compatible client for xai without making a network call", func() {
		client, err := llm.NewClient(context.Background(), llm.ProviderConfig{
			Provider: "xai", XAIAPIKey: "fake-key", Model: "grok-beta",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(client).NotTo(BeNil())
	})
})
