package rlm_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/wavehq/orchestrator/pkg/rlm"
)

var _ = Describe("Cache", func() {
	It("evicts the least-recently-used unpinned entry once over budget", func() {
		c := rlm.NewCache(40) // ~40 tokens ~= 160 chars

		c.Put("a.go", strings.Repeat("x", 80), false) // ~20 tokens
		c.Put("b.go", strings.Repeat("y", 80), false) // ~20 tokens, total ~40, at budget

		// Touch "a" so "b" becomes the LRU entry.
		_, _ = c.Get("a.go")

		c.Put("c.go", strings.Repeat("z", 80), false) // pushes over budget

		_, aOK := c.Get("a.go")
		_, bOK := c.Get("b.go")
		_, cOK := c.Get("c.go")
		Expect(aOK).To(BeTrue())
		Expect(bOK).To(BeFalse(), "b.go was least-recently-used and should have been evicted")
		Expect(cOK).To(BeTrue())
	})

	It("never evicts a pinned entry even when over budget", func() {
		c := rlm.NewCache(10)
		c.Put("domain.go", strings.Repeat("x", 80), true)
		c.Put("other.go", strings.Repeat("y", 80), false)

		_, pinnedOK := c.Get("domain.go")
		Expect(pinnedOK).To(BeTrue())
	})

	It("stops evicting once only pinned entries remain", func() {
		c := rlm.NewCache(1)
		c.Put("a.go", "pinned-content", true)
		c.Put("b.go", "also-pinned", true)
		Expect(c.Len()).To(Equal(2))
	})

	It("reports a snapshot of every cached path to content", func() {
		c := rlm.NewCache(rlm.DefaultMaxTokens)
		c.Put("a.go", "package a", true)
		c.Put("b.go", "package b", false)

		snap := c.Snapshot()
		Expect(snap).To(HaveKeyWithValue("a.go", "package a"))
		Expect(snap).To(HaveKeyWithValue("b.go", "package b"))
	})
})
