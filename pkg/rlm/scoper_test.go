package rlm_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/wavehq/orchestrator/pkg/rlm"
)

var _ = Describe("DomainScoper", func() {
	// auth.go -> session.go -> token.go -> crypto.go
	// booking.go -> session.go (shared)
	graph := rlm.ImportGraph{
		"auth.go":    {"session.go"},
		"session.go": {"token.go"},
		"token.go":   {"crypto.go"},
		"booking.go": {"session.go"},
	}

	It("scores domain-native files at 1.0 and decays relevance with import depth", func() {
		scoper := rlm.NewDomainScoper()
		shared := rlm.ComputeSharedFiles(map[string][]string{
			"auth":    {"auth.go"},
			"booking": {"booking.go"},
		}, graph)

		scoped := scoper.Scope("auth", []string{"auth.go"}, graph, shared)
		byPath := indexByPath(scoped)

		Expect(byPath["auth.go"].Relevance).To(Equal(1.0))
		Expect(byPath["auth.go"].IsDomainNative).To(BeTrue())

		Expect(byPath["session.go"].Relevance).To(BeNumerically("~", 0.6, 0.001))
		Expect(byPath["session.go"].ImportDepth).To(Equal(1))

		Expect(byPath["token.go"].Relevance).To(BeNumerically("~", 0.5, 0.001))
		Expect(byPath["crypto.go"].Relevance).To(BeNumerically("~", 0.4, 0.001))
	})

	It("flags a file imported by two or more domains as shared", func() {
		shared := rlm.ComputeSharedFiles(map[string][]string{
			"auth":    {"auth.go"},
			"booking": {"booking.go"},
		}, graph)
		Expect(shared).To(HaveKey("session.go"))
		Expect(shared).NotTo(HaveKey("crypto.go"))
	})

	It("caches a domain's scope until Invalidate is called", func() {
		scoper := rlm.NewDomainScoper()
		first := scoper.Scope("auth", []string{"auth.go"}, graph, nil)
		second := scoper.Scope("auth", []string{"auth.go", "unrelated.go"}, graph, nil)
		Expect(second).To(Equal(first), "second call should return the cached result, ignoring new args")

		scoper.Invalidate("auth")
		third := scoper.Scope("auth", []string{"auth.go", "unrelated.go"}, graph, nil)
		Expect(third).NotTo(Equal(first))
	})
})

func indexByPath(files []rlm.ScopedFile) map[string]rlm.ScopedFile {
	out := make(map[string]rlm.ScopedFile, len(files))
	for _, f := range files {
		out[f.Path] = f
	}
	return out
}
