package rlm_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/wavehq/orchestrator/pkg/rlm"
)

var _ = Describe("Manager", func() {
	var (
		ctx    context.Context
		source *fakeFileSource
		mgr    *rlm.Manager
	)

	BeforeEach(func() {
		ctx = context.Background()
		source = newFakeFileSource(map[string]string{
			"internal/auth/login.go":  "package auth",
			"internal/auth/token.go":  "package auth",
			"web/src/App.tsx":         "export default App",
			"internal/booking/api.go": "package booking",
		})
		mgr = rlm.NewManager(source, rlm.DefaultMaxTokens)
	})

	It("pins every file matching the domain's patterns on LoadDomainContext", func() {
		Expect(mgr.LoadDomainContext(ctx, []string{"internal/auth/*.go"})).To(Succeed())

		ctxMap := mgr.GetContext()
		Expect(ctxMap).To(HaveKey("internal/auth/login.go"))
		Expect(ctxMap).To(HaveKey("internal/auth/token.go"))
		Expect(ctxMap).NotTo(HaveKey("web/src/App.tsx"))
		Expect(ctxMap).NotTo(HaveKey("internal/booking/api.go"))
	})

	It("loads every file a story declares as a read dependency", func() {
		err := mgr.LoadStoryContext(ctx, rlm.StoryContext{
			StoryID:   "AUTH-001",
			ReadFiles: []string{"internal/booking/api.go"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(mgr.GetContext()).To(HaveKey("internal/booking/api.go"))
	})

	It("retrieves and caches a file on demand", func() {
		content, err := mgr.Retrieve(ctx, "web/src/App.tsx")
		Expect(err).NotTo(HaveOccurred())
		Expect(content).To(Equal("export default App"))
		Expect(mgr.GetContext()).To(HaveKey("web/src/App.tsx"))
	})

	It("propagates a read error from Retrieve", func() {
		_, err := mgr.Retrieve(ctx, "does/not/exist.go")
		Expect(err).To(HaveOccurred())
	})
})
