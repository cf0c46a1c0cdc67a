package worktree

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/wavehq/orchestrator/pkg/domain"
)

var _ = Describe("BoundaryEnforcer", func() {
	var enforcer *BoundaryEnforcer

	BeforeEach(func() {
		enforcer = NewBoundaryEnforcer([]domain.DomainRule{
			{ID: domain.SharedDomainID, Name: "shared", FilePatterns: []string{"README.md", "go.mod"}},
			{ID: "auth", Name: "Auth", FilePatterns: []string{"internal/auth/*.go"}},
			{ID: "frontend", Name: "Frontend", FilePatterns: []string{"web/**"}},
		})
	})

	It("always allows shared paths regardless of requesting domain", func() {
		d := enforcer.CheckAccess("frontend", "README.md")
		Expect(d.Allowed).To(BeTrue())
		Expect(d.OwnerDomain).To(Equal(domain.SharedDomainID))
	})

	It("allows a domain to touch its own files", func() {
		d := enforcer.CheckAccess("auth", "internal/auth/login.go")
		Expect(d.Allowed).To(BeTrue())
		Expect(d.OwnerDomain).To(Equal("auth"))
	})

	It("denies and logs a cross-domain write, with the spec's exact reason wording", func() {
		d := enforcer.CheckAccess("auth", "web/src/App.tsx")
		Expect(d.Allowed).To(BeFalse())
		Expect(d.OwnerDomain).To(Equal("frontend"))
		Expect(d.Reason).To(Equal("Agent 'auth' cannot modify 'web/src/App.tsx' — owned by domain 'frontend'"))
		Expect(enforcer.Violations()).To(HaveLen(1))
		Expect(enforcer.Violations()[0].AgentDomain).To(Equal("auth"))
	})

	It("denies access for an agent domain absent from the rule set", func() {
		d := enforcer.CheckAccess("ghost", "README.md")
		Expect(d.Allowed).To(BeFalse())
		Expect(d.Reason).To(Equal("Unknown agent domain"))
	})

	It("denies a file that matches no domain's patterns", func() {
		d := enforcer.CheckAccess("auth", "docs/random.txt")
		Expect(d.Allowed).To(BeFalse())
		Expect(d.Reason).To(Equal("File is not in any defined domain"))
	})

	It("honors a granted, unexpired override even outside the domain's patterns", func() {
		enforcer.GrantOverride("auth", "frontend", time.Hour)
		d := enforcer.CheckAccess("auth", "web/src/App.tsx")
		Expect(d.Allowed).To(BeTrue())
		Expect(d.Override).To(BeTrue())
		Expect(enforcer.OverrideLog()).To(HaveLen(1))
	})

	It("denies once a granted override has expired", func() {
		enforcer.GrantOverride("auth", "frontend", -time.Second)
		d := enforcer.CheckAccess("auth", "web/src/App.tsx")
		Expect(d.Allowed).To(BeFalse())
	})

	It("denies again after RevokeOverride", func() {
		enforcer.GrantOverride("auth", "frontend", time.Hour)
		enforcer.RevokeOverride("auth", "frontend")
		d := enforcer.CheckAccess("auth", "web/src/App.tsx")
		Expect(d.Allowed).To(BeFalse())
	})

	It("matches glob-style double-star prefixes", func() {
		d := enforcer.CheckAccess("frontend", "web/src/components/Button.tsx")
		Expect(d.Allowed).To(BeTrue())
	})
})
