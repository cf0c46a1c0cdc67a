package domainconfig_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/wavehq/orchestrator/pkg/domain"
	"github.com/wavehq/orchestrator/pkg/domainconfig"
)

var _ = Describe("Load", func() {
	It("parses a wave-config.json domain list", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "wave-config.json")
		Expect(os.WriteFile(path, []byte(`{"domains":[{"id":"frontend","name":"Frontend","file_patterns":["web/**/*.tsx"]}]}`), 0o644)).To(Succeed())

		rules, err := domainconfig.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(rules).To(HaveLen(1))
		Expect(rules[0].ID).To(Equal("frontend"))
		Expect(rules[0].FilePatterns).To(ConsistOf("web/**/*.tsx"))
	})

	It("errors on a missing file", func() {
		_, err := domainconfig.Load("/nonexistent/wave-config.json")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Watch", func() {
	It("delivers an initial callback and reloads after a write", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "wave-config.json")
		Expect(os.WriteFile(path, []byte(`{"domains":[{"id":"frontend","name":"Frontend","file_patterns":["web/**"]}]}`), 0o644)).To(Succeed())

		updates := make(chan []domain.DomainRule, 4)
		w, err := domainconfig.Watch(path, zap.NewNop(), func(rules []domain.DomainRule) {
			updates <- rules
		})
		Expect(err).NotTo(HaveOccurred())
		defer w.Close()

		Eventually(updates, time.Second).Should(Receive(HaveLen(1)))

		Expect(os.WriteFile(path, []byte(`{"domains":[{"id":"frontend","name":"Frontend","file_patterns":["web/**"]},{"id":"backend","name":"Backend","file_patterns":["api/**"]}]}`), 0o644)).To(Succeed())

		Eventually(updates, 2*time.Second).Should(Receive(HaveLen(2)))
	})

	It("keeps the previous rules when a reload fails to parse", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "wave-config.json")
		Expect(os.WriteFile(path, []byte(`{"domains":[{"id":"frontend","name":"Frontend","file_patterns":["web/**"]}]}`), 0o644)).To(Succeed())

		updates := make(chan []domain.DomainRule, 4)
		w, err := domainconfig.Watch(path, zap.NewNop(), func(rules []domain.DomainRule) {
			updates <- rules
		})
		Expect(err).NotTo(HaveOccurred())
		defer w.Close()

		Eventually(updates, time.Second).Should(Receive(HaveLen(1)))

		Expect(os.WriteFile(path, []byte(`not json`), 0o644)).To(Succeed())

		Consistently(updates, 500*time.Millisecond).ShouldNot(Receive())
	})
})
