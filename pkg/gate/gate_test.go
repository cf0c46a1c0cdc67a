package gate

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Gate sequencing", func() {
	Describe("standard 10-gate sequence", func() {
		It("names all ten gates in order", func() {
			Expect(Name(SequenceStandard, 0)).To(Equal("DESIGN_VALIDATED"))
			Expect(Name(SequenceStandard, 9)).To(Equal("DEPLOYED"))
			Expect(TerminalGate(SequenceStandard)).To(Equal(Gate(9)))
		})

		It("returns empty name for an out-of-range gate", func() {
			Expect(Name(SequenceStandard, 10)).To(BeEmpty())
			Expect(Name(SequenceStandard, -1)).To(BeEmpty())
		})
	})

	Describe("TDD-aware sequence", func() {
		It("inserts TESTS_RED after PLAN_APPROVED and REFACTOR after DEV_COMPLETE", func() {
			Expect(Name(SequenceTDD, 2)).To(Equal("PLAN_APPROVED"))
			Expect(Name(SequenceTDD, 3)).To(Equal("TESTS_RED"))
			Expect(Name(SequenceTDD, 4)).To(Equal("DEV_STARTED"))
			Expect(Name(SequenceTDD, 5)).To(Equal("DEV_COMPLETE"))
			Expect(Name(SequenceTDD, 6)).To(Equal("REFACTOR"))
			Expect(TerminalGate(SequenceTDD)).To(Equal(Gate(11)))
		})
	})

	Describe("CanPassGate", func() {
		It("requires every preceding gate to have passed", func() {
			passed := map[Gate]bool{0: true, 1: true}
			Expect(CanPassGate(SequenceStandard, 2, passed)).To(BeTrue())
			Expect(CanPassGate(SequenceStandard, 3, passed)).To(BeFalse())
		})

		It("allows gate 0 unconditionally", func() {
			Expect(CanPassGate(SequenceStandard, 0, map[Gate]bool{})).To(BeTrue())
		})
	})

	Describe("GetNextGate", func() {
		It("returns the lowest unpassed gate", func() {
			passed := map[Gate]bool{0: true, 1: true, 2: true}
			Expect(GetNextGate(SequenceStandard, passed)).To(Equal(Gate(3)))
		})

		It("returns -1 once every gate has passed", func() {
			passed := map[Gate]bool{}
			for g := Gate(0); g <= TerminalGate(SequenceStandard); g++ {
				passed[g] = true
			}
			Expect(GetNextGate(SequenceStandard, passed)).To(Equal(Gate(-1)))
		})
	})

	Describe("ValidateGateTransition", func() {
		It("accepts the strict n -> n+1 edge", func() {
			Expect(ValidateGateTransition(3, 4)).To(Succeed())
		})

		It("rejects skips and backward moves", func() {
			Expect(ValidateGateTransition(3, 5)).To(HaveOccurred())
			Expect(ValidateGateTransition(3, 2)).To(HaveOccurred())
			Expect(ValidateGateTransition(3, 3)).To(HaveOccurred())
		})
	})

	Describe("GetMissingPrerequisites", func() {
		It("lists every gate below n that hasn't passed", func() {
			passed := map[Gate]bool{0: true, 2: true}
			Expect(GetMissingPrerequisites(4, passed)).To(Equal([]Gate{1, 3}))
		})
	})
})
