// Package gate implements the 10-gate (or TDD-aware 9-gate-plus-two) launch
// sequence every story is driven through, independent of the story state
// machine that drives it (pkg/execution).
package gate

import "fmt"

// Gate is an ordered integer 0..9 (standard sequence) bound to a human name.
type Gate int

// Sequence selects between the canonical ordering and the TDD-aware
// variant. Exactly one sequence applies per session; the two are never
// mixed (SPEC_FULL.md §3).
type Sequence string

const (
	SequenceStandard Sequence = "standard"
	SequenceTDD      Sequence = "tdd"
)

// standardNames is the canonical 10-gate ordering.
var standardNames = []string{
	"DESIGN_VALIDATED",
	"STORY_ASSIGNED",
	"PLAN_APPROVED",
	"DEV_STARTED",
	"DEV_COMPLETE",
	"QA_PASSED",
	"SAFETY_CLEARED",
	"REVIEW_APPROVED",
	"MERGED",
	"DEPLOYED",
}

// tddNames inserts TESTS_RED after PLAN_APPROVED and REFACTOR after
// DEV_COMPLETE, for a total of 12 gates (9 original + 2 inserted + dev
// started/complete already counted).
var tddNames = []string{
	"DESIGN_VALIDATED",
	"STORY_ASSIGNED",
	"PLAN_APPROVED",
	"TESTS_RED",
	"DEV_STARTED",
	"DEV_COMPLETE",
	"REFACTOR",
	"QA_PASSED",
	"SAFETY_CLEARED",
	"REVIEW_APPROVED",
	"MERGED",
	"DEPLOYED",
}

// namesFor returns the ordered gate-name list for seq, defaulting to the
// standard sequence for an unrecognized value.
func namesFor(seq Sequence) []string {
	if seq == SequenceTDD {
		return tddNames
	}
	return standardNames
}

// Name returns the human name of gate n under sequence seq, or "" if n is
// out of range.
func Name(seq Sequence, n Gate) string {
	names := namesFor(seq)
	if int(n) < 0 || int(n) >= len(names) {
		return ""
	}
	return names[n]
}

// TerminalGate returns the final gate index for seq.
func TerminalGate(seq Sequence) Gate {
	return Gate(len(namesFor(seq)) - 1)
}

// CanPassGate reports whether gate n may be passed given the set of
// already-passed gates: every gate strictly less than n must be present.
func CanPassGate(seq Sequence, n Gate, passedGates map[Gate]bool) bool {
	for g := Gate(0); g < n; g++ {
		if !passedGates[g] {
			return false
		}
	}
	return true
}

// GetNextGate returns the lowest-numbered gate not yet in passedGates, or
// -1 if every gate in the sequence has been passed.
func GetNextGate(seq Sequence, passedGates map[Gate]bool) Gate {
	terminal := TerminalGate(seq)
	for g := Gate(0); g <= terminal; g++ {
		if !passedGates[g] {
			return g
		}
	}
	return -1
}

// ValidateGateTransition accepts only the strict n -> n+1 edge.
func ValidateGateTransition(from, to Gate) error {
	if to != from+1 {
		return fmt.Errorf("invalid gate transition: %d -> %d (gates only advance by exactly one)", from, to)
	}
	return nil
}

// GetMissingPrerequisites returns every gate below n not present in
// passedGates, in ascending order.
func GetMissingPrerequisites(n Gate, passedGates map[Gate]bool) []Gate {
	var missing []Gate
	for g := Gate(0); g < n; g++ {
		if !passedGates[g] {
			missing = append(missing, g)
		}
	}
	return missing
}
