package gate

import (
	"sync"
	"time"
)

// Transition records one gate's pass/fail event in a session's audit trail.
type Transition struct {
	Gate      Gate      `json:"gate"`
	Name      string    `json:"name"`
	Passed    bool      `json:"passed"`
	PassedBy  string    `json:"passed_by"`
	Timestamp time.Time `json:"timestamp"`
}

// Progress tracks per-session gate history independent of the story state
// machine: a lightweight audit artefact used by both the execution engine
// and any external auditor (SPEC_FULL.md §4.3).
type Progress struct {
	mu       sync.RWMutex
	sequence Sequence
	history  map[string][]Transition // storyID -> transitions in order
}

// NewProgress constructs an empty tracker for the given gate sequence.
func NewProgress(seq Sequence) *Progress {
	return &Progress{sequence: seq, history: map[string][]Transition{}}
}

// MarkGatePassed appends a passed transition for storyID.
func (p *Progress) MarkGatePassed(storyID string, g Gate, passedBy string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history[storyID] = append(p.history[storyID], Transition{
		Gate: g, Name: Name(p.sequence, g), Passed: true,
		PassedBy: passedBy, Timestamp: time.Now(),
	})
}

// MarkGateFailed appends a failed transition for storyID.
func (p *Progress) MarkGateFailed(storyID string, g Gate, passedBy string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history[storyID] = append(p.history[storyID], Transition{
		Gate: g, Name: Name(p.sequence, g), Passed: false,
		PassedBy: passedBy, Timestamp: time.Now(),
	})
}

// History returns a copy of storyID's transition list, in the order they
// were recorded.
func (p *Progress) History(storyID string) []Transition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	src := p.history[storyID]
	out := make([]Transition, len(src))
	copy(out, src)
	return out
}

// PassedGates replays storyID's history into the set of currently-passed
// gates: a later failed transition for the same gate does not un-pass it,
// matching the gate system's append-only audit semantics.
func (p *Progress) PassedGates(storyID string) map[Gate]bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	passed := map[Gate]bool{}
	for _, t := range p.history[storyID] {
		if t.Passed {
			passed[t.Gate] = true
		}
	}
	return passed
}
