package adaptive

import "fmt"

// ReviewerRole identifies one of the three consensus reviewers.
type ReviewerRole string

const (
	ReviewerQA           ReviewerRole = "QA"
	ReviewerSecurity     ReviewerRole = "Security"
	ReviewerArchitecture ReviewerRole = "Architecture"
)

// ReviewResult is one reviewer's verdict.
type ReviewResult struct {
	Reviewer ReviewerRole
	Approved bool
	Score    float64
	Feedback string
}

// ConsensusOutcome is the consensus aggregator's verdict.
type ConsensusOutcome string

const (
	ConsensusApproved    ConsensusOutcome = "approved"
	ConsensusHumanReview ConsensusOutcome = "human_review"
	ConsensusRejected    ConsensusOutcome = "rejected"
)

// ConsensusResult carries the outcome and, for rejections, the reason.
type ConsensusResult struct {
	Outcome ConsensusOutcome
	Reason  string
}

const consensusScoreThreshold = 0.8

// Aggregate implements the three-reviewer consensus rule from
// SPEC_FULL.md §4.9.
func Aggregate(reviews []ReviewResult) ConsensusResult {
	for _, r := range reviews {
		if r.Score < 0.5 {
			return ConsensusResult{Outcome: ConsensusHumanReview}
		}
	}

	allApproved := true
	var total float64
	var rejecters []string
	for _, r := range reviews {
		total += r.Score
		if !r.Approved {
			allApproved = false
			rejecters = append(rejecters, string(r.Reviewer))
		}
	}
	avg := total / float64(len(reviews))

	if allApproved && avg >= consensusScoreThreshold {
		return ConsensusResult{Outcome: ConsensusApproved}
	}
	if !allApproved {
		return ConsensusResult{Outcome: ConsensusRejected, Reason: fmt.Sprintf("Rejected by: %v", rejecters)}
	}
	return ConsensusResult{Outcome: ConsensusRejected, Reason: fmt.Sprintf("Average score %.2f below threshold %.1f", avg, consensusScoreThreshold)}
}

// RouteConsensus maps a consensus outcome to the next pipeline action.
func RouteConsensus(outcome ConsensusOutcome) string {
	switch outcome {
	case ConsensusApproved:
		return "merge"
	case ConsensusHumanReview:
		return "escalate_human"
	default:
		return "failed"
	}
}
