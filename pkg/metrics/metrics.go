// Package metrics exposes the orchestrator's Prometheus collectors: gate
// throughput, story execution duration, retry/consensus/safety outcomes,
// budget alert transitions, worktree lifecycle counts, and queue depth.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gate_transitions_total",
		Help: "Total number of gate transitions by gate and result.",
	}, []string{"gate", "result"})

	StoryExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "story_execution_duration_seconds",
		Help:    "Duration of a story execution from start to terminal state, by domain.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"domain"})

	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retries_total",
		Help: "Total number of gate retries by domain and reason.",
	}, []string{"domain", "reason"})

	ConsensusOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consensus_outcomes_total",
		Help: "Total number of consensus aggregation outcomes.",
	}, []string{"outcome"})

	SafetyRecommendationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_recommendations_total",
		Help: "Total number of safety checker recommendations issued.",
	}, []string{"recommendation"})

	BudgetAlertTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "budget_alert_transitions_total",
		Help: "Total number of budget alert level transitions.",
	}, []string{"level"})

	WorktreeOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worktree_operations_total",
		Help: "Total number of worktree lifecycle operations (create, cleanup).",
	}, []string{"operation"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "queue_depth",
		Help: "Current number of pending tasks per domain queue.",
	}, []string{"domain"})

	PubSubDeadLettersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pubsub_dead_letters_total",
		Help: "Total number of pub/sub messages routed to the dead-letter stream.",
	})

	ConcurrentStoriesRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "concurrent_stories_running",
		Help: "Current number of story executions running in parallel.",
	})
)

func RecordGateTransition(gate, result string) {
	GateTransitionsTotal.WithLabelValues(gate, result).Inc()
}

func RecordStoryExecution(domain string, duration time.Duration) {
	StoryExecutionDuration.WithLabelValues(domain).Observe(duration.Seconds())
}

func RecordRetry(domain, reason string) {
	RetriesTotal.WithLabelValues(domain, reason).Inc()
}

func RecordConsensusOutcome(outcome string) {
	ConsensusOutcomesTotal.WithLabelValues(outcome).Inc()
}

func RecordSafetyRecommendation(recommendation string) {
	SafetyRecommendationsTotal.WithLabelValues(recommendation).Inc()
}

func RecordBudgetAlertTransition(level string) {
	BudgetAlertTransitionsTotal.WithLabelValues(level).Inc()
}

func RecordWorktreeOperation(operation string) {
	WorktreeOperationsTotal.WithLabelValues(operation).Inc()
}

func SetQueueDepth(domain string, depth float64) {
	QueueDepth.WithLabelValues(domain).Set(depth)
}

func RecordDeadLetter() {
	PubSubDeadLettersTotal.Inc()
}

func IncrementConcurrentStories() {
	ConcurrentStoriesRunning.Inc()
}

func DecrementConcurrentStories() {
	ConcurrentStoriesRunning.Dec()
}

// Timer measures elapsed wall-clock time and records it against the
// appropriate histogram when the caller knows what it was timing.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

func (t *Timer) RecordStoryExecution(domain string) {
	RecordStoryExecution(domain, t.Elapsed())
}

func (t *Timer) RecordGateTransition(gate, result string) {
	RecordGateTransition(gate, result)
}
