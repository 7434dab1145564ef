package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "guardbot"

var (
	BotActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "bot_actions_total",
		Help:      "Total number of bot actions",
	}, []string{"action"})

	Violations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "violations_total",
		Help:      "Total number of rule violations detected",
	}, []string{"rule"})

	DeletedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "deleted_messages_total",
		Help:      "Total number of deleted messages",
	}, []string{"reason"})

	RemediationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "remediation_failures_total",
		Help:      "Remediation steps that failed and were skipped",
	}, []string{"step"})

	GenAIAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "genai_attempts_total",
		Help:      "Generation attempts per credential and outcome",
	}, []string{"credential", "outcome"})

	UpdateProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "update_processing_duration_seconds",
		Help:      "Duration of update processing",
		Buckets:   prometheus.DefBuckets,
	}, []string{"type", "status"})

	PendingBans = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "pending_bans",
		Help:      "Number of temporary bans waiting for expiry",
	})
	BannedTerms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "banned_terms",
		Help:      "Number of registered banned terms",
	})
	TrackedActors = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "tracked_actors",
		Help:      "Number of actors with a live rate record",
	})
)

func IncBotAction(action string) {
	BotActions.WithLabelValues(action).Inc()
}

func IncViolation(rule string) {
	Violations.WithLabelValues(rule).Inc()
}

func AddDeletedMessages(reason string, n int) {
	if n <= 0 {
		return
	}
	DeletedMessages.WithLabelValues(reason).Add(float64(n))
}

func IncRemediationFailure(step string) {
	RemediationFailures.WithLabelValues(step).Inc()
}

func IncGenAIAttempt(credential, outcome string) {
	GenAIAttempts.WithLabelValues(credential, outcome).Inc()
}

func SetPendingBans(count float64) {
	PendingBans.Set(count)
}

func SetBannedTerms(count float64) {
	BannedTerms.Set(count)
}

func SetTrackedActors(count float64) {
	TrackedActors.Set(count)
}

func ObserveUpdateProcessing(updateType string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	UpdateProcessingDuration.WithLabelValues(updateType, status).Observe(duration)
}
