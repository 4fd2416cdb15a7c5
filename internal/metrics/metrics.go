package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/rental-notifier/internal/claims"
	"github.com/notifyhub/rental-notifier/internal/domain"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	ClaimsTotal         *prometheus.CounterVec
	ClaimsRetracted     *prometheus.CounterVec
	ChannelDeliveries   *prometheus.CounterVec
	ChannelLatency      *prometheus.HistogramVec
	SubscriptionsPruned prometheus.Counter
	StageDuration       *prometheus.HistogramVec
	StageErrors         *prometheus.CounterVec
	StageNotified       *prometheus.CounterVec
	InlineChecks        *prometheus.CounterVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ClaimsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_claims_total",
			Help: "Claim attempts by condition type and outcome (new, existing).",
		}, []string{"condition_type", "outcome"}),

		ClaimsRetracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_claims_retracted_total",
			Help: "Claims deleted so the condition can notify again.",
		}, []string{"condition_type"}),

		ChannelDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_channel_deliveries_total",
			Help: "Channel delivery attempts by outcome (sent, failed).",
		}, []string{"channel", "outcome"}),

		ChannelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notification_channel_seconds",
			Help:    "Per-channel latency from limiter wait to adapter return.",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),

		SubscriptionsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "push_subscriptions_pruned_total",
			Help: "Push subscriptions deleted after the push service reported them gone.",
		}),

		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notification_stage_seconds",
			Help:    "Duration of each scheduled coordinator stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),

		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_stage_errors_total",
			Help: "Coordinator stages that returned an error or panicked.",
		}, []string{"stage"}),

		StageNotified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_stage_notified_total",
			Help: "Notifications dispatched by each coordinator stage.",
		}, []string{"stage"}),

		InlineChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_inline_checks_total",
			Help: "Inline opportunistic checks by check and outcome (ran, throttled).",
		}, []string{"check", "outcome"}),
	}

	reg.MustRegister(
		m.ClaimsTotal,
		m.ClaimsRetracted,
		m.ChannelDeliveries,
		m.ChannelLatency,
		m.SubscriptionsPruned,
		m.StageDuration,
		m.StageErrors,
		m.StageNotified,
		m.InlineChecks,
	)

	return m
}

// ClaimHooks returns the callbacks expected by claims.Hooks.
func (m *Metrics) ClaimHooks() claims.Hooks {
	return claims.Hooks{
		OnClaimed: func(ct domain.ConditionType, newCount, existingCount int) {
			if newCount > 0 {
				m.ClaimsTotal.WithLabelValues(string(ct), "new").Add(float64(newCount))
			}
			if existingCount > 0 {
				m.ClaimsTotal.WithLabelValues(string(ct), "existing").Add(float64(existingCount))
			}
		},
		OnRetracted: func(ct domain.ConditionType) {
			m.ClaimsRetracted.WithLabelValues(string(ct)).Inc()
		},
	}
}

// DispatchHooks returns the metric callback functions expected by
// dispatch.Hooks. Centralises the prometheus observation calls so the
// dispatcher stays import-free.
func (m *Metrics) DispatchHooks() (
	onDelivered func(domain.Channel, bool, time.Duration),
	onPruned func(),
) {
	onDelivered = func(ch domain.Channel, ok bool, latency time.Duration) {
		outcome := "failed"
		if ok {
			outcome = "sent"
		}
		m.ChannelDeliveries.WithLabelValues(string(ch), outcome).Inc()
		m.ChannelLatency.WithLabelValues(string(ch)).Observe(latency.Seconds())
	}
	onPruned = func() {
		m.SubscriptionsPruned.Inc()
	}
	return
}

// StageHooks returns the callback expected by trigger.NewCoordinator.
func (m *Metrics) StageHooks() (
	onStage func(stage string, count int, err error, took time.Duration),
) {
	return func(stage string, count int, err error, took time.Duration) {
		m.StageDuration.WithLabelValues(stage).Observe(took.Seconds())
		m.StageNotified.WithLabelValues(stage).Add(float64(count))
		if err != nil {
			m.StageErrors.WithLabelValues(stage).Inc()
		}
	}
}

// InlineHook returns the callback expected by trigger.InlineChecks.
func (m *Metrics) InlineHook() func(check string, ran bool) {
	return func(check string, ran bool) {
		outcome := "throttled"
		if ran {
			outcome = "ran"
		}
		m.InlineChecks.WithLabelValues(check, outcome).Inc()
	}
}
