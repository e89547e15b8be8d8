package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics groups the collectors exported by credod.
type LendingMetrics struct {
	requests     *prometheus.CounterVec
	errors       *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	throttles    *prometheus.CounterVec
	operations   *prometheus.CounterVec
	events       *prometheus.CounterVec
	liquidations *prometheus.CounterVec
	utilization  *prometheus.GaugeVec
	supplied     *prometheus.GaugeVec
	borrowed     *prometheus.GaugeVec
	webhookFails *prometheus.CounterVec
}

var (
	lendingMetricsOnce sync.Once
	lendingRegistry    *LendingMetrics
)

// Lending returns the lazily-initialised metrics registry.
func Lending() *LendingMetrics {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "credo",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route, method and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "credo",
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "Total API errors segmented by route, method and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "credo",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "credo",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected by throttling policies.",
			}, []string{"route", "reason"}),
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "credo",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by action and outcome.",
			}, []string{"action", "outcome"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "credo",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Committed ledger events segmented by type.",
			}, []string{"type"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "credo",
				Subsystem: "ledger",
				Name:      "liquidations_total",
				Help:      "Liquidations segmented by debt and collateral asset.",
			}, []string{"debt_asset", "collateral_asset"}),
			utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "credo",
				Subsystem: "reserve",
				Name:      "utilization_ratio",
				Help:      "Borrowed over supplied for each reserve.",
			}, []string{"asset"}),
			supplied: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "credo",
				Subsystem: "reserve",
				Name:      "supplied",
				Help:      "Total supplied liquidity in display units.",
			}, []string{"asset"}),
			borrowed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "credo",
				Subsystem: "reserve",
				Name:      "borrowed",
				Help:      "Total outstanding debt in display units.",
			}, []string{"asset"}),
			webhookFails: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "credo",
				Subsystem: "webhooks",
				Name:      "failures_total",
				Help:      "Webhook deliveries that were dropped or exhausted their retries.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			lendingRegistry.requests,
			lendingRegistry.errors,
			lendingRegistry.latency,
			lendingRegistry.throttles,
			lendingRegistry.operations,
			lendingRegistry.events,
			lendingRegistry.liquidations,
			lendingRegistry.utilization,
			lendingRegistry.supplied,
			lendingRegistry.borrowed,
			lendingRegistry.webhookFails,
		)
	})
	return lendingRegistry
}

func orUnknown(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return "unknown"
	}
	return v
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *LendingMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route, method = orUnknown(route), orUnknown(method)
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *LendingMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(orUnknown(route), reason).Inc()
}

// RecordOperation counts a ledger call. Outcome is "ok" or a stable error
// code.
func (m *LendingMetrics) RecordOperation(action, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(orUnknown(action), orUnknown(outcome)).Inc()
}

// RecordReserve publishes the current reserve gauges.
func (m *LendingMetrics) RecordReserve(asset string, utilization, supplied, borrowed float64) {
	if m == nil {
		return
	}
	asset = strings.ToUpper(orUnknown(asset))
	m.utilization.WithLabelValues(asset).Set(utilization)
	m.supplied.WithLabelValues(asset).Set(supplied)
	m.borrowed.WithLabelValues(asset).Set(borrowed)
}

// RecordWebhookFailure counts a delivery that never reached the endpoint.
func (m *LendingMetrics) RecordWebhookFailure(reason string) {
	if m == nil {
		return
	}
	m.webhookFails.WithLabelValues(orUnknown(reason)).Inc()
}
