// Package metrics exposes bridge call metrics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/morezero/wallet-bridge/pkg/dispatcher"
)

const metricsNamespace = "bridge"

// Collector is a prometheus.Collector for wallet calls and channel drops.
type Collector struct {
	calls         *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	pendingCalls  prometheus.GaugeFunc
	droppedEvents *prometheus.CounterVec
}

// NewCollector returns a new Collector. pending reports the number of calls awaiting a response.
func NewCollector(pending func() int) *Collector {
	if pending == nil {
		pending = func() int { return 0 }
	}
	return &Collector{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "calls_total",
				Help:      "Wallet calls by operation and outcome.",
			}, []string{"operation", "outcome"},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "call_duration_seconds",
				Help:      "Time from sending a wallet call to its settlement.",
				Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 300},
			}, []string{"operation"},
		),
		pendingCalls: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "pending_calls",
				Help:      "Wallet calls awaiting a response.",
			}, func() float64 { return float64(pending()) },
		),
		droppedEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "dropped_events_total",
				Help:      "Channel messages dropped, by reason.",
			}, []string{"reason"},
		),
	}
}

// RecordCall implements dispatcher.Recorder.
func (c *Collector) RecordCall(rec dispatcher.CallRecord) {
	c.calls.WithLabelValues(rec.Operation, rec.Outcome).Inc()
	c.callDuration.WithLabelValues(rec.Operation).Observe(rec.Duration.Seconds())
}

// DroppedEvent counts a dropped channel message. It matches the channel adapter's OnDrop hook.
func (c *Collector) DroppedEvent(reason string) {
	c.droppedEvents.WithLabelValues(reason).Inc()
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.calls.Describe(ch)
	c.callDuration.Describe(ch)
	c.pendingCalls.Describe(ch)
	c.droppedEvents.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.calls.Collect(ch)
	c.callDuration.Collect(ch)
	c.pendingCalls.Collect(ch)
	c.droppedEvents.Collect(ch)
}

// NewRegistry returns a registry holding c plus the Go runtime and process collectors.
func NewRegistry(c *Collector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	for _, col := range []prometheus.Collector{
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Handler serves reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
