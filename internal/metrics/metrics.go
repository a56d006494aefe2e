// Package metrics exposes SDK lifecycle events as Prometheus metrics.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tonimelisma/box-go/internal/events"
)

// Sink counts events by kind and records retry backoffs.
type Sink struct {
	events  *prometheus.CounterVec
	backoff prometheus.Histogram
	status  *prometheus.CounterVec
}

// NewSink creates the collectors and registers them on reg.
func NewSink(reg prometheus.Registerer) (*Sink, error) {
	s := &Sink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "box_sdk",
			Name:      "events_total",
			Help:      "SDK lifecycle events by kind.",
		}, []string{"kind"}),
		backoff: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "box_sdk",
			Name:      "retry_backoff_seconds",
			Help:      "Backoff waited before each retry.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		status: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "box_sdk",
			Name:      "retried_responses_total",
			Help:      "Retried or exhausted requests by HTTP status (0 = network error).",
		}, []string{"status"}),
	}

	collectors := []prometheus.Collector{s.events, s.backoff, s.status}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			// Leave reg as it was.
			for _, done := range collectors[:i] {
				reg.Unregister(done)
			}

			return nil, fmt.Errorf("metrics: registering collector: %w", err)
		}
	}

	return s, nil
}

// Emit implements events.Sink.
func (s *Sink) Emit(e events.Event) {
	s.events.WithLabelValues(string(e.Kind)).Inc()

	switch e.Kind {
	case events.KindRetry:
		s.backoff.Observe(e.Backoff.Seconds())
		s.status.WithLabelValues(fmt.Sprint(e.StatusCode)).Inc()
	case events.KindRetriesExhausted:
		s.status.WithLabelValues(fmt.Sprint(e.StatusCode)).Inc()
	}
}
