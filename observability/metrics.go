package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type StreamMetrics struct {
	subscribers prometheus.Gauge
	delivered   prometheus.Counter
	dropped     *prometheus.CounterVec
	journal     *prometheus.CounterVec
}

var (
	streamMetricsOnce sync.Once
	streamRegistry    *StreamMetrics
)

// Stream returns the lazily-initialised registry for event fan-out: websocket
// subscribers and the SQL journal.
func Stream() *StreamMetrics {
	streamMetricsOnce.Do(func() {
		streamRegistry = &StreamMetrics{
			subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "farm",
				Subsystem: "stream",
				Name:      "subscribers",
				Help:      "Connected websocket event subscribers.",
			}),
			delivered: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "farm",
				Subsystem: "stream",
				Name:      "delivered_total",
				Help:      "Events queued to websocket subscribers.",
			}),
			dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "farm",
				Subsystem: "stream",
				Name:      "dropped_total",
				Help:      "Events dropped before reaching a subscriber, by reason.",
			}, []string{"reason"}),
			journal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "farm",
				Subsystem: "journal",
				Name:      "writes_total",
				Help:      "Journal appends segmented by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			streamRegistry.subscribers,
			streamRegistry.delivered,
			streamRegistry.dropped,
			streamRegistry.journal,
		)
	})
	return streamRegistry
}

func (m *StreamMetrics) SubscriberJoined() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

func (m *StreamMetrics) SubscriberLeft() {
	if m == nil {
		return
	}
	m.subscribers.Dec()
}

func (m *StreamMetrics) Delivered() {
	if m == nil {
		return
	}
	m.delivered.Inc()
}

// Dropped records an undelivered event. Reasons should be stable strings such
// as "slow_consumer" or "encode".
func (m *StreamMetrics) Dropped(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *StreamMetrics) JournalWrite(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.journal.WithLabelValues(outcome).Inc()
}
