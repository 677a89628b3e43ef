package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	TransitionsPerformed *prometheus.CounterVec
	ActionsDenied        *prometheus.CounterVec
	ReassignmentsMoved   prometheus.Counter
	AlarmRecomputations  prometheus.Counter
	MessagesCreated      *prometheus.CounterVec
	RecordsClaimed       prometheus.Counter
	UnreadPurged         prometheus.Counter
	RequestLatency       *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on the given registerer. Tests pass a fresh
// registry so repeated construction never collides.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TransitionsPerformed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tramita_transitions_performed_total",
			Help: "Lifecycle transitions performed, by transition name",
		}, []string{"transition"}),
		ActionsDenied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tramita_actions_denied_total",
			Help: "Action evaluations denied, by failing gate",
		}, []string{"gate"}),
		ReassignmentsMoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "tramita_reassignments_total",
			Help: "Records moved between groups",
		}),
		AlarmRecomputations: factory.NewCounter(prometheus.CounterOpts{
			Name: "tramita_alarm_recomputations_total",
			Help: "Alarm flag recomputations triggered by message traffic",
		}),
		MessagesCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tramita_messages_created_total",
			Help: "Conversation messages created, by conversation type",
		}, []string{"type"}),
		RecordsClaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "tramita_records_claimed_total",
			Help: "Closed records reopened by citizen claim",
		}),
		UnreadPurged: factory.NewCounter(prometheus.CounterOpts{
			Name: "tramita_unread_purged_total",
			Help: "Unread counter rows removed by mark-read",
		}),
		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tramita_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// ObserveRequest records one HTTP request's latency.
func (m *Metrics) ObserveRequest(route, method string, d time.Duration) {
	m.RequestLatency.WithLabelValues(route, method).Observe(d.Seconds())
}
