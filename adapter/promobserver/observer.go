// Package promobserver exports xcomm engine events as Prometheus metrics.
package promobserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/trickstertwo/xcomm"
)

const namespace = "xcomm"

// Observer implements xcomm.Observer.
type Observer struct {
	transitions   *prometheus.CounterVec
	deleted       *prometheus.CounterVec
	attempts      prometheus.Counter
	attemptErrors prometheus.Counter
	deliveries    *prometheus.CounterVec
	duration      prometheus.Histogram
	backoff       prometheus.Histogram
	events        *prometheus.CounterVec
	persistErrors prometheus.Counter
	listeners     *prometheus.CounterVec
	dropped       prometheus.Counter
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Observer {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Observer{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Committed message state transitions.",
		}, []string{"from", "to"}),
		deleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_deleted_total",
			Help:      "Deleted messages by their last state.",
		}, []string{"state"}),
		attempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_attempts_total",
			Help:      "Transport attempts started.",
		}),
		attemptErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_attempt_errors_total",
			Help:      "Transport attempts that returned an error.",
		}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Finished deliveries by outcome.",
		}, []string{"outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Time from the first attempt to the final state.",
			Buckets:   prometheus.DefBuckets,
		}),
		backoff: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backoff_delay_seconds",
			Help:      "Scheduled waits between attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Lifecycle events persisted by type.",
		}, []string{"event_type"}),
		persistErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_persist_errors_total",
			Help:      "Lifecycle events the event store rejected.",
		}),
		listeners: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_notifications_total",
			Help:      "Listener callbacks by result.",
		}, []string{"result"}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_dropped_total",
			Help:      "Events dropped because the dispatch queue was full.",
		}),
	}
}

func (o *Observer) OnEvent(e xcomm.EngineEvent) {
	switch e.Type {
	case xcomm.Transitioned:
		o.transitions.WithLabelValues(string(e.From), string(e.To)).Inc()
	case xcomm.Deleted:
		o.deleted.WithLabelValues(string(e.From)).Inc()
	case xcomm.AttemptStart:
		o.attempts.Inc()
	case xcomm.AttemptFailed:
		o.attemptErrors.Inc()
	case xcomm.BackoffScheduled:
		o.backoff.Observe(e.Delay.Seconds())
	case xcomm.DeliveryConfirmation:
		o.deliveries.WithLabelValues("completed").Inc()
		o.duration.Observe(e.Duration.Seconds())
	case xcomm.DeliveryFailure:
		o.deliveries.WithLabelValues("failed").Inc()
	case xcomm.EventPublished:
		o.events.WithLabelValues(string(e.EventType)).Inc()
	case xcomm.EventPersistFailed:
		o.persistErrors.Inc()
	case xcomm.ListenerDispatched:
		o.listeners.WithLabelValues("ok").Inc()
	case xcomm.ListenerFailed:
		o.listeners.WithLabelValues("error").Inc()
	case xcomm.DispatchDropped:
		o.dropped.Inc()
	}
}
