package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/jobdone/core/metrics"
)

// PromSink records dock event lifecycle metrics in Prometheus collectors.
type PromSink struct {
	created    *prometheus.CounterVec
	acked      *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	rejected   *prometheus.CounterVec
	dropped    prometheus.Counter
	duplicates prometheus.Counter
	sessions   prometheus.Gauge
}

// NewPromSink registers collectors on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers collectors on reg. Collectors already
// registered by a previous sink are reused. A nil registerer defaults to the
// global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	labels := []string{"dock_set_id"}
	s := &PromSink{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dock_events_created_total",
			Help: "Dock completion events minted by the broker",
		}, labels),
		acked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dock_events_acked_total",
			Help: "Dock completion events acknowledged by a signal operator",
		}, labels),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dock_ack_latency_seconds",
			Help:    "Time between event creation and acknowledgement",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, labels),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dock_invalid_requests_total",
			Help: "Requests rejected by the broker",
		}, []string{"op", "reason"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "broker_notifications_dropped_total",
			Help: "Notifications not delivered because a session queue was full",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "broker_duplicate_submissions_total",
			Help: "Submissions answered from the idempotency cache",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "broker_sessions_connected",
			Help: "Sessions currently attached to the broker",
		}),
	}
	var err error
	if s.created, err = register(reg, s.created); err != nil {
		return nil, err
	}
	if s.acked, err = register(reg, s.acked); err != nil {
		return nil, err
	}
	if s.latency, err = register(reg, s.latency); err != nil {
		return nil, err
	}
	if s.rejected, err = register(reg, s.rejected); err != nil {
		return nil, err
	}
	if s.dropped, err = register(reg, s.dropped); err != nil {
		return nil, err
	}
	if s.duplicates, err = register(reg, s.duplicates); err != nil {
		return nil, err
	}
	if s.sessions, err = register(reg, s.sessions); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (s *PromSink) RecordEventCreated(ev coremetrics.EventCreated) error {
	s.created.WithLabelValues(strconv.Itoa(ev.Event.DockSetID)).Inc()
	return nil
}

func (s *PromSink) RecordEventAcked(ev coremetrics.EventAcked) error {
	set := strconv.Itoa(ev.Event.DockSetID)
	s.acked.WithLabelValues(set).Inc()
	s.latency.WithLabelValues(set).Observe(ev.Latency.Seconds())
	return nil
}

func (s *PromSink) RecordRejected(op, reason string) error {
	s.rejected.WithLabelValues(op, reason).Inc()
	return nil
}

func (s *PromSink) RecordDropped(n int) error {
	s.dropped.Add(float64(n))
	return nil
}

func (s *PromSink) RecordDuplicate() error {
	s.duplicates.Inc()
	return nil
}

func (s *PromSink) RecordSessions(n int) error {
	s.sessions.Set(float64(n))
	return nil
}
