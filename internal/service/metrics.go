package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics - счетчики движка. Методы безопасны для nil, тестам метрики не нужны.
type Metrics struct {
	messages    *prometheus.CounterVec
	joins       prometheus.Counter
	leaves      *prometheus.CounterVec
	moderation  *prometheus.CounterVec
	polls       *prometheus.CounterVec
	online      prometheus.Gauge
	logSize     prometheus.Gauge
	subscribers prometheus.Gauge
	dropped     prometheus.Counter
	rateLimited prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "messages_total",
			Help:      "Messages appended to the log, by kind.",
		}, []string{"kind"}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "joins_total",
			Help:      "Successful joins.",
		}),
		leaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "leaves_total",
			Help:      "Identities removed, by reason.",
		}, []string{"reason"}),
		moderation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "moderation_actions_total",
			Help:      "Admin actions, by type.",
		}, []string{"action"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "polls_total",
			Help:      "Pull-model fetches, by whether the cursor was known.",
		}, []string{"cursor"}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat",
			Name:      "online_identities",
			Help:      "Identities currently online.",
		}),
		logSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat",
			Name:      "log_messages",
			Help:      "Messages currently retained in the log.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat",
			Name:      "push_subscribers",
			Help:      "Open push subscriptions.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "push_dropped_total",
			Help:      "Push subscribers dropped because their buffer was full.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.messages, m.joins, m.leaves, m.moderation, m.polls,
			m.online, m.logSize, m.subscribers, m.dropped, m.rateLimited)
	}
	return m
}

func (m *Metrics) messageAppended(kind string, logSize int) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(kind).Inc()
	m.logSize.Set(float64(logSize))
}

func (m *Metrics) logCleared() {
	if m == nil {
		return
	}
	m.logSize.Set(0)
}

func (m *Metrics) joined() {
	if m == nil {
		return
	}
	m.joins.Inc()
}

func (m *Metrics) left(reason string) {
	if m == nil {
		return
	}
	m.leaves.WithLabelValues(reason).Inc()
}

func (m *Metrics) moderated(action string) {
	if m == nil {
		return
	}
	m.moderation.WithLabelValues(action).Inc()
}

func (m *Metrics) polled(known bool) {
	if m == nil {
		return
	}
	label := "known"
	if !known {
		label = "reset"
	}
	m.polls.WithLabelValues(label).Inc()
}

func (m *Metrics) setOnline(n int) {
	if m == nil {
		return
	}
	m.online.Set(float64(n))
}

func (m *Metrics) setSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

func (m *Metrics) subscriberDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
