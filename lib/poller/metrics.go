package poller

import (
	"sync"

	"github.com/fiffu/streamwatch/lib/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type channelResult string

const (
	resultNotified  channelResult = "notified"
	resultUnchanged channelResult = "unchanged"
	resultErrored   channelResult = "errored"
)

// tickMetrics counts channel outcomes within one tick.
type tickMetrics struct {
	mu        sync.Mutex
	total     int
	notified  int
	unchanged int
	errored   int
}

func (m *tickMetrics) record(r channelResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total += 1
	switch r {
	case resultNotified:
		m.notified += 1
	case resultUnchanged:
		m.unchanged += 1
	case resultErrored:
		m.errored += 1
	}
}

func (m *tickMetrics) logArgs() []any {
	m.mu.Lock()
	defer m.mu.Unlock()

	args := make([]any, 0)
	if m.errored != 0 {
		args = append(args, "errored", m.errored)
	}
	if m.notified != 0 {
		args = append(args, "notified", m.notified)
	}
	if m.unchanged != 0 {
		args = append(args, "unchanged", m.unchanged)
	}
	return args
}

type Metrics struct {
	ticks         *prometheus.CounterVec
	channels      *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamwatch_poll_ticks_total",
			Help: "Poll ticks by platform and outcome.",
		}, []string{"platform", "outcome"}),
		channels: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamwatch_poll_channels_total",
			Help: "Channels checked by platform and result.",
		}, []string{"platform", "result"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamwatch_notifications_total",
			Help: "Notifications sent by platform and change kind.",
		}, []string{"platform", "kind"}),
	}
}

func (m *Metrics) tick(platform models.Platform, outcome string) {
	m.ticks.WithLabelValues(string(platform), outcome).Inc()
}

func (m *Metrics) channel(platform models.Platform, r channelResult) {
	m.channels.WithLabelValues(string(platform), string(r)).Inc()
}

func (m *Metrics) notification(platform models.Platform, kind models.ChangeKind) {
	m.notifications.WithLabelValues(string(platform), string(kind)).Inc()
}
