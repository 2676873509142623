package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dgnsrekt/quickpeek/internal/peek"
)

// PeekMetrics tracks launches, control intents and live sessions.
type PeekMetrics struct {
	Launches *prometheus.CounterVec
	Intents  *prometheus.CounterVec
	Sessions prometheus.GaugeFunc
}

// NewPeekMetrics registers peek metrics. The session gauge reads sessions
// straight from the registry at scrape time.
func NewPeekMetrics(reg prometheus.Registerer, sessions *peek.Registry) *PeekMetrics {
	m := &PeekMetrics{
		Launches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launches_total",
			Help:      "Total number of preview launches, by result.",
		}, []string{"result"}),
		Intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_intents_total",
			Help:      "Total number of control intents applied, by intent and result.",
		}, []string{"intent", "result"}),
		Sessions: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of registered preview sessions.",
		}, func() float64 { return float64(sessions.Len()) }),
	}
	reg.MustRegister(m.Launches, m.Intents, m.Sessions)
	return m
}

// ObserveLaunch is safe on a nil receiver.
func (m *PeekMetrics) ObserveLaunch(err error) {
	if m == nil {
		return
	}
	m.Launches.WithLabelValues(result(err)).Inc()
}

func (m *PeekMetrics) ObserveIntent(intent string, err error) {
	if m == nil {
		return
	}
	m.Intents.WithLabelValues(intent, result(err)).Inc()
}
