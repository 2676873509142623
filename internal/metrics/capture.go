package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dgnsrekt/quickpeek/internal/peek"
)

// CaptureMetrics records finished capture passes. It is a peek.PassObserver.
type CaptureMetrics struct {
	Passes       *prometheus.CounterVec
	Frames       prometheus.Histogram
	PassDuration prometheus.Histogram
}

func NewCaptureMetrics(reg prometheus.Registerer) *CaptureMetrics {
	m := &CaptureMetrics{
		Passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "passes_total",
			Help:      "Total number of finished capture passes, by stop reason.",
		}, []string{"reason"}),
		Frames: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "frames_per_pass",
			Help:      "Screenshots appended per capture pass.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 10},
		}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "pass_duration_seconds",
			Help:      "Duration of capture passes in seconds.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}
	reg.MustRegister(m.Passes, m.Frames, m.PassDuration)
	return m
}

func (m *CaptureMetrics) PassFinished(_ context.Context, res peek.PassResult) {
	reason := string(res.Reason)
	if reason == "" {
		reason = "unknown"
	}
	m.Passes.WithLabelValues(reason).Inc()
	m.Frames.Observe(float64(res.Frames))
	m.PassDuration.Observe(res.Duration.Seconds())
}
