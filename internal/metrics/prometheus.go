package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder publishes command counters and latency histograms under
// the tipbot namespace.
type PrometheusRecorder struct {
	counters  *prometheus.CounterVec
	histogram *prometheus.HistogramVec
}

func NewPrometheusRecorder() Recorder {
	counters := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tipbot",
			Name:      "commands_total",
			Help:      "Commands processed, by command and outcome",
		},
		[]string{"command", "outcome"},
	)

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tipbot",
			Name:      "command_duration_seconds",
			Help:      "Command execution latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command", "outcome"},
	)

	prometheus.MustRegister(counters, histogram)

	return &PrometheusRecorder{
		counters:  counters,
		histogram: histogram,
	}
}

func (p *PrometheusRecorder) IncCounter(name string, labels map[string]string) {
	p.counters.With(prometheus.Labels{
		"command": name,
		"outcome": labels["outcome"],
	}).Inc()
}

func (p *PrometheusRecorder) ObserveLatency(name string, d time.Duration, labels map[string]string) {
	p.histogram.With(prometheus.Labels{
		"command": name,
		"outcome": labels["outcome"],
	}).Observe(d.Seconds())
}
