package tftpserver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps the dispatcher's Prometheus instrumentation. Pass nil to
// NewMetrics to get a no-op instance whose counters aren't registered
// anywhere, useful for tests.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	transferDuration *prometheus.HistogramVec
	transferBytes    *prometheus.CounterVec
}

// NewMetrics builds the Metrics and, if reg is non-nil, registers them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tftp_requests_total",
			Help: "TFTP requests received, by operation and outcome.",
		}, []string{"op", "outcome"}),
		transferDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tftp_transfer_duration_seconds",
			Help:    "Duration of completed TFTP transfers.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		transferBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tftp_transfer_bytes_total",
			Help: "Bytes transferred, by operation.",
		}, []string{"op"}),
	}

	if reg != nil {
		reg.MustRegister(m.requestsTotal, m.transferDuration, m.transferBytes)
	}

	return m
}

func (m *Metrics) RequestStarted(op string) {
	m.requestsTotal.WithLabelValues(op, "started").Inc()
}

func (m *Metrics) RequestFinished(op string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}

	m.requestsTotal.WithLabelValues(op, outcome).Inc()
	m.transferDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) RecordBytes(op string, n int64) {
	m.transferBytes.WithLabelValues(op).Add(float64(n))
}
