package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	callsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "battlefield_calls_total",
		Help: "Entry point invocations by method and outcome.",
	}, []string{"method", "status"})

	callDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "battlefield_call_duration_seconds",
		Help:    "Time spent executing and committing an entry point.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	transfersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "battlefield_transfers_total",
		Help: "Outbound transfers executed on behalf of contracts.",
	})
)

func init() {
	prometheus.MustRegister(callsTotal, callDuration, transfersTotal)
}

func (s *Server) observe(method string, err error, d time.Duration) {
	// Unknown names come from callers; keep them out of the label set.
	if _, ok := s.contract.Lookup(method); !ok {
		method = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	callsTotal.WithLabelValues(method, status).Inc()
	callDuration.WithLabelValues(method).Observe(d.Seconds())
}
