package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var shimRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "battlefield_http_requests_total",
	Help: "HTTP shim requests by route, method and status code.",
}, []string{"route", "method", "code"})

func init() {
	prometheus.MustRegister(shimRequests)
}

// RegisterMetrics serves the default registry on /metrics in mux.
func RegisterMetrics(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{EnableOpenMetrics: true}),
	))
}

// instrument counts requests served by h under route.
func instrument(route string, h http.HandlerFunc) http.Handler {
	return promhttp.InstrumentHandlerCounter(shimRequests.MustCurryWith(prometheus.Labels{"route": route}), h)
}
