package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	SignIns      *prometheus.CounterVec
	HTTPRequests *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		SignIns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsroom_signins_total",
				Help: "Provider sign-ins by outcome",
			},
			[]string{"outcome"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsroom_http_requests_total",
				Help: "HTTP requests by method and status class",
			},
			[]string{"method", "status"},
		),
	}
	reg.MustRegister(m.SignIns, m.HTTPRequests)
	return m
}

// ObserveResolution counts one sign-in outcome.
func (m *Metrics) ObserveResolution(outcome string) {
	m.SignIns.WithLabelValues(outcome).Inc()
}

// ObserveRequest counts one HTTP response. status is bucketed to "2xx", "4xx", ...
func (m *Metrics) ObserveRequest(method string, status int) {
	m.HTTPRequests.WithLabelValues(method, statusClass(status)).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
