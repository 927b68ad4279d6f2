package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collaborator call outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	CollaboratorCalls    *prometheus.CounterVec
	CollaboratorDuration *prometheus.HistogramVec
	ChatRequests         *prometheus.CounterVec
	ToolCalls            *prometheus.CounterVec
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CollaboratorCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_calls_total",
			Help:      "Outbound collaborator calls by collaborator and outcome.",
		}, []string{"collaborator", "outcome"}),
		CollaboratorDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collaborator_call_duration_seconds",
			Help:      "Outbound collaborator call latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"collaborator"}),
		ChatRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests by HTTP status class.",
		}, []string{"status"}),
		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Model tool calls by tool name.",
		}, []string{"tool"}),
	}
}

// ObserveCall records one collaborator call.
func (m *Metrics) ObserveCall(collaborator, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CollaboratorCalls.WithLabelValues(collaborator, outcome).Inc()
	m.CollaboratorDuration.WithLabelValues(collaborator).Observe(d.Seconds())
}

// ObserveChat records a finished chat request by status class ("2xx", "4xx", ...).
func (m *Metrics) ObserveChat(status int) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(strconv.Itoa(status/100) + "xx").Inc()
}

func (m *Metrics) ObserveToolCall(tool string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
