package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wacrm_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	Runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wacrm_runs_total", Help: "Pending-action run outcomes"},
		[]string{"result"},
	)
	Batches = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "wacrm_batches_total", Help: "Processed action batches"},
	)
	ActionsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wacrm_actions_processed_total", Help: "Action outcomes"},
		[]string{"type", "outcome"},
	)
	GraphSend = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wacrm_graph_send_total", Help: "Graph API send outcomes"},
		[]string{"result", "http_status"},
	)
	GraphLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "wacrm_graph_send_latency_seconds", Help: "Graph API send latency"},
	)
	PendingActions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "wacrm_pending_actions", Help: "Unfinished actions at last run start"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, Runs, Batches, ActionsProcessed, GraphSend, GraphLatency, PendingActions)
}
