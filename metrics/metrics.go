package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActiveCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vpb",
		Name:      "active_calls",
		Help:      "Calls currently in progress.",
	})

	CallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vpb",
		Name:      "calls_total",
		Help:      "Finished calls by final state.",
	}, []string{"state"})

	CallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vpb",
		Name:      "call_duration_seconds",
		Help:      "Call duration from answer to teardown.",
		Buckets:   prometheus.ExponentialBuckets(5, 2, 10),
	})

	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vpb",
		Name:      "commands_total",
		Help:      "Commands executed by type.",
	}, []string{"type"})

	InterruptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vpb",
		Name:      "interruptions_total",
		Help:      "Playback interruptions triggered by caller speech.",
	})

	CollectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vpb",
		Name:      "dtmf_collections_total",
		Help:      "DTMF collections by outcome.",
	}, []string{"outcome"})

	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vpb",
		Name:      "tool_calls_total",
		Help:      "External tool invocations by result.",
	}, []string{"result"})

	PosthooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vpb",
		Name:      "posthooks_total",
		Help:      "Post-call webhook deliveries by result.",
	}, []string{"result"})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
