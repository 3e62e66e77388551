package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	InstructionsIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotrend_instructions_total",
			Help: "Total number of instructions sent to the execution venue (by reason).",
		},
		[]string{"reason"},
	)

	InstructionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotrend_instruction_failures_total",
			Help: "Instructions the execution venue rejected or failed to deliver.",
		},
		[]string{"reason"},
	)

	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotrend_notifications_total",
			Help: "Notifications emitted (by severity).",
		},
		[]string{"severity"},
	)

	TicksProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gotrend_ticks_total",
			Help: "Daily ticks consumed from the feed, warm-up included.",
		},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gotrend_equity",
			Help: "Total portfolio value reported by the execution venue.",
		},
	)

	HaltedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gotrend_halted",
			Help: "1 once the drawdown kill switch has tripped.",
		},
	)

	StopPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gotrend_stop_price",
			Help: "Current trailing stop level per symbol.",
		},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(
		InstructionsIssued,
		InstructionFailures,
		NotificationsSent,
		TicksProcessed,
		EquityGauge,
		HaltedGauge,
		StopPrice,
	)
}

// Handler exposes /metrics and a trivial /healthz.
func Handler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}
