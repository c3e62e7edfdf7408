// Package metrics exposes run counters on a Prometheus endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agent_signals_total", Help: "Signals emitted by agents"},
		[]string{"agent", "action"},
	)
	AgentFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agent_failures_total", Help: "Agent errors and timeouts treated as abstentions"},
		[]string{"agent"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_total", Help: "Fills applied by the execution simulator"},
		[]string{"ticker", "action"},
	)
	DataGapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "data_gaps_total", Help: "Ticker-days skipped for missing bars"},
		[]string{"ticker"},
	)
	DatesSimulatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "dates_simulated_total", Help: "Trade dates stepped by the engine"},
	)
)

func init() {
	prometheus.MustRegister(SignalsTotal, AgentFailuresTotal, TradesTotal, DataGapsTotal, DatesSimulatedTotal)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
