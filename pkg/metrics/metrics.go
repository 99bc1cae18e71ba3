// Package metrics defines the Prometheus collectors of the application.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bridgeui"

var (
	Queries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queries_total",
		Help:      "Balance and allowance queries by kind, chain and result.",
	}, []string{"query", "chain_id", "result"})

	QueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "query_duration_seconds",
		Help:      "Latency of balance and allowance queries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"query"})

	Sends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sends_total",
		Help:      "Send flow outcomes. stage is the last stage reached.",
	}, []string{"chain_id", "stage", "result"})

	Transactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_recorded_total",
		Help:      "Transactions submitted and recorded, by kind.",
	}, []string{"kind"})

	WalletEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wallet_events_total",
		Help:      "Wallet events applied to the session stores.",
	}, []string{"kind"})

	Connected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "wallet_connected",
		Help:      "1 while a wallet session is live.",
	})
)

// NewRegistry returns a registry with the application and Go runtime
// collectors registered.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		Queries,
		QueryDuration,
		Sends,
		Transactions,
		WalletEvents,
		Connected,
	)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// ObserveQuery records one finished query.
func ObserveQuery(query string, chainID uint64, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	Queries.WithLabelValues(query, ChainLabel(chainID), result).Inc()
	QueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
}

func ChainLabel(chainID uint64) string {
	return strconv.FormatUint(chainID, 10)
}
