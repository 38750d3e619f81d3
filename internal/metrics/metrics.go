// Package metrics holds the Prometheus collectors of the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics: все коллекторы на собственном реестре (без глобального состояния).
type Metrics struct {
	Registry *prometheus.Registry

	TicksTotal       *prometheus.CounterVec // labels: action
	TickDuration     prometheus.Histogram
	TickErrors       *prometheus.CounterVec // labels: kind
	SamplesTotal     prometheus.Counter
	SampleErrors     prometheus.Counter
	OrdersTotal      *prometheus.CounterVec // labels: kind, result
	KillSwitchRuns   *prometheus.CounterVec // labels: result
	KillSwitchRounds prometheus.Histogram
	PositionSide     prometheus.Gauge // 0=flat, 1=long, -1=short
	UnrealizedPnLPct prometheus.Gauge
	BreakerState     prometheus.Gauge // 0=closed, 1=half-open, 2=open
	NetworkRetries   prometheus.Counter
	WSReconnects     prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpbot_ticks_total",
			Help: "Control loop ticks by resulting action",
		}, []string{"action"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "perpbot_tick_duration_seconds",
			Help:    "Control loop tick latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		TickErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpbot_tick_errors_total",
			Help: "Tick failures by error class",
		}, []string{"kind"}),
		SamplesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perpbot_book_samples_total",
			Help: "Order book snapshots appended to history",
		}),
		SampleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perpbot_book_sample_errors_total",
			Help: "Failed order book samples",
		}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpbot_orders_total",
			Help: "Orders sent to the gateway",
		}, []string{"kind", "result"}),
		KillSwitchRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "perpbot_kill_switch_runs_total",
			Help: "Forced close runs by result",
		}, []string{"result"}),
		KillSwitchRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "perpbot_kill_switch_rounds",
			Help:    "Cancel/resubmit rounds needed per forced close",
			Buckets: []float64{1, 2, 3, 5, 8, 13},
		}),
		PositionSide: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perpbot_position_side",
			Help: "Open position side (0=flat, 1=long, -1=short)",
		}),
		UnrealizedPnLPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perpbot_unrealized_pnl_pct",
			Help: "Leverage adjusted PNL of the open position, percent",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "perpbot_exchange_breaker_state",
			Help: "Exchange circuit breaker state (0=closed, 1=half-open, 2=open)",
		}),
		NetworkRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perpbot_network_retries_total",
			Help: "Backoff retries after transient exchange failures",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "perpbot_ws_reconnects_total",
			Help: "Order book websocket reconnects",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TicksTotal,
		m.TickDuration,
		m.TickErrors,
		m.SamplesTotal,
		m.SampleErrors,
		m.OrdersTotal,
		m.KillSwitchRuns,
		m.KillSwitchRounds,
		m.PositionSide,
		m.UnrealizedPnLPct,
		m.BreakerState,
		m.NetworkRetries,
		m.WSReconnects,
	)
	return m
}
