package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "perp_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "path", "status"},
	)

	// OrdersTotal counts submissions by result: accepted, filled, partially_filled, cancelled or a reject reason.
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perp_orders_total",
			Help: "Order submissions by symbol and result",
		},
		[]string{"symbol", "result"},
	)

	TradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perp_trades_total",
			Help: "Trades executed by symbol",
		},
		[]string{"symbol"},
	)

	MatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "perp_match_duration_seconds",
			Help:    "Time spent inside a symbol's critical section per submission",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
		[]string{"symbol"},
	)

	OrderBookDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "perp_orderbook_levels",
			Help: "Price levels per symbol and side",
		},
		[]string{"symbol", "side"},
	)

	LiquidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perp_liquidations_total",
			Help: "Completed liquidations by symbol and final tier",
		},
		[]string{"symbol", "tier"},
	)

	ADLShortfallTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perp_liquidation_adl_shortfall_total",
			Help: "Auto-deleveraging runs that exhausted counterparties",
		},
		[]string{"symbol"},
	)

	EventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perp_events_dispatched_total",
			Help: "Events persisted and published by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	CriticalAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perp_critical_alerts_total",
			Help: "Operator-facing critical alerts by kind",
		},
		[]string{"kind"},
	)
)
