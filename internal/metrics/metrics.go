// Package metrics exposes Prometheus collectors the engine updates
// during operation:
//   - engine_signals_total{outcome}        accepted|blocked|failed|dry_run
//   - engine_blocked_total{reason}         volatility|daily_loss|cooldown|duplicate
//   - engine_orders_total{type,side}       orders placed on the venue
//   - engine_order_failures_total{leg}     entry|tp1|tp2|sl failures
//   - engine_trailing_exits_total{result}  win|loss
//
// Registered in init() and served at /metrics from main.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_signals_total",
			Help: "Signals processed by terminal outcome",
		},
		[]string{"outcome"},
	)

	Blocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_blocked_total",
			Help: "Signals blocked by gate reason",
		},
		[]string{"reason"},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_orders_total",
			Help: "Orders placed",
		},
		[]string{"type", "side"},
	)

	OrderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_order_failures_total",
			Help: "Order placement failures by leg",
		},
		[]string{"leg"},
	)

	TrailingExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_trailing_exits_total",
			Help: "Trailing-stop exits by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(Signals, Blocked, Orders, OrderFailures, TrailingExits)
}

// Handler serves the default registry in text exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
