// Package metrics exports the loop's Prometheus instruments.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	WantPct = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sunfence_want_pct",
			Help: "Desired export limit percentage from the last decision.",
		},
	)
	LimiterEnabled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sunfence_limiter_enabled",
			Help: "Whether the last decision wants the export limiter enabled (1) or off (0).",
		},
	)
	ExportCosts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sunfence_export_costs",
			Help: "Whether exporting currently costs money (1) or pays (0).",
		},
	)
	BatterySoC = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sunfence_battery_soc_pct",
			Help: "Battery state of charge from the last telemetry sample.",
		},
	)
	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sunfence_decisions_total",
			Help: "Decisions taken, partitioned by outcome state.",
		},
		[]string{"state"},
	)
	LimitWrites = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sunfence_limit_writes_total",
			Help: "Successful export limit register writes.",
		},
	)
	LimitWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sunfence_limit_write_failures_total",
			Help: "Failed export limit register writes.",
		},
	)
	ReconnectBackoffSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sunfence_reconnect_backoff_seconds",
			Help: "Current inverter reconnect backoff window.",
		},
	)
	FetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sunfence_fetch_failures_total",
			Help: "Failed upstream fetches, partitioned by source.",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(WantPct, LimiterEnabled, ExportCosts, BatterySoC)
	prometheus.MustRegister(Decisions, LimitWrites, LimitWriteFailures)
	prometheus.MustRegister(ReconnectBackoffSeconds, FetchFailures)
}
