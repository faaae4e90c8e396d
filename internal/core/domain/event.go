package domain

import "time"

// DecisionEvent is the structured snapshot emitted once per tick for
// observability. EventID makes recording idempotent.
type DecisionEvent struct {
	EventID string    `json:"event_id"`
	Time    time.Time `json:"time"`
	Host    string    `json:"host"`
	PID     int       `json:"pid"`
	Loop    uint64    `json:"loop"`

	Decision Decision `json:"decision"`

	Price          *PriceSample     `json:"price,omitempty"`
	Telemetry      *TelemetrySample `json:"telemetry,omitempty"`
	PriceStale     bool             `json:"price_stale"`
	TelemetryStale bool             `json:"telemetry_stale"`

	Wrote      bool    `json:"wrote"`
	WrittenPct float64 `json:"written_pct"`
	WriteError string  `json:"write_error,omitempty"`
}
