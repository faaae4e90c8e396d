package port

import (
	"context"
	"time"

	"sunfence/internal/core/domain"
	"sunfence/pkg/goodwe"
)

// PriceSource supplies the current import and feed-in price. A failure or
// timeout means "no sample this tick", never a crash.
type PriceSource interface {
	Fetch(ctx context.Context) (*domain.PriceSample, error)
}

// TelemetrySource supplies battery and grid telemetry in provider-native
// sign convention.
type TelemetrySource interface {
	Fetch(ctx context.Context) (*domain.TelemetrySample, error)
}

// LimiterController is the protocol actuator surface the control loop
// depends on. Implementations own the connection lifecycle and reconnect
// policy.
type LimiterController interface {
	WriteLimit(pct float64, enabled bool) error
	State() (*goodwe.LimiterState, error)
	Runtime() (*goodwe.Runtime, error)
	CurrentBackoff() time.Duration
	Close() error
}

// EventSink receives one decision snapshot per tick.
type EventSink interface {
	Record(ctx context.Context, ev *domain.DecisionEvent) error
	Close() error
}
