package domain

import "sunfence/pkg/goodwe"

const (
	ACTOR_ID_MASTER    = "master"
	ACTOR_ID_MODBUS    = "modbus"
	ACTOR_ID_PRICEFEED = "pricefeed"
	ACTOR_ID_TELEMETRY = "telemetry"
	ACTOR_ID_CONTROL   = "control"
	ACTOR_ID_RECORDER  = "recorder"
	ACTOR_ID_MQTT      = "mqtt"
)

// Price feed

type GetPriceRequest struct {
	ActorRequestMixIn
}

type GetPriceResponse struct {
	ActorResponseMixIn
	Sample *PriceSample
}

// Telemetry feed

type GetTelemetryRequest struct {
	ActorRequestMixIn
}

type GetTelemetryResponse struct {
	ActorResponseMixIn
	Sample *TelemetrySample
}

// Limiter writes

type WriteLimitRequest struct {
	ActorRequestMixIn
	Pct     float64
	Enabled bool
}

type WriteLimitResponse struct {
	ActorResponseMixIn
}

type GetLimiterStateRequest struct {
	ActorRequestMixIn
}

type GetLimiterStateResponse struct {
	ActorResponseMixIn
	State *goodwe.LimiterState
}

type GetRuntimeRequest struct {
	ActorRequestMixIn
}

type GetRuntimeResponse struct {
	ActorResponseMixIn
	Runtime *goodwe.Runtime
}

// Control loop status

type GetLastDecisionRequest struct {
	ActorRequestMixIn
}

type GetLastDecisionResponse struct {
	ActorResponseMixIn
	Event *DecisionEvent
}

// Manual override. While enabled, the loop pins the limiter to full output
// regardless of price, until switched off or the daemon restarts.

type SetForceFullExportRequest struct {
	ActorRequestMixIn
	Enable bool
}

type SetForceFullExportResponse struct {
	ActorResponseMixIn
	Enabled bool
}

// Health checks

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
