package actor

import (
	"fmt"
	"os"
	"time"

	"sunfence/internal/config"
	"sunfence/internal/core/domain"
	"sunfence/internal/core/service"
	"sunfence/internal/metrics"
	. "sunfence/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ControlActor drives the decision loop: one tick fetches both samples,
// evaluates the decision engine, plans the actuation and issues at most one
// limiter write. All loop state lives here, on a single mailbox, so ticks
// never interleave.
type ControlActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	config         *config.Config
	modbusActor    *actor.PID
	priceFeedActor *actor.PID
	telemetryActor *actor.PID
	eventStream    *eventstream.EventStream

	engine   service.DecisionEngine
	actuator service.ActuationController
	actState service.ActuatorState

	lastPrice *domain.PriceSample
	lastTele  *domain.TelemetrySample
	lastEvent *domain.DecisionEvent
	loop      uint64
	forceFull bool

	host string
	pid  int

	logger *zap.Logger
}

type controlTick struct {
}

// tickCollect tracks the in-flight sample requests of the current tick.
type tickCollect struct {
	received int
}

// tickOutcome is everything one tick evaluation produces.
type tickOutcome struct {
	decision domain.Decision
	state    service.ActuatorState
	plan     service.WritePlan
}

// recoverTick converts a panic during tick evaluation into a best-effort
// unknown decision, keeping the loop and the event trail alive. The fallback
// actuator state is returned untouched, so nothing is written.
func recoverTick(fallback service.ActuatorState, run func() tickOutcome) (out tickOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = tickOutcome{
				decision: domain.Decision{
					ExportCosts: true,
					WantEnabled: true,
					State:       domain.StateUnknown,
					Reason:      fmt.Sprintf("tick evaluation failed: %v", r),
				},
				state: fallback,
				plan:  service.WritePlan{Skipped: "tick evaluation failed"},
			}
		}
	}()
	return run()
}

func NewControlActor(cfg *config.Config, modbusActor, priceFeedActor, telemetryActor *actor.PID,
	eventStream *eventstream.EventStream, logger *zap.Logger) *ControlActor {
	host, _ := os.Hostname()
	act := &ControlActor{
		config:         cfg,
		modbusActor:    modbusActor,
		priceFeedActor: priceFeedActor,
		telemetryActor: telemetryActor,
		eventStream:    eventStream,
		behavior:       actor.NewBehavior(),
		stash:          &Stash{},
		logger:         ActorLogger(domain.ACTOR_ID_CONTROL, logger),
		engine: service.DecisionEngine{
			ExportCostThresholdC:    cfg.PriceFeed.ExportCostThresholdC,
			GridImportBiasW:         cfg.Control.GridImportBiasW,
			BatteryIdleThresholdW:   cfg.Control.BatteryIdleThresholdW,
			AutoChargeBelowSoCPct:   cfg.Control.AutoChargeBelowSoCPct,
			AutoChargeW:             cfg.Control.AutoChargeW,
			AutoChargeMaxW:          cfg.Control.AutoChargeMaxW,
			RatedCapacityW:          cfg.Control.RatedCapacityW,
			FullExportDisablesLimit: cfg.InverterModbusTcp.FullExportDisablesLimit,
		},
		actuator: service.ActuationController{
			Smoothing:        cfg.Control.LimitSmoothing,
			MinPctStep:       cfg.Control.MinPctStep,
			MinWriteInterval: time.Duration(cfg.Control.MinSecondsBetweenWrites) * time.Second,
		},
		host: host,
		pid:  os.Getpid(),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *ControlActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ControlActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("control@default started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.scheduler.RequestOnce(state.pollInterval(), ctx.Self(), controlTick{})
	case controlTick:
		state.logger.Debug("control@default tick", zap.Uint64("loop", state.loop))
		// schedule next tick up front so a slow tick cannot stop the loop
		state.scheduler.RequestOnce(state.pollInterval(), ctx.Self(), controlTick{})

		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.priceFeedActor, domain.GetPriceRequest{}, state.sampleTimeout()), func(err error) any {
			return domain.GetPriceResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.telemetryActor, domain.GetTelemetryRequest{}, state.sampleTimeout()), func(err error) any {
			return domain.GetTelemetryResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		state.behavior.BecomeStacked(state.collectSamplesReceive(&tickCollect{}))
	case domain.SetForceFullExportRequest:
		state.logger.Info("control@default manual override", zap.Bool("enable", msg.Enable))
		state.forceFull = msg.Enable
		ForRequest(msg).Respond(ctx, domain.SetForceFullExportResponse{Enabled: state.forceFull})
	case domain.GetLastDecisionRequest:
		state.logger.Debug("control@default GetLastDecisionRequest")
		ForRequest(msg).Respond(ctx, domain.GetLastDecisionResponse{Event: state.lastEvent})
	case domain.ActorHealthRequest:
		state.logger.Debug("control@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_CONTROL,
			Healthy: true,
			State:   "idle",
		})
	default:
		state.logger.Debug("control@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ControlActor) collectSamplesReceive(collect *tickCollect) actor.ReceiveFunc {
	return func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case domain.GetPriceResponse:
			if msg.HasResponseError() {
				state.logger.Warn("control@collect price fetch failed", zap.Error(msg.GetResponseError()))
			} else if msg.Sample != nil {
				state.lastPrice = msg.Sample
			}
			collect.received++
			state.maybeEvaluate(ctx, collect)
		case domain.GetTelemetryResponse:
			if msg.HasResponseError() {
				state.logger.Warn("control@collect telemetry fetch failed", zap.Error(msg.GetResponseError()))
			} else if msg.Sample != nil {
				state.lastTele = msg.Sample
			}
			collect.received++
			state.maybeEvaluate(ctx, collect)
		default:
			state.stash.Stash(ctx, msg)
		}
	}
}

func (state *ControlActor) maybeEvaluate(ctx actor.Context, collect *tickCollect) {
	if collect.received < 2 {
		return
	}

	now := time.Now()
	priceStale := state.lastPrice == nil ||
		domain.IsStale(state.lastPrice.FetchedAt, state.maxPriceAge(), now)
	teleStale := state.lastTele == nil ||
		domain.IsStale(state.lastTele.FetchedAt, state.maxTelemetryAge(), now)

	out := recoverTick(state.actState, func() tickOutcome {
		decision := state.engine.Decide(state.lastPrice, priceStale, state.lastTele, teleStale)
		if state.forceFull {
			decision = domain.Decision{
				ExportCosts: decision.ExportCosts,
				TargetW:     state.engine.RatedCapacityW,
				WantPct:     100,
				WantEnabled: !state.engine.FullExportDisablesLimit,
				State:       domain.StateAllowFull,
				Reason:      "manual override: force full output",
			}
		}
		newState, plan := state.actuator.Plan(state.actState, decision, now)
		return tickOutcome{decision: decision, state: newState, plan: plan}
	})
	if out.decision.State == domain.StateUnknown {
		state.logger.Error("control@tick evaluation failed", zap.String("reason", out.decision.Reason))
	}

	state.loop++
	event := &domain.DecisionEvent{
		EventID:        uuid.NewString(),
		Time:           now,
		Host:           state.host,
		PID:            state.pid,
		Loop:           state.loop,
		Decision:       out.decision,
		Price:          state.lastPrice,
		Telemetry:      state.lastTele,
		PriceStale:     priceStale,
		TelemetryStale: teleStale,
	}

	if !out.plan.Write {
		// keep the smoothing progress even when nothing was written
		state.actState = out.state
		state.logger.Debug("control@tick no write", zap.String("skipped", out.plan.Skipped),
			zap.Float64("want_pct", out.decision.WantPct))
		state.finishTick(ctx, event)
		return
	}

	state.logger.Info("control@tick write",
		zap.Float64("pct", out.plan.Pct), zap.Bool("enabled", out.plan.Enabled),
		zap.String("state", out.decision.State), zap.String("reason", out.decision.Reason))

	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.WriteLimitRequest{
		Pct:     out.plan.Pct,
		Enabled: out.plan.Enabled,
	}, 10*time.Second), func(err error) any {
		return domain.WriteLimitResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		}
	})
	state.behavior.Become(state.waitingWriteReceive(event, out.state, out.plan))
}

func (state *ControlActor) waitingWriteReceive(event *domain.DecisionEvent, newState service.ActuatorState, plan service.WritePlan) actor.ReceiveFunc {
	return func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case domain.WriteLimitResponse:
			if msg.HasResponseError() {
				// keep the old actuator state so the write is retried next tick
				state.logger.Error("control@write limit write failed", zap.Error(msg.GetResponseError()))
				event.WriteError = msg.GetResponseError().Error()
			} else {
				state.actState = newState
				event.Wrote = true
				event.WrittenPct = plan.Pct
			}
			state.finishTick(ctx, event)
		default:
			state.stash.Stash(ctx, msg)
		}
	}
}

// finishTick publishes the event, updates gauges and returns to the default
// state. Called exactly once per tick.
func (state *ControlActor) finishTick(ctx actor.Context, event *domain.DecisionEvent) {
	state.lastEvent = event

	metrics.WantPct.Set(event.Decision.WantPct)
	metrics.LimiterEnabled.Set(boolToGauge(event.Decision.WantEnabled))
	metrics.ExportCosts.Set(boolToGauge(event.Decision.ExportCosts))
	if event.Telemetry != nil {
		metrics.BatterySoC.Set(event.Telemetry.SoCPct)
	}
	metrics.Decisions.WithLabelValues(event.Decision.State).Inc()

	state.eventStream.Publish(event)

	state.behavior.Become(state.DefaultReceive)
	state.stash.UnstashAll(ctx)
}

func (state *ControlActor) pollInterval() time.Duration {
	return time.Duration(state.config.Control.PollIntervalMillis) * time.Millisecond
}

func (state *ControlActor) sampleTimeout() time.Duration {
	// bounded by the poll interval so a hung fetch cannot pile up ticks
	return state.pollInterval() / 2
}

func (state *ControlActor) maxPriceAge() time.Duration {
	return time.Duration(state.config.PriceFeed.MaxStaleSeconds) * time.Second
}

func (state *ControlActor) maxTelemetryAge() time.Duration {
	return time.Duration(state.config.TelemetryFeed.MaxStaleSeconds) * time.Second
}

func boolToGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
