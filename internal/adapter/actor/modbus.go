package actor

import (
	"fmt"
	"time"

	"sunfence/internal/core/domain"
	"sunfence/internal/core/port"
	"sunfence/internal/metrics"
	"sunfence/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/logger"
	"go.uber.org/zap"
)

// ModbusActor serializes all inverter register traffic. The limiter owns the
// connection lifecycle; this actor only guarantees one in-flight operation at
// a time by stashing everything while a background task runs.
type ModbusActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	limiter  port.LimiterController
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewModbusActor(limiter port.LimiterController, log *zap.Logger) *ModbusActor {
	act := &ModbusActor{
		limiter:  limiter,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MODBUS, log),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *ModbusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ModbusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("modbus@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MODBUS,
			Healthy: true,
			State:   "idle",
		})
	case domain.WriteLimitRequest:
		state.logger.Debug("modbus@default: WriteLimitRequest",
			zap.Float64("pct", msg.Pct), zap.Bool("enabled", msg.Enabled))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, func() *domain.WriteLimitResponse {
			a := state.writeLimit(msg.Pct, msg.Enabled)
			return &a
		}), mapTaskResult[domain.WriteLimitResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.WriteLimitResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(5 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.GetLimiterStateRequest:
		state.logger.Debug("modbus@default: GetLimiterStateRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getLimiterState),
			mapTaskResult[domain.GetLimiterStateResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetLimiterStateResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(5 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.GetRuntimeRequest:
		state.logger.Debug("modbus@default: GetRuntimeRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getRuntime),
			mapTaskResult[domain.GetRuntimeResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetRuntimeResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(5 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case *actor.Stopping:
		state.limiter.Close()
	default:
		state.logger.Debug("modbus@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ModbusActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("modbus@WaitingModbus backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.limiter.Close()
	default:
		state.logger.Debug("modbus@WaitingModbus stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *ModbusActor) writeLimit(pct float64, enabled bool) domain.WriteLimitResponse {
	err := a.limiter.WriteLimit(pct, enabled)
	metrics.ReconnectBackoffSeconds.Set(a.limiter.CurrentBackoff().Seconds())
	if err != nil {
		logger.Error(err)
		metrics.LimitWriteFailures.Inc()
		return domain.WriteLimitResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		}
	}
	metrics.LimitWrites.Inc()
	return domain.WriteLimitResponse{}
}

func (a *ModbusActor) getLimiterState() (*domain.GetLimiterStateResponse, error) {
	st, err := a.limiter.State()
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.GetLimiterStateResponse{
		State: st,
	}, nil
}

func (a *ModbusActor) getRuntime() (*domain.GetRuntimeResponse, error) {
	rt, err := a.limiter.Runtime()
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.GetRuntimeResponse{
		Runtime: rt,
	}, nil
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
