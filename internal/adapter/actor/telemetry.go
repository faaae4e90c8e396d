package actor

import (
	"context"
	"fmt"
	"time"

	"sunfence/internal/config"
	"sunfence/internal/core/domain"
	"sunfence/internal/core/port"
	"sunfence/internal/metrics"
	"sunfence/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// TelemetryActor fetches battery/grid telemetry and normalizes the sign
// convention exactly once, here, so everything downstream can assume
// charge-positive and import-positive.
type TelemetryActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	source   port.TelemetrySource
	cfg      config.TelemetryFeedConfig
	logger   *zap.Logger
}

func NewTelemetryActor(source port.TelemetrySource, cfg config.TelemetryFeedConfig, log *zap.Logger) *TelemetryActor {
	act := &TelemetryActor{
		source:   source,
		cfg:      cfg,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_TELEMETRY, log),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *TelemetryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *TelemetryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("telemetry@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_TELEMETRY,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetTelemetryRequest:
		state.logger.Debug("telemetry@default: GetTelemetryRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.fetch),
			mapTaskResult[domain.GetTelemetryResponse](sender)).Recover(func(err error) backgroundTaskResult {
			metrics.FetchFailures.WithLabelValues("telemetry").Inc()
			return backgroundTaskResult{
				message: domain.GetTelemetryResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(time.Duration(state.cfg.TimeoutMillis)*time.Millisecond + time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingFetch)
	default:
		state.logger.Debug("telemetry@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *TelemetryActor) WaitingFetch(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("telemetry@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *TelemetryActor) fetch() (*domain.GetTelemetryResponse, error) {
	fetchCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.TimeoutMillis)*time.Millisecond)
	defer cancel()
	raw, err := a.source.Fetch(fetchCtx)
	if err != nil {
		return nil, err
	}
	sample := domain.NormalizeTelemetry(*raw, a.cfg.PBatPositiveIsCharge, a.cfg.PGridPositiveIsImport)
	return &domain.GetTelemetryResponse{
		Sample: &sample,
	}, nil
}
