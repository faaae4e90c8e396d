package actor

import (
	"context"
	"fmt"
	"time"

	"sunfence/internal/core/domain"
	"sunfence/internal/core/port"
	"sunfence/internal/metrics"
	"sunfence/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// PriceFeedActor answers GetPriceRequest by fetching from the tariff
// endpoint off the actor goroutine. A failed fetch is a normal answer with a
// response error; staleness policy belongs to the control loop.
type PriceFeedActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	source   port.PriceSource
	timeout  time.Duration
	logger   *zap.Logger
}

func NewPriceFeedActor(source port.PriceSource, timeout time.Duration, log *zap.Logger) *PriceFeedActor {
	act := &PriceFeedActor{
		source:   source,
		timeout:  timeout,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_PRICEFEED, log),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *PriceFeedActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PriceFeedActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("pricefeed@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_PRICEFEED,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetPriceRequest:
		state.logger.Debug("pricefeed@default: GetPriceRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.fetch),
			mapTaskResult[domain.GetPriceResponse](sender)).Recover(func(err error) backgroundTaskResult {
			metrics.FetchFailures.WithLabelValues("price").Inc()
			return backgroundTaskResult{
				message: domain.GetPriceResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(state.timeout + time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingFetch)
	default:
		state.logger.Debug("pricefeed@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *PriceFeedActor) WaitingFetch(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("pricefeed@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *PriceFeedActor) fetch() (*domain.GetPriceResponse, error) {
	fetchCtx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	sample, err := a.source.Fetch(fetchCtx)
	if err != nil {
		return nil, err
	}
	return &domain.GetPriceResponse{
		Sample: sample,
	}, nil
}
