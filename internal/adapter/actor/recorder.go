package actor

import (
	"context"
	"fmt"
	"time"

	"sunfence/internal/core/domain"
	"sunfence/internal/core/port"
	"sunfence/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// RecorderActor drains decision events from the event stream into the event
// sink. A sink failure is logged and dropped; recording is observability,
// never a reason to stall the loop.
type RecorderActor struct {
	behavior    actor.Behavior
	stash       *actorutil.Stash
	sink        port.EventSink
	eventStream *eventstream.EventStream
	sub         *eventstream.Subscription
	logger      *zap.Logger
}

type recordResult struct {
	err error
}

func NewRecorderActor(sink port.EventSink, eventStream *eventstream.EventStream, log *zap.Logger) *RecorderActor {
	act := &RecorderActor{
		sink:        sink,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_RECORDER, log),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *RecorderActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *RecorderActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("recorder@default started")
		state.sub = state.eventStream.Subscribe(func(evt interface{}) {
			if ev, ok := evt.(*domain.DecisionEvent); ok {
				ctx.Send(ctx.Self(), ev)
			}
		})
	case *actor.Stopping:
		if state.sub != nil {
			state.eventStream.Unsubscribe(state.sub)
		}
		state.sink.Close()
	case domain.ActorHealthRequest:
		state.logger.Debug("recorder@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_RECORDER,
			Healthy: true,
			State:   "idle",
		})
	case *domain.DecisionEvent:
		state.logger.Debug("recorder@default: DecisionEvent", zap.String("event_id", msg.EventID))
		actorutil.NewBackgroundTaskNoError(ctx, func() *recordResult {
			recordCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return &recordResult{err: state.sink.Record(recordCtx, msg)}
		}).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingRecord)
	default:
		state.logger.Debug("recorder@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *RecorderActor) WaitingRecord(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case recordResult:
		if msg.err != nil {
			state.logger.Error("recorder@waiting record failed", zap.Error(msg.err))
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		if state.sub != nil {
			state.eventStream.Unsubscribe(state.sub)
		}
		state.sink.Close()
	default:
		state.stash.Stash(ctx, msg)
	}
}
