package actor

import (
	"errors"
	"fmt"
	"log"
	"time"

	adactor "sunfence/internal/adapter/actor"
	"sunfence/internal/config"
	"sunfence/internal/core/domain"
	"sunfence/internal/mqtt"
	. "sunfence/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type ModbusActorProvider func() *adactor.ModbusActor

type PriceFeedActorProvider func() *adactor.PriceFeedActor

type TelemetryActorProvider func() *adactor.TelemetryActor

type RecorderActorProvider func(*eventstream.EventStream) *adactor.RecorderActor

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

// MasterActor supervises the whole actor tree and fans health checks out to
// the children the loop cannot run without.
type MasterActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	modbusActor        *actor.PID
	priceFeedActor     *actor.PID
	telemetryActor     *actor.PID
	controlActor       *actor.PID
	recorderActor      *actor.PID
	mqttActor          *actor.PID

	modbusActorProvider    ModbusActorProvider
	priceFeedActorProvider PriceFeedActorProvider
	telemetryActorProvider TelemetryActorProvider
	recorderActorProvider  RecorderActorProvider
	mqttActorProvider      MQTTActorProvider

	logger *zap.Logger
}

type healthCheckResult struct {
	modbusActorHealthy    bool
	priceFeedActorHealthy bool
	telemetryActorHealthy bool
	controlActorHealthy   bool
	checksReceived        int
	respondTo             *actor.PID
}

func NewMasterActor(config config.Config, modbusActorProvider ModbusActorProvider,
	priceFeedActorProvider PriceFeedActorProvider, telemetryActorProvider TelemetryActorProvider,
	recorderActorProvider RecorderActorProvider, mqttActorProvider MQTTActorProvider,
	logger *zap.Logger) *MasterActor {
	act := &MasterActor{
		config:                 config,
		behavior:               actor.NewBehavior(),
		stash:                  &Stash{},
		logger:                 ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:            &eventstream.EventStream{},
		modbusActorProvider:    modbusActorProvider,
		priceFeedActorProvider: priceFeedActorProvider,
		telemetryActorProvider: telemetryActorProvider,
		recorderActorProvider:  recorderActorProvider,
		mqttActorProvider:      mqttActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		modbusActorPID, err := state.startModbusActor(ctx)
		if err != nil {
			panic(err)
		}
		state.modbusActor = modbusActorPID

		priceFeedActorPID, err := state.startPriceFeedActor(ctx)
		if err != nil {
			panic(err)
		}
		state.priceFeedActor = priceFeedActorPID

		telemetryActorPID, err := state.startTelemetryActor(ctx)
		if err != nil {
			panic(err)
		}
		state.telemetryActor = telemetryActorPID

		recorderActorPID, err := state.startRecorderActor(ctx)
		if err != nil {
			panic(err)
		}
		state.recorderActor = recorderActorPID

		if state.config.MQTT.Enabled {
			mqttActorPID, err := state.startMQTTActor(ctx)
			if err != nil {
				panic(err)
			}
			state.mqttActor = mqttActorPID
		}

		// control goes last so its targets already exist
		controlActorPID, err := state.startControlActor(ctx)
		if err != nil {
			panic(err)
		}
		state.controlActor = controlActorPID

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		for _, target := range []struct {
			id  string
			pid *actor.PID
		}{
			{domain.ACTOR_ID_MODBUS, state.modbusActor},
			{domain.ACTOR_ID_PRICEFEED, state.priceFeedActor},
			{domain.ACTOR_ID_TELEMETRY, state.telemetryActor},
			{domain.ACTOR_ID_CONTROL, state.controlActor},
		} {
			id := target.id
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(target.pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.GetLastDecisionRequest:
		ctx.RequestWithCustomSender(state.controlActor, msg, ctx.Sender())
	case domain.SetForceFullExportRequest:
		ctx.RequestWithCustomSender(state.controlActor, msg, ctx.Sender())
	case domain.GetRuntimeRequest:
		ctx.RequestWithCustomSender(state.modbusActor, msg, ctx.Sender())
	case domain.GetLimiterStateRequest:
		ctx.RequestWithCustomSender(state.modbusActor, msg, ctx.Sender())
	case adactor.ParsedCommand:
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil && msg.Command.OverrideId == "force_full" {
			ctx.Send(state.controlActor, domain.SetForceFullExportRequest{
				Enable: msg.Command.Payload == mqtt.MQTT_PAYLOAD_ON,
			})
		}
	case *actor.Terminated:
		// a dead modbus or control child leaves the daemon unable to act
		switch msg.Who.Id {
		case fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_MODBUS):
			state.logger.Error("master@default modbus terminated")
			panic(errors.New("modbus terminated"))
		case fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_CONTROL):
			state.logger.Error("master@default control terminated")
			panic(errors.New("control terminated"))
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// a child that does not answer counts as unhealthy
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_MODBUS:
				state.currentHealthCheck.modbusActorHealthy = true
			case domain.ACTOR_ID_PRICEFEED:
				state.currentHealthCheck.priceFeedActorHealthy = true
			case domain.ACTOR_ID_TELEMETRY:
				state.currentHealthCheck.telemetryActorHealthy = true
			case domain.ACTOR_ID_CONTROL:
				state.currentHealthCheck.controlActorHealthy = true
			}
		}
		if state.currentHealthCheck.allReceived() {
			state.currentHealthCheck.respond(ctx)
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) startModbusActor(ctx actor.Context) (*actor.PID, error) {
	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	modbusProps := actor.PropsFromProducer(func() actor.Actor {
		return state.modbusActorProvider()
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(modbusProps, domain.ACTOR_ID_MODBUS)
}

func (state *MasterActor) startPriceFeedActor(ctx actor.Context) (*actor.PID, error) {
	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	props := actor.PropsFromProducer(func() actor.Actor {
		return state.priceFeedActorProvider()
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_PRICEFEED)
}

func (state *MasterActor) startTelemetryActor(ctx actor.Context) (*actor.PID, error) {
	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	props := actor.PropsFromProducer(func() actor.Actor {
		return state.telemetryActorProvider()
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_TELEMETRY)
}

func (state *MasterActor) startControlActor(ctx actor.Context) (*actor.PID, error) {
	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	controlProps := actor.PropsFromProducer(func() actor.Actor {
		return NewControlActor(&state.config, state.modbusActor, state.priceFeedActor,
			state.telemetryActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(controlProps, domain.ACTOR_ID_CONTROL)
}

func (state *MasterActor) startRecorderActor(ctx actor.Context) (*actor.PID, error) {
	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	recorderProps := actor.PropsFromProducer(func() actor.Actor {
		return state.recorderActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(recorderProps, domain.ACTOR_ID_RECORDER)
}

func (state *MasterActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {
	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

func (state *healthCheckResult) reset() {
	state.modbusActorHealthy = false
	state.priceFeedActorHealthy = false
	state.telemetryActorHealthy = false
	state.controlActorHealthy = false
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == 4
}

func (state *healthCheckResult) allHealthy() bool {
	return state.modbusActorHealthy && state.priceFeedActorHealthy &&
		state.telemetryActorHealthy && state.controlActorHealthy
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
