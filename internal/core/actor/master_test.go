package actor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	adactor "sunfence/internal/adapter/actor"
	"sunfence/internal/config"
	"sunfence/internal/core/domain"
	"sunfence/internal/pricefeed"
	"sunfence/internal/telemetry"
	"sunfence/pkg/goodwe"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLimiter struct {
	mu     sync.Mutex
	writes []struct {
		pct     float64
		enabled bool
	}
}

func (f *fakeLimiter) WriteLimit(pct float64, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, struct {
		pct     float64
		enabled bool
	}{pct, enabled})
	return nil
}

func (f *fakeLimiter) State() (*goodwe.LimiterState, error) {
	return &goodwe.LimiterState{Enabled: true, ExportPct: 35}, nil
}

func (f *fakeLimiter) Runtime() (*goodwe.Runtime, error) {
	return &goodwe.Runtime{Family: goodwe.FamilyDT, PVEstimateW: 2500}, nil
}

func (f *fakeLimiter) CurrentBackoff() time.Duration { return 0 }

func (f *fakeLimiter) Close() error { return nil }

func (f *fakeLimiter) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

type fakeSink struct {
	mu     sync.Mutex
	events []*domain.DecisionEvent
}

func (f *fakeSink) Record(_ context.Context, ev *domain.DecisionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSink) Close() error { return nil }

func (f *fakeSink) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func testConfig(priceURL, telemetryURL string) config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		PriceFeed: config.PriceFeedConfig{
			URL:                  priceURL,
			TimeoutMillis:        1000,
			MaxStaleSeconds:      60,
			ExportCostThresholdC: 0,
		},
		TelemetryFeed: config.TelemetryFeedConfig{
			URL:                   telemetryURL,
			TimeoutMillis:         1000,
			MaxStaleSeconds:       60,
			PBatPositiveIsCharge:  true,
			PGridPositiveIsImport: true,
		},
		Control: config.ControlConfig{
			PollIntervalMillis:      300,
			RatedCapacityW:          10000,
			GridImportBiasW:         50,
			BatteryIdleThresholdW:   25,
			LimitSmoothing:          1,
			MinPctStep:              1,
			MinSecondsBetweenWrites: 1,
		},
	}
}

func TestMasterActorLoop(t *testing.T) {
	require := require.New(t)

	priceSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"import_c_per_kwh": 30, "feed_in_c_per_kwh": -2}`))
	}))
	defer priceSrv.Close()
	teleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"soc_pct": 40, "p_bat_w": 300, "p_grid_w": 100, "p_load_w": 500}`))
	}))
	defer teleSrv.Close()

	cfg := testConfig(priceSrv.URL, teleSrv.URL)
	logger := zap.NewNop()

	limiter := &fakeLimiter{}
	sink := &fakeSink{}

	as := actor.NewActorSystem()
	rootCtx := as.Root

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterActor(cfg,
			func() *adactor.ModbusActor {
				return adactor.NewModbusActor(limiter, logger)
			},
			func() *adactor.PriceFeedActor {
				client := pricefeed.NewClient(cfg.PriceFeed.URL, time.Second)
				return adactor.NewPriceFeedActor(client, time.Second, logger)
			},
			func() *adactor.TelemetryActor {
				client := telemetry.NewClient(cfg.TelemetryFeed.URL, time.Second)
				return adactor.NewTelemetryActor(client, cfg.TelemetryFeed, logger)
			},
			func(es *eventstream.EventStream) *adactor.RecorderActor {
				return adactor.NewRecorderActor(sink, es, logger)
			},
			nil,
			logger)
	})
	pid, err := rootCtx.SpawnNamed(props, "master")
	require.NoError(err)

	time.Sleep(2 * time.Second)

	res, err := rootCtx.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	require.True(ok)
	assert.True(t, healthResp.Healthy, "healthy is true")

	// export costs, so the loop must have written a limit by now
	assert.Greater(t, limiter.writeCount(), 0, "limiter written")
	assert.Greater(t, sink.eventCount(), 0, "events recorded")

	res, err = rootCtx.RequestFuture(pid, domain.GetLastDecisionRequest{}, 10*time.Second).Result()
	require.NoError(err)
	lastResp, ok := res.(domain.GetLastDecisionResponse)
	require.True(ok)
	require.NotNil(lastResp.Event)
	assert.Equal(t, domain.StateNormalLimited, lastResp.Event.Decision.State)
	assert.InDelta(t, 7.5, lastResp.Event.Decision.WantPct, 0.001)

	// runtime and limiter readback are routed through to the modbus actor
	res, err = rootCtx.RequestFuture(pid, domain.GetRuntimeRequest{}, 10*time.Second).Result()
	require.NoError(err)
	rtResp, ok := res.(domain.GetRuntimeResponse)
	require.True(ok)
	require.NotNil(rtResp.Runtime)
	assert.Equal(t, 2500.0, rtResp.Runtime.PVEstimateW)

	res, err = rootCtx.RequestFuture(pid, domain.GetLimiterStateRequest{}, 10*time.Second).Result()
	require.NoError(err)
	lsResp, ok := res.(domain.GetLimiterStateResponse)
	require.True(ok)
	require.NotNil(lsResp.State)
	assert.True(t, lsResp.State.Enabled)

	// manual override pins the limiter to full output
	res, err = rootCtx.RequestFuture(pid, domain.SetForceFullExportRequest{Enable: true}, 10*time.Second).Result()
	require.NoError(err)
	_, ok = res.(domain.SetForceFullExportResponse)
	require.True(ok)

	time.Sleep(1 * time.Second)

	res, err = rootCtx.RequestFuture(pid, domain.GetLastDecisionRequest{}, 10*time.Second).Result()
	require.NoError(err)
	lastResp, ok = res.(domain.GetLastDecisionResponse)
	require.True(ok)
	require.NotNil(lastResp.Event)
	assert.Equal(t, domain.StateAllowFull, lastResp.Event.Decision.State)
	assert.Equal(t, 100.0, lastResp.Event.Decision.WantPct)

	rootCtx.Stop(pid)
	as.Shutdown()
}
