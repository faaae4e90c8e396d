package service

import (
	"testing"
	"time"

	"sunfence/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine() DecisionEngine {
	return DecisionEngine{
		ExportCostThresholdC:  0,
		GridImportBiasW:       50,
		BatteryIdleThresholdW: 25,
		AutoChargeBelowSoCPct: 20,
		AutoChargeW:           2000,
		AutoChargeMaxW:        1500,
		RatedCapacityW:        10000,
	}
}

func price(feedIn float64) *domain.PriceSample {
	return &domain.PriceSample{
		ImportCPerKWh: 30,
		FeedInCPerKWh: feedIn,
		FetchedAt:     time.Now(),
	}
}

func tele(soc, pbat, pgrid, pload float64) *domain.TelemetrySample {
	return &domain.TelemetrySample{
		SoCPct:    soc,
		PBatW:     pbat,
		PGridW:    pgrid,
		PLoadW:    pload,
		FetchedAt: time.Now(),
	}
}

func TestDecideNegativeFeedInLimitsOutput(t *testing.T) {
	require := require.New(t)
	e := testEngine()

	// battery charging at 300W, importing 100W, 500W house load
	d := e.Decide(price(-2), false, tele(40, 300, 100, 500), false)

	require.True(d.ExportCosts)
	require.Equal(domain.StateNormalLimited, d.State)
	require.True(d.WantEnabled)
	// 500 + 300 - 100 + 50
	require.Equal(750.0, d.TargetW)
	require.InDelta(7.5, d.WantPct, 0.001)
}

func TestDecideAllowsFullWhenExportPays(t *testing.T) {
	require := require.New(t)
	e := testEngine()

	d := e.Decide(price(8), false, tele(40, 300, 100, 500), false)

	require.False(d.ExportCosts)
	require.Equal(domain.StateAllowFull, d.State)
	require.Equal(100.0, d.WantPct)
	require.True(d.WantEnabled)
}

func TestDecideFullExportCanDisableLimiter(t *testing.T) {
	require := require.New(t)
	e := testEngine()
	e.FullExportDisablesLimit = true

	d := e.Decide(price(8), false, tele(40, 300, 100, 500), false)

	require.Equal(domain.StateAllowFull, d.State)
	require.False(d.WantEnabled)
}

func TestDecideStalePriceForcesExportCosts(t *testing.T) {
	require := require.New(t)
	e := testEngine()

	// even a paying feed-in price must be ignored when stale
	d := e.Decide(price(8), true, tele(40, 300, 100, 500), false)

	require.True(d.ExportCosts)
	require.Equal(domain.StateNormalLimited, d.State)
}

func TestDecideFailSafeZeroOnDoubleStaleness(t *testing.T) {
	require := require.New(t)
	e := testEngine()

	d := e.Decide(price(8), true, tele(40, 300, 100, 500), true)

	require.Equal(domain.StateFailSafeZero, d.State)
	require.Equal(0.0, d.WantPct)
	require.True(d.WantEnabled)
	// the reason must name both causes
	assert.Contains(t, d.Reason, "price stale/absent")
	assert.Contains(t, d.Reason, "telemetry stale/absent")
}

func TestDecideNilSamplesCountAsStale(t *testing.T) {
	require := require.New(t)
	e := testEngine()

	d := e.Decide(nil, false, nil, false)

	require.Equal(domain.StateFailSafeZero, d.State)
	require.Equal(0.0, d.WantPct)
}

func TestDecideFreshTelemetryStalePriceStillLimits(t *testing.T) {
	require := require.New(t)
	e := testEngine()

	d := e.Decide(nil, true, tele(40, 300, 100, 500), false)

	require.Equal(domain.StateNormalLimited, d.State)
	require.Equal(750.0, d.TargetW)
}

func TestDecideDischargingBatteryAddsNoHeadroom(t *testing.T) {
	require := require.New(t)
	e := testEngine()

	d := e.Decide(price(-2), false, tele(40, -400, 100, 500), false)

	// 500 + 0 - 100 + 50
	require.Equal(450.0, d.TargetW)
}

func TestDecideIdleBatteryNoiseIgnored(t *testing.T) {
	require := require.New(t)
	e := testEngine()

	d := e.Decide(price(-2), false, tele(40, 10, 100, 500), false)

	require.Equal(450.0, d.TargetW)
}

func TestDecideLowSoCAddsChargeHeadroom(t *testing.T) {
	require := require.New(t)
	e := testEngine()

	d := e.Decide(price(-2), false, tele(15, 300, 100, 500), false)

	// 500 + 300 + min(2000, 1500) - 100 + 50
	require.Equal(2250.0, d.TargetW)
}

func TestDecideTargetClampedToRange(t *testing.T) {
	require := require.New(t)
	e := testEngine()

	// heavy import feedback pushes the raw target below zero
	d := e.Decide(price(-2), false, tele(40, 0, 5000, 100), false)
	d2 := e.Decide(price(-2), false, tele(40, 0, 0, 50000), false)

	require.Equal(0.0, d.WantPct)
	require.Equal(100.0, d2.WantPct)
	require.Equal(e.RatedCapacityW, d2.TargetW)
}

func TestDecideMonotonicInLoad(t *testing.T) {
	require := require.New(t)
	e := testEngine()

	prev := -1.0
	for load := 0.0; load <= 4000; load += 250 {
		d := e.Decide(price(-2), false, tele(40, 0, 0, load), false)
		require.GreaterOrEqual(d.TargetW, prev)
		prev = d.TargetW
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	require := require.New(t)
	e := testEngine()

	p, s := price(-2), tele(40, 300, 100, 500)
	d1 := e.Decide(p, false, s, false)
	d2 := e.Decide(p, false, s, false)
	require.Equal(d1, d2)
}
