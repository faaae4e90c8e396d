package service

import (
	"fmt"
	"math"

	"sunfence/internal/core/domain"
)

// DecisionEngine computes the desired output limit for one tick. Decide is
// pure: identical inputs always produce the identical Decision, which keeps
// the fail-safe policy auditable and testable.
type DecisionEngine struct {
	// export is considered costly when the feed-in price is below this
	ExportCostThresholdC float64
	// steady-state offset so the site idles at a slight import
	GridImportBiasW float64
	// charging power below this counts as idle, to avoid noise flicker
	BatteryIdleThresholdW float64

	// assumed absorbable charge headroom while the battery is low
	AutoChargeBelowSoCPct float64
	AutoChargeW           float64
	AutoChargeMaxW        float64

	RatedCapacityW float64
	// when true, a free-export tick turns the limiter switch off instead
	// of pinning it at 100%
	FullExportDisablesLimit bool
}

// Decide turns the current samples and staleness flags into a Decision.
// A nil sample counts as stale. Stale price forces export_costs=true; stale
// telemetry on top of that forces the 0% fail-safe, since the controller
// cannot verify it is not exporting.
func (e *DecisionEngine) Decide(price *domain.PriceSample, priceStale bool, tele *domain.TelemetrySample, teleStale bool) domain.Decision {
	priceStale = priceStale || price == nil
	teleStale = teleStale || tele == nil

	if !priceStale && price.FeedInCPerKWh >= e.ExportCostThresholdC {
		return domain.Decision{
			ExportCosts: false,
			TargetW:     e.RatedCapacityW,
			WantPct:     100,
			WantEnabled: !e.FullExportDisablesLimit,
			State:       domain.StateAllowFull,
			Reason: fmt.Sprintf("feed-in %.2f c/kWh clears threshold %.2f c/kWh, full output",
				price.FeedInCPerKWh, e.ExportCostThresholdC),
		}
	}

	var priceCause string
	if priceStale {
		priceCause = "price stale/absent"
	} else {
		priceCause = fmt.Sprintf("feed-in %.2f c/kWh below threshold %.2f c/kWh",
			price.FeedInCPerKWh, e.ExportCostThresholdC)
	}

	if teleStale {
		return domain.Decision{
			ExportCosts: true,
			TargetW:     0,
			WantPct:     0,
			WantEnabled: true,
			State:       domain.StateFailSafeZero,
			Reason:      fmt.Sprintf("fail-safe zero: %s, telemetry stale/absent", priceCause),
		}
	}

	chargeW := tele.PBatW
	if chargeW < e.BatteryIdleThresholdW {
		chargeW = 0
	}
	if tele.SoCPct < e.AutoChargeBelowSoCPct && e.AutoChargeW > 0 {
		chargeW += math.Min(e.AutoChargeW, e.AutoChargeMaxW)
	}

	// estimate what the site can absorb, then trim with the measured grid
	// flow so the steady state settles at a slight import
	targetW := tele.PLoadW + chargeW
	targetW -= tele.PGridW
	targetW += e.GridImportBiasW

	targetW = math.Min(math.Max(targetW, 0), e.RatedCapacityW)
	wantPct := math.Min(math.Max(targetW/e.RatedCapacityW*100, 0), 100)

	return domain.Decision{
		ExportCosts: true,
		TargetW:     targetW,
		WantPct:     wantPct,
		WantEnabled: true,
		State:       domain.StateNormalLimited,
		Reason:      fmt.Sprintf("limit %.0f W (%s)", targetW, priceCause),
	}
}
