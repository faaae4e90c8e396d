package domain

import "time"

// PriceSample is one observation from the price feed, in cents per kWh.
// Immutable once fetched; superseded each tick.
type PriceSample struct {
	ImportCPerKWh float64   `json:"import_c_per_kwh"`
	FeedInCPerKWh float64   `json:"feed_in_c_per_kwh"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// TelemetrySample is one observation from the telemetry feed, in the
// canonical sign convention: PBatW > 0 charging, < 0 discharging;
// PGridW > 0 importing, < 0 exporting.
type TelemetrySample struct {
	SoCPct    float64   `json:"soc_pct"`
	PBatW     float64   `json:"p_bat_w"`
	PGridW    float64   `json:"p_grid_w"`
	PLoadW    float64   `json:"p_load_w"`
	FetchedAt time.Time `json:"fetched_at"`
}

// NormalizeTelemetry maps provider-native polarity to the canonical
// convention. Applied exactly once, at ingestion; everything downstream is
// convention-agnostic.
func NormalizeTelemetry(raw TelemetrySample, pbatPositiveIsCharge, pgridPositiveIsImport bool) TelemetrySample {
	out := raw
	if !pbatPositiveIsCharge {
		out.PBatW = -out.PBatW
	}
	if !pgridPositiveIsImport {
		out.PGridW = -out.PGridW
	}
	return out
}

// IsStale reports whether a sample observed at fetchedAt is too old to act
// on. The zero time means the sample was never observed.
func IsStale(fetchedAt time.Time, maxAge time.Duration, now time.Time) bool {
	if fetchedAt.IsZero() {
		return true
	}
	return now.Sub(fetchedAt) > maxAge
}
