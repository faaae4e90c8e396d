package service

import (
	"math"
	"time"

	"sunfence/internal/core/domain"
)

// ActuatorState is the only state that crosses tick boundaries. It is owned
// by the loop driver and passed through Plan explicitly; there is no hidden
// module-level state. The zero value means "never written", so the first
// tick always writes.
type ActuatorState struct {
	Initialized    bool
	LastWrittenPct float64
	LastEnabled    bool
	LastWriteTime  time.Time
	SmoothedPct    float64
}

// WritePlan is the actuation controller's verdict for one tick.
type WritePlan struct {
	Write   bool
	Pct     float64
	Enabled bool
	Skipped string // why no write was issued, empty when Write
}

// ActuationController turns a raw desired percentage into a bounded,
// smoothed, rate-limited write plan. It never overrides the safety decision,
// only suppresses redundant writes.
type ActuationController struct {
	// Smoothing in (0,1]; 1 means no smoothing.
	Smoothing        float64
	MinPctStep       float64
	MinWriteInterval time.Duration
}

// Plan decides whether a write is necessary and returns the updated state.
// Transitions into or out of the 0% / 100% / limiter-off boundary states
// always write immediately, bypassing smoothing and timers: those are
// safety-relevant transitions.
func (c *ActuationController) Plan(st ActuatorState, d domain.Decision, now time.Time) (ActuatorState, WritePlan) {
	want := math.Min(math.Max(d.WantPct, 0), 100)

	if !st.Initialized {
		return c.commit(st, want, d.WantEnabled, now), WritePlan{Write: true, Pct: want, Enabled: d.WantEnabled}
	}

	wantBoundary := atBoundary(want, d.WantEnabled)
	lastBoundary := atBoundary(st.LastWrittenPct, st.LastEnabled)
	changed := want != st.LastWrittenPct || d.WantEnabled != st.LastEnabled
	if d.WantEnabled != st.LastEnabled ||
		wantBoundary != lastBoundary ||
		(wantBoundary && lastBoundary && changed) {
		return c.commit(st, want, d.WantEnabled, now), WritePlan{Write: true, Pct: want, Enabled: d.WantEnabled}
	}

	st.SmoothedPct += c.Smoothing * (want - st.SmoothedPct)
	proposed := st.SmoothedPct

	elapsed := now.Sub(st.LastWriteTime)
	step := math.Abs(proposed - st.LastWrittenPct)
	if elapsed < c.MinWriteInterval && step <= c.MinPctStep {
		return st, WritePlan{Skipped: "below step and interval"}
	}

	st.LastWrittenPct = proposed
	st.LastEnabled = d.WantEnabled
	st.LastWriteTime = now
	return st, WritePlan{Write: true, Pct: proposed, Enabled: d.WantEnabled}
}

// commit records an immediate, unsmoothed write of want.
func (c *ActuationController) commit(st ActuatorState, want float64, enabled bool, now time.Time) ActuatorState {
	st.Initialized = true
	st.SmoothedPct = want
	st.LastWrittenPct = want
	st.LastEnabled = enabled
	st.LastWriteTime = now
	return st
}

func atBoundary(pct float64, enabled bool) bool {
	return !enabled || pct <= 0 || pct >= 100
}
