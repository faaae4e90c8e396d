package domain

// Control states recomputed every tick from current price and staleness.
// There is no hysteresis here; anti-oscillation lives in the actuation
// controller only.
const (
	StateNormalLimited = "normal_limited"
	StateFailSafeZero  = "fail_safe_zero"
	StateAllowFull     = "allow_full"
	// StateUnknown is recorded when tick evaluation itself fails; the loop
	// keeps running and the previous register state is left untouched.
	StateUnknown = "unknown"
)

// Decision is a pure function of the current samples, staleness flags and
// configuration. No hidden state.
type Decision struct {
	ExportCosts bool    `json:"export_costs"`
	TargetW     float64 `json:"target_w"`
	WantPct     float64 `json:"want_pct"`
	WantEnabled bool    `json:"want_enabled"`
	State       string  `json:"state"`
	Reason      string  `json:"reason"`
}
