package goodwe

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Export limiter holding registers shared by the DT and ET families.
const (
	RegExportSwitch   = 291 // 0 = limiter off, 1 = limiter on
	RegExportPct      = 292 // limit as percent of rated power
	RegExportPctTen   = 293 // limit as percent*10, finer resolution
	RegActiveLimitPct = 256 // active power limit percent
)

// LimitMode is one of the two mutually exclusive register write strategies.
// The mode is resolved once at startup; each variant owns its register set
// and write sequence.
type LimitMode interface {
	Name() string
	writePercent(c *Client, pct float64) error
}

// ActiveLimitMode writes the single active-power-limit register.
type ActiveLimitMode struct{}

func (ActiveLimitMode) Name() string { return "active_pct" }

func (ActiveLimitMode) writePercent(c *Client, pct float64) error {
	return c.writeHolding(RegActiveLimitPct, clampPctRegister(pct, 1))
}

// PercentMode writes the export percent register plus the percent-times-ten
// register for finer resolution.
type PercentMode struct{}

func (PercentMode) Name() string { return "export_pct" }

func (PercentMode) writePercent(c *Client, pct float64) error {
	if err := c.writeHolding(RegExportPct, clampPctRegister(pct, 1)); err != nil {
		return err
	}
	return c.writeHolding(RegExportPctTen, clampPctRegister(pct, 10))
}

func ParseLimitMode(name string) (LimitMode, error) {
	switch name {
	case "active_pct":
		return ActiveLimitMode{}, nil
	case "export_pct":
		return PercentMode{}, nil
	default:
		return nil, fmt.Errorf("goodwe: unknown limiter mode %q", name)
	}
}

func clampPctRegister(pct float64, scale float64) uint16 {
	v := math.Round(pct * scale)
	if v < 0 {
		v = 0
	}
	if v > 100*scale {
		v = 100 * scale
	}
	return uint16(v)
}

// LimiterState mirrors the device-side limiter registers.
type LimiterState struct {
	Enabled   bool    `json:"enabled"`
	ExportPct float64 `json:"export_pct"`
	ActivePct float64 `json:"active_pct"`
}

// Limiter owns the control connection. It is not safe for concurrent use;
// the caller must serialize access (one logical thread of control).
//
// The connection is acquired lazily on the first write, held while healthy
// and dropped on transient transport faults. After a fault, writes fail fast
// with ErrBackoffActive until the backoff window has passed; the window
// doubles on every consecutive fault up to a cap and resets to the minimum
// after the next successful write.
type Limiter struct {
	client *Client
	mode   LimitMode
	logger *zap.Logger

	connected  bool
	backoff    time.Duration
	minBackoff time.Duration
	maxBackoff time.Duration
	retryAt    time.Time

	now func() time.Time
}

func NewLimiter(client *Client, mode LimitMode, minBackoff, maxBackoff time.Duration, logger *zap.Logger) *Limiter {
	if maxBackoff < minBackoff {
		maxBackoff = minBackoff
	}
	return &Limiter{
		client:     client,
		mode:       mode,
		logger:     logger,
		backoff:    minBackoff,
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		now:        time.Now,
	}
}

// WriteLimit pushes a limit percentage and the limiter switch to the device.
// enabled=false turns the limiter switch off without touching the percent
// registers. Writing the same values twice is safe: the registers are plain
// holding registers with no side effects.
func (l *Limiter) WriteLimit(pct float64, enabled bool) error {
	if err := l.ensureOpen(); err != nil {
		return err
	}
	var err error
	if enabled {
		err = l.mode.writePercent(l.client, pct)
		if err == nil {
			err = l.client.writeHolding(RegExportSwitch, 1)
		}
	} else {
		err = l.client.writeHolding(RegExportSwitch, 0)
	}
	if err != nil {
		l.fault(err)
		return err
	}
	l.backoff = l.minBackoff
	return nil
}

// State reads back the limiter registers.
func (l *Limiter) State() (*LimiterState, error) {
	if err := l.ensureOpen(); err != nil {
		return nil, err
	}
	regs, err := l.client.readHoldings(RegExportSwitch, 3)
	if err != nil {
		l.fault(err)
		return nil, err
	}
	active, err := l.client.readHolding(RegActiveLimitPct)
	if err != nil {
		l.fault(err)
		return nil, err
	}
	return &LimiterState{
		Enabled:   regs[0] == 1,
		ExportPct: float64(regs[1]),
		ActivePct: float64(active),
	}, nil
}

// Runtime reads the decoded runtime block over the same connection.
func (l *Limiter) Runtime() (*Runtime, error) {
	if err := l.ensureOpen(); err != nil {
		return nil, err
	}
	rt, err := l.client.ReadRuntime()
	if err != nil {
		l.fault(err)
		return nil, err
	}
	return rt, nil
}

// CurrentBackoff exposes the pending reconnect delay, for observability.
func (l *Limiter) CurrentBackoff() time.Duration {
	if l.connected {
		return 0
	}
	return l.backoff
}

func (l *Limiter) Connected() bool {
	return l.connected
}

func (l *Limiter) Close() error {
	if !l.connected {
		return nil
	}
	l.connected = false
	return l.client.Close()
}

func (l *Limiter) ensureOpen() error {
	if l.connected {
		return nil
	}
	if l.now().Before(l.retryAt) {
		return ErrBackoffActive
	}
	if err := l.client.Open(); err != nil {
		l.armBackoff()
		if l.logger != nil {
			l.logger.Warn("limiter connect failed", zap.Error(err), zap.Duration("retry_in", l.retryAt.Sub(l.now())))
		}
		return err
	}
	l.connected = true
	return nil
}

func (l *Limiter) fault(err error) {
	if !IsTransient(err) {
		// protocol-level rejection, connection stays up
		return
	}
	_ = l.client.Close()
	l.connected = false
	l.armBackoff()
	if l.logger != nil {
		l.logger.Warn("limiter transport fault", zap.Error(err), zap.Duration("backoff", l.backoff))
	}
}

func (l *Limiter) armBackoff() {
	l.retryAt = l.now().Add(l.backoff)
	l.backoff *= 2
	if l.backoff > l.maxBackoff {
		l.backoff = l.maxBackoff
	}
}
