package goodwe

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLimiter(conn *TestRegisterConn, mode LimitMode) (*Limiter, *time.Time) {
	client := NewClientWithConn(conn)
	l := NewLimiter(client, mode, 1*time.Second, 8*time.Second, zap.NewNop())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestWriteLimitPercentMode(t *testing.T) {
	require := require.New(t)

	conn := NewTestRegisterConn()
	l, _ := newTestLimiter(conn, PercentMode{})

	require.NoError(l.WriteLimit(42.5, true))

	// percent, percent*10, then the switch last
	require.Equal([]RegisterWrite{
		{Addr: RegExportPct, Value: 43},
		{Addr: RegExportPctTen, Value: 425},
		{Addr: RegExportSwitch, Value: 1},
	}, conn.Writes)
}

func TestWriteLimitActiveMode(t *testing.T) {
	require := require.New(t)

	conn := NewTestRegisterConn()
	l, _ := newTestLimiter(conn, ActiveLimitMode{})

	require.NoError(l.WriteLimit(80, true))

	require.Equal([]RegisterWrite{
		{Addr: RegActiveLimitPct, Value: 80},
		{Addr: RegExportSwitch, Value: 1},
	}, conn.Writes)
}

func TestWriteLimitDisableOnlyTouchesSwitch(t *testing.T) {
	require := require.New(t)

	conn := NewTestRegisterConn()
	l, _ := newTestLimiter(conn, PercentMode{})

	require.NoError(l.WriteLimit(55, false))

	require.Equal([]RegisterWrite{
		{Addr: RegExportSwitch, Value: 0},
	}, conn.Writes)
}

func TestWriteLimitClampsPercent(t *testing.T) {
	require := require.New(t)

	conn := NewTestRegisterConn()
	l, _ := newTestLimiter(conn, PercentMode{})

	require.NoError(l.WriteLimit(250, true))
	require.Equal(uint16(100), conn.Writes[0].Value)
	require.Equal(uint16(1000), conn.Writes[1].Value)

	conn.Writes = nil
	require.NoError(l.WriteLimit(-10, true))
	require.Equal(uint16(0), conn.Writes[0].Value)
	require.Equal(uint16(0), conn.Writes[1].Value)
}

func TestBackoffDoublesAndFailsFast(t *testing.T) {
	require := require.New(t)

	conn := NewTestRegisterConn()
	conn.OpenErr = errors.New("connection refused")
	l, now := newTestLimiter(conn, PercentMode{})
	t0 := *now

	// first failure arms the minimum window
	require.Error(l.WriteLimit(50, true))
	assert.Equal(t, 2*time.Second, l.CurrentBackoff())

	// inside the window, fail fast without touching the transport
	opens := conn.Opens
	*now = t0.Add(500 * time.Millisecond)
	require.ErrorIs(l.WriteLimit(50, true), ErrBackoffActive)
	assert.Equal(t, opens, conn.Opens)

	// past the window, retry and double again
	*now = t0.Add(1500 * time.Millisecond)
	require.Error(l.WriteLimit(50, true))
	assert.Equal(t, 4*time.Second, l.CurrentBackoff())

	// window never exceeds the cap
	for i := 0; i < 6; i++ {
		*now = now.Add(10 * time.Second)
		require.Error(l.WriteLimit(50, true))
	}
	assert.LessOrEqual(t, l.CurrentBackoff(), 8*time.Second)
}

func TestBackoffResetsAfterSuccessfulWrite(t *testing.T) {
	require := require.New(t)

	conn := NewTestRegisterConn()
	conn.OpenErr = errors.New("connection refused")
	l, now := newTestLimiter(conn, PercentMode{})

	require.Error(l.WriteLimit(50, true))
	*now = now.Add(10 * time.Second)
	require.Error(l.WriteLimit(50, true))
	require.Equal(4*time.Second, l.CurrentBackoff())

	conn.OpenErr = nil
	*now = now.Add(10 * time.Second)
	require.NoError(l.WriteLimit(50, true))
	require.True(l.Connected())

	// a transient fault now starts again from the minimum window
	conn.WriteErr = io.EOF
	require.Error(l.WriteLimit(50, true))
	require.False(l.Connected())
	require.Equal(2*time.Second, l.CurrentBackoff())
}

func TestProtocolRejectionKeepsConnection(t *testing.T) {
	require := require.New(t)

	conn := NewTestRegisterConn()
	l, _ := newTestLimiter(conn, PercentMode{})

	require.NoError(l.WriteLimit(50, true))

	conn.WriteErr = modbus.ErrIllegalDataAddress
	err := l.WriteLimit(60, true)
	require.Error(err)
	require.NotErrorIs(err, ErrBackoffActive)
	require.True(l.Connected())

	// no backoff window, the next write goes straight through
	conn.WriteErr = nil
	require.NoError(l.WriteLimit(60, true))
}

func TestStateReadsBackRegisters(t *testing.T) {
	require := require.New(t)

	conn := NewTestRegisterConn()
	conn.Holding[RegExportSwitch] = 1
	conn.Holding[RegExportPct] = 35
	conn.Holding[RegExportPctTen] = 350
	conn.Holding[RegActiveLimitPct] = 70
	l, _ := newTestLimiter(conn, PercentMode{})

	st, err := l.State()
	require.NoError(err)
	require.True(st.Enabled)
	require.Equal(35.0, st.ExportPct)
	require.Equal(70.0, st.ActivePct)
}
