package goodwe

import (
	"testing"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/require"
)

func TestCandidateWireAddrs(t *testing.T) {
	require := require.New(t)

	require.Equal([]uint16{30100, 100, 99}, candidateWireAddrs(30100))
	require.Equal([]uint16{291}, candidateWireAddrs(291))
}

func TestReadRuntimeProbesOffsetAddressing(t *testing.T) {
	require := require.New(t)

	conn := NewTestRegisterConn()
	conn.LoadRuntimeBlock(100) // logical 30100 answers at wire 100
	c := NewClientWithConn(conn)
	require.NoError(c.Open())

	rt, err := c.ReadRuntime()
	require.NoError(err)

	// 240.5V*5.2A + 239.8V*4.8A
	require.Equal(2402.0, rt.PVEstimateW)
	require.Equal(2380.0, rt.GenW)
	require.Equal(41.7, rt.TempC)
	require.False(rt.FeedWValid)

	// the probe result is cached for the rest of the connection
	require.True(c.probed)
	require.Equal(int32(30000), c.wireDelta)
	require.Equal(modbus.INPUT_REGISTER, c.blockType)
	require.Equal(FamilyDT, c.family)
}

func TestReadRuntimeETFallback(t *testing.T) {
	require := require.New(t)

	conn := NewTestRegisterConn()
	conn.LoadETRuntimeBlock(5100) // logical 35100 answers at wire 5100
	c := NewClientWithConn(conn)
	require.NoError(c.Open())

	rt, err := c.ReadRuntime()
	require.NoError(err)

	require.Equal(FamilyET, rt.Family)
	require.Equal(2000.0, rt.PVEstimateW) // 1200 + 800
	require.Equal(1980.0, rt.GenW)
	require.Equal(-150.0, rt.FeedW)
	require.True(rt.FeedWValid)
	require.Equal(41.2, rt.TempC)

	// the ET family sticks for the rest of the connection
	require.Equal(FamilyET, c.family)
	require.Equal(int32(30000), c.wireDelta)
}

func TestReadRuntimeZeroBasedOffset(t *testing.T) {
	require := require.New(t)

	conn := NewTestRegisterConn()
	conn.LoadRuntimeBlock(99) // some firmwares shift by one
	c := NewClientWithConn(conn)
	require.NoError(c.Open())

	_, err := c.ReadRuntime()
	require.NoError(err)
	require.Equal(int32(30001), c.wireDelta)
}

func TestReadRuntimeFeedRegister(t *testing.T) {
	require := require.New(t)

	conn := NewTestRegisterConn()
	conn.LoadRuntimeBlock(100)
	conn.Input[regFeedW-30000] = 0xFF9C // -100 W, exporting counted negative
	c := NewClientWithConn(conn)
	require.NoError(c.Open())

	rt, err := c.ReadRuntime()
	require.NoError(err)
	require.True(rt.FeedWValid)
	require.Equal(-100.0, rt.FeedW)
}

func TestProbeResetOnReconnect(t *testing.T) {
	require := require.New(t)

	conn := NewTestRegisterConn()
	conn.LoadRuntimeBlock(100)
	c := NewClientWithConn(conn)
	require.NoError(c.Open())

	_, err := c.ReadRuntime()
	require.NoError(err)
	require.True(c.probed)
	require.Equal(FamilyDT, c.family)

	require.NoError(c.Close())
	require.False(c.probed)
	require.Empty(c.family)
}
