package goodwe

import (
	"fmt"
	"math"
	"time"

	"github.com/simonvetter/modbus"
)

// RegisterConn is the narrow register-level surface this package needs from a
// Modbus transport. Everything above it is independent of client-library
// differences; tests plug in a fake.
type RegisterConn interface {
	Open() error
	Close() error
	ReadRegister(addr uint16, regType modbus.RegType) (uint16, error)
	ReadRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error)
	WriteRegister(addr uint16, value uint16) error
	WriteRegisters(addr uint16, values []uint16) error
}

type Instrument struct {
	RecordTime func(fnName string, elapsed time.Duration)
}

// Client wraps a register-level connection and handles GoodWe addressing
// quirks: depending on firmware, runtime blocks answer at the logical 3xxxx
// address or offset by 30000/30001, via input or holding function codes.
// The probe runs on first runtime access per connection and remembers the
// combination that worked.
type Client struct {
	conn       RegisterConn
	instrument []Instrument

	probed    bool
	wireDelta int32
	blockType modbus.RegType
	family    string
}

func NewClient(host string, port uint, unitID uint8, timeout time.Duration, instrument *Instrument) (*Client, error) {
	mc, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", host, port),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	if unitID > 0 {
		if err := mc.SetUnitId(unitID); err != nil {
			return nil, err
		}
	}
	var inst []Instrument
	if instrument != nil {
		inst = append(inst, *instrument)
	}
	return &Client{conn: mc, instrument: inst}, nil
}

// NewClientWithConn builds a client on an externally provided connection.
// Used by tests and by callers that manage the transport themselves.
func NewClientWithConn(conn RegisterConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) Open() error {
	c.probed = false
	c.family = ""
	return c.conn.Open()
}

func (c *Client) Close() error {
	c.probed = false
	c.family = ""
	return c.conn.Close()
}

func (c *Client) readHolding(addr uint16) (uint16, error) {
	defer recordTimer("ReadHolding", c.instrument)()
	return c.conn.ReadRegister(addr, modbus.HOLDING_REGISTER)
}

func (c *Client) readHoldings(addr uint16, quantity uint16) ([]uint16, error) {
	defer recordTimer("ReadHoldings", c.instrument)()
	return c.conn.ReadRegisters(addr, quantity, modbus.HOLDING_REGISTER)
}

func (c *Client) writeHolding(addr uint16, value uint16) error {
	defer recordTimer("WriteHolding", c.instrument)()
	return c.conn.WriteRegister(addr, value)
}

// candidateWireAddrs lists the wire addresses a logical register may answer
// at, most likely first.
func candidateWireAddrs(logical uint32) []uint16 {
	cands := []uint32{logical}
	if logical >= 30000 {
		cands = append(cands, logical-30000)
	}
	if logical >= 30001 {
		cands = append(cands, logical-30001)
	}
	var out []uint16
	for _, a := range cands {
		if a > math.MaxUint16 {
			continue
		}
		w := uint16(a)
		if !containsU16(out, w) {
			out = append(out, w)
		}
	}
	return out
}

func containsU16(s []uint16, v uint16) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

// readBlockBestEffort reads a logical register block, probing addressing and
// function-code combinations on the first call after (re)connect.
func (c *Client) readBlockBestEffort(logicalBase uint32, quantity uint16) ([]uint16, error) {
	defer recordTimer("ReadBlock", c.instrument)()

	if c.probed {
		wire := uint16(int32(logicalBase) - c.wireDelta)
		return c.conn.ReadRegisters(wire, quantity, c.blockType)
	}

	var lastErr error
	for _, wire := range candidateWireAddrs(logicalBase) {
		for _, regType := range []modbus.RegType{modbus.INPUT_REGISTER, modbus.HOLDING_REGISTER} {
			regs, err := c.conn.ReadRegisters(wire, quantity, regType)
			if err != nil {
				lastErr = err
				continue
			}
			c.probed = true
			c.wireDelta = int32(logicalBase) - int32(wire)
			c.blockType = regType
			return regs, nil
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("goodwe: no wire address candidate for logical %d", logicalBase)
	}
	return nil, lastErr
}

// readLogical reads a single register using the addressing discovered by the
// block probe.
func (c *Client) readLogical(logical uint32) (uint16, error) {
	if !c.probed {
		regs, err := c.readBlockBestEffort(logical, 1)
		if err != nil {
			return 0, err
		}
		return regs[0], nil
	}
	wire := uint16(int32(logical) - c.wireDelta)
	return c.conn.ReadRegister(wire, c.blockType)
}

func u16ToI16(u uint16) int16 {
	return int16(u)
}

func recordTimer(name string, instrument []Instrument) func() {
	if len(instrument) == 0 {
		return func() {}
	}
	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, elapsed)
		}
	}
}
