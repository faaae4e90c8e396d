package goodwe

import (
	"github.com/simonvetter/modbus"
)

// TestRegisterConn is an in-memory RegisterConn for tests. Holding and input
// register maps are independent; every write is appended to Writes.
type TestRegisterConn struct {
	Holding map[uint16]uint16
	Input   map[uint16]uint16

	Writes []RegisterWrite
	Opens  int
	Closes int

	OpenErr  error
	ReadErr  error
	WriteErr error
}

type RegisterWrite struct {
	Addr  uint16
	Value uint16
}

func NewTestRegisterConn() *TestRegisterConn {
	return &TestRegisterConn{
		Holding: map[uint16]uint16{},
		Input:   map[uint16]uint16{},
	}
}

func (c *TestRegisterConn) Open() error {
	c.Opens++
	return c.OpenErr
}

func (c *TestRegisterConn) Close() error {
	c.Closes++
	return nil
}

func (c *TestRegisterConn) bank(regType modbus.RegType) map[uint16]uint16 {
	if regType == modbus.INPUT_REGISTER {
		return c.Input
	}
	return c.Holding
}

func (c *TestRegisterConn) ReadRegister(addr uint16, regType modbus.RegType) (uint16, error) {
	if c.ReadErr != nil {
		return 0, c.ReadErr
	}
	v, ok := c.bank(regType)[addr]
	if !ok {
		return 0, modbus.ErrIllegalDataAddress
	}
	return v, nil
}

func (c *TestRegisterConn) ReadRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error) {
	if c.ReadErr != nil {
		return nil, c.ReadErr
	}
	bank := c.bank(regType)
	out := make([]uint16, quantity)
	for i := uint16(0); i < quantity; i++ {
		v, ok := bank[addr+i]
		if !ok {
			return nil, modbus.ErrIllegalDataAddress
		}
		out[i] = v
	}
	return out, nil
}

func (c *TestRegisterConn) WriteRegister(addr uint16, value uint16) error {
	if c.WriteErr != nil {
		return c.WriteErr
	}
	c.Holding[addr] = value
	c.Writes = append(c.Writes, RegisterWrite{Addr: addr, Value: value})
	return nil
}

func (c *TestRegisterConn) WriteRegisters(addr uint16, values []uint16) error {
	if c.WriteErr != nil {
		return c.WriteErr
	}
	for i, v := range values {
		c.Holding[addr+uint16(i)] = v
		c.Writes = append(c.Writes, RegisterWrite{Addr: addr + uint16(i), Value: v})
	}
	return nil
}

// LoadRuntimeBlock fills the input bank with a plausible DT runtime block at
// the given wire base (logical 30100).
func (c *TestRegisterConn) LoadRuntimeBlock(wireBase uint16) {
	for i := uint16(0); i < dtRuntimeCount; i++ {
		c.Input[wireBase+i] = 0
	}
	set := func(logical uint32, v uint16) {
		c.Input[wireBase+uint16(logical-dtRuntimeBase)] = v
	}
	set(regVPV1, 2405) // 240.5 V
	set(regIPV1, 52)   // 5.2 A
	set(regVPV2, 2398)
	set(regIPV2, 48)
	set(regGenW, 2380)
	set(regTempC, 417)
}

// LoadETRuntimeBlock fills the input bank with a plausible ET runtime block
// at the given wire base (logical 35100).
func (c *TestRegisterConn) LoadETRuntimeBlock(wireBase uint16) {
	for i := uint16(0); i < etRuntimeCount; i++ {
		c.Input[wireBase+i] = 0
	}
	set := func(logical uint32, v uint16) {
		c.Input[wireBase+uint16(logical-etRuntimeBase)] = v
	}
	set(regETPPV1+1, 1200) // low word, 1200 W
	set(regETPPV2+1, 800)
	set(regETGenW, 1980)
	set(regETFeedW, 0xFF6A) // -150 W
	set(regETTempC, 412)
}
