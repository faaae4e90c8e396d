package goodwe

import "math"

// Runtime register maps per family. The DT/D-NS family exposes a 73-register
// block at logical 30100 with per-string voltage/current; the ET/EH family a
// 125-register block at 35100 with 32-bit per-string power registers. The
// family is discovered on the first runtime read per connection and cached
// alongside the addressing probe.
const (
	dtRuntimeBase  = 30100
	dtRuntimeCount = 73

	regVPV1  = 30103
	regIPV1  = 30104
	regVPV2  = 30105
	regIPV2  = 30106
	regVPV3  = 30107
	regIPV3  = 30108
	regGenW  = 30128
	regTempC = 30141
	regFeedW = 30196 // signed, outside the block, read separately

	etRuntimeBase  = 35100
	etRuntimeCount = 125

	regETPPV1  = 35105 // 32 bit, high word first
	regETPPV2  = 35109
	regETPPV3  = 35113
	regETPPV4  = 35117
	regETGenW  = 35138
	regETFeedW = 35140
	regETTempC = 35176
)

const (
	FamilyDT = "dt"
	FamilyET = "et"
)

// Runtime holds the decoded inverter runtime values used for status
// reporting. Control decisions never depend on these: the loop's telemetry
// comes from the telemetry source.
type Runtime struct {
	Family      string  `json:"family"`
	PVEstimateW float64 `json:"pv_estimate_w"`
	GenW        float64 `json:"gen_w"`
	FeedW       float64 `json:"feed_w"`
	FeedWValid  bool    `json:"feed_w_valid"`
	TempC       float64 `json:"temp_c"`
}

// ReadRuntime decodes the runtime block, trying the DT map first and falling
// back to the ET map. The family that answered is cached until the next
// reconnect.
func (c *Client) ReadRuntime() (*Runtime, error) {
	switch c.family {
	case FamilyDT:
		return c.readRuntimeDT()
	case FamilyET:
		return c.readRuntimeET()
	}

	rt, dtErr := c.readRuntimeDT()
	if dtErr == nil {
		c.family = FamilyDT
		return rt, nil
	}
	if rt, err := c.readRuntimeET(); err == nil {
		c.family = FamilyET
		return rt, nil
	}
	return nil, dtErr
}

// readRuntimeDT decodes the DT block. The PV estimate is derived from
// per-string voltage and current because the DT family exposes no direct PV
// power register.
func (c *Client) readRuntimeDT() (*Runtime, error) {
	regs, err := c.readBlockBestEffort(dtRuntimeBase, dtRuntimeCount)
	if err != nil {
		return nil, err
	}
	at := func(logical uint32) uint16 {
		return regs[logical-dtRuntimeBase]
	}

	vpv1 := float64(at(regVPV1)) / 10
	ipv1 := float64(at(regIPV1)) / 10
	vpv2 := float64(at(regVPV2)) / 10
	ipv2 := float64(at(regIPV2)) / 10
	vpv3 := float64(at(regVPV3)) / 10
	ipv3 := float64(at(regIPV3)) / 10

	rt := &Runtime{
		Family:      FamilyDT,
		PVEstimateW: math.Round(vpv1*ipv1 + vpv2*ipv2 + vpv3*ipv3),
		GenW:        float64(u16ToI16(at(regGenW))),
		TempC:       float64(u16ToI16(at(regTempC))) / 10,
	}

	// feed register is not exposed by every firmware
	if feed, err := c.readLogical(regFeedW); err == nil {
		rt.FeedW = float64(u16ToI16(feed))
		rt.FeedWValid = true
	}
	return rt, nil
}

// readRuntimeET decodes the ET block, which carries per-string power directly
// and the feed value inside the block.
func (c *Client) readRuntimeET() (*Runtime, error) {
	regs, err := c.readBlockBestEffort(etRuntimeBase, etRuntimeCount)
	if err != nil {
		return nil, err
	}
	at := func(logical uint32) uint16 {
		return regs[logical-etRuntimeBase]
	}
	pvString := func(logical uint32) float64 {
		v := int32(uint32(at(logical))<<16 | uint32(at(logical+1)))
		// idle strings can report small negative values
		return math.Max(0, float64(v))
	}

	return &Runtime{
		Family:      FamilyET,
		PVEstimateW: pvString(regETPPV1) + pvString(regETPPV2) + pvString(regETPPV3) + pvString(regETPPV4),
		GenW:        float64(u16ToI16(at(regETGenW))),
		FeedW:       float64(u16ToI16(at(regETFeedW))),
		FeedWValid:  true,
		TempC:       float64(u16ToI16(at(regETTempC))) / 10,
	}, nil
}
