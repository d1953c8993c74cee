package cpu

import "github.com/kestrelgb/dmgcore/bit"

// Flag bits of the F register.
const (
	zeroFlag      uint8 = 0x80
	subFlag       uint8 = 0x40
	halfCarryFlag uint8 = 0x20
	carryFlag     uint8 = 0x10
)

func (c *CPU) setFlag(flag uint8)   { c.f |= flag }
func (c *CPU) resetFlag(flag uint8) { c.f &^= flag }
func (c *CPU) isSet(flag uint8) bool { return c.f&flag != 0 }

func (c *CPU) setFlagToCondition(flag uint8, condition bool) {
	if condition {
		c.setFlag(flag)
	} else {
		c.resetFlag(flag)
	}
}

func (c *CPU) flagToBit(flag uint8) uint8 {
	if c.isSet(flag) {
		return 1
	}
	return 0
}

func (c *CPU) af() uint16 { return bit.Combine(c.a, c.f&0xF0) }
func (c *CPU) bc() uint16 { return bit.Combine(c.b, c.c) }
func (c *CPU) de() uint16 { return bit.Combine(c.d, c.e) }
func (c *CPU) hl() uint16 { return bit.Combine(c.h, c.l) }

func (c *CPU) setAF(v uint16) { c.a = bit.High(v); c.f = bit.Low(v) & 0xF0 }
func (c *CPU) setBC(v uint16) { c.b = bit.High(v); c.c = bit.Low(v) }
func (c *CPU) setDE(v uint16) { c.d = bit.High(v); c.e = bit.Low(v) }
func (c *CPU) setHL(v uint16) { c.h = bit.High(v); c.l = bit.Low(v) }
