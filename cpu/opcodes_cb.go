package cpu

// The CB-prefixed page is fully regular: bits 7-6 select the instruction
// family, bits 5-3 select the bit index (or, in the rotate/shift family, the
// sub-operation), and bits 2-0 select the register, in the same B C D E H L
// (HL) A order as the primary page.
var opcodeCBMap [256]Opcode

func init() {
	registerCBRotateTable()
	registerCBBitTable()
	registerCBResTable()
	registerCBSetTable()
}

// registerCBRotateTable fills 0x00-0x3F: RLC RRC RL RR SLA SRA SWAP SRL.
func registerCBRotateTable() {
	ops := [8]func(*CPU, uint8) uint8{
		(*CPU).rlc, (*CPU).rrc, (*CPU).rl, (*CPU).rr,
		(*CPU).sla, (*CPU).sra, (*CPU).swap, (*CPU).srl,
	}
	for sub := uint8(0); sub < 8; sub++ {
		fn := ops[sub]
		for reg := uint8(0); reg < 8; reg++ {
			r := reg
			opcodeCBMap[sub*8+r] = func(c *CPU) {
				c.writeReg8(r, fn(c, c.readReg8(r)))
			}
		}
	}
}

// registerCBBitTable fills 0x40-0x7F: BIT b,r. Read-only, no write-back.
func registerCBBitTable() {
	for bitIdx := uint8(0); bitIdx < 8; bitIdx++ {
		b := bitIdx
		for reg := uint8(0); reg < 8; reg++ {
			r := reg
			opcodeCBMap[0x40+b*8+r] = func(c *CPU) {
				c.bitTest(b, c.readReg8(r))
			}
		}
	}
}

// registerCBResTable fills 0x80-0xBF: RES b,r.
func registerCBResTable() {
	for bitIdx := uint8(0); bitIdx < 8; bitIdx++ {
		b := bitIdx
		for reg := uint8(0); reg < 8; reg++ {
			r := reg
			opcodeCBMap[0x80+b*8+r] = func(c *CPU) {
				c.writeReg8(r, c.readReg8(r)&^(1<<b))
			}
		}
	}
}

// registerCBSetTable fills 0xC0-0xFF: SET b,r.
func registerCBSetTable() {
	for bitIdx := uint8(0); bitIdx < 8; bitIdx++ {
		b := bitIdx
		for reg := uint8(0); reg < 8; reg++ {
			r := reg
			opcodeCBMap[0xC0+b*8+r] = func(c *CPU) {
				c.writeReg8(r, c.readReg8(r)|(1<<b))
			}
		}
	}
}
