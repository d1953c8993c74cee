package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBus is a minimal flat-memory Bus for exercising the CPU in isolation,
// with IF/IE backed by plain bytes at their real addresses.
type fakeBus struct {
	mem    [0x10000]uint8
	cycles int
}

func newFakeBus() *fakeBus { return &fakeBus{} }

func (b *fakeBus) ClockRead(address uint16) uint8 {
	b.cycles++
	return b.mem[address]
}

func (b *fakeBus) ClockWrite(address uint16, value uint8) {
	b.cycles++
	b.mem[address] = value
}

func (b *fakeBus) ClockInternal() { b.cycles++ }

func (b *fakeBus) Peek(address uint16) uint8 { return b.mem[address] }

func newTestCPU(program ...uint8) (*CPU, *fakeBus) {
	bus := newFakeBus()
	for i, b := range program {
		bus.mem[0x0100+i] = b
	}
	c := New(bus)
	c.pc = 0x0100
	return c, bus
}

func TestLoadImmediateAndRegisterToRegister(t *testing.T) {
	c, _ := newTestCPU(0x06, 0x42, 0x48) // LD B,0x42 ; LD C,B
	c.Step()
	assert.Equal(t, uint8(0x42), c.b)
	c.Step()
	assert.Equal(t, uint8(0x42), c.c)
}

func TestIncDecFlags(t *testing.T) {
	c, _ := newTestCPU(0x3C) // INC A
	c.a = 0xFF
	c.Step()
	assert.Equal(t, uint8(0x00), c.a)
	assert.True(t, c.isSet(zeroFlag))
	assert.True(t, c.isSet(halfCarryFlag))
	assert.False(t, c.isSet(subFlag))
}

func TestAddToAHalfAndFullCarry(t *testing.T) {
	c, _ := newTestCPU()
	c.a = 0x0F
	c.addToA(0x01, false)
	assert.Equal(t, uint8(0x10), c.a)
	assert.True(t, c.isSet(halfCarryFlag))
	assert.False(t, c.isSet(carryFlag))

	c.a = 0xFF
	c.addToA(0x01, false)
	assert.Equal(t, uint8(0x00), c.a)
	assert.True(t, c.isSet(zeroFlag))
	assert.True(t, c.isSet(carryFlag))
}

func TestDAAAfterBCDAddition(t *testing.T) {
	c, _ := newTestCPU()
	c.a = 0x09
	c.addToA(0x08, false) // 0x09 + 0x08 = 0x11, half carry set
	c.daa()
	assert.Equal(t, uint8(0x17), c.a)
}

func TestJrTakenAndCycleCost(t *testing.T) {
	c, bus := newTestCPU(0x18, 0x02) // JR +2
	c.Step()
	assert.Equal(t, uint16(0x0104), c.pc)
	assert.Equal(t, 3, bus.cycles) // opcode fetch + offset fetch + internal delay
}

func TestCallAndRet(t *testing.T) {
	c, bus := newTestCPU(0xCD, 0x00, 0x02) // CALL 0x0200
	bus.mem[0x0200] = 0xC9                 // RET
	c.sp = 0xFFFE
	c.Step()
	assert.Equal(t, uint16(0x0200), c.pc)
	assert.Equal(t, uint16(0xFFFC), c.sp)

	c.Step()
	assert.Equal(t, uint16(0x0103), c.pc)
	assert.Equal(t, uint16(0xFFFE), c.sp)
}

func TestHaltWakesOnPendingInterruptRegardlessOfIME(t *testing.T) {
	c, bus := newTestCPU(0x76) // HALT
	c.ime = imeDisabled
	c.Step()
	assert.True(t, c.halted)

	bus.mem[0xFF0F] = 0x01
	bus.mem[0xFFFF] = 0x01
	c.Step()
	assert.False(t, c.halted)
}

func TestEIDelaysEnableByOneInstruction(t *testing.T) {
	c, _ := newTestCPU(0xFB, 0x00, 0x00) // EI ; NOP ; NOP
	c.Step()
	assert.Equal(t, imePending, c.ime)
	c.Step() // the NOP after EI retires; IME becomes enabled only now
	assert.Equal(t, imeEnabled, c.ime)
}

func TestEIDoesNotAllowInterruptBeforeNextInstructionRetires(t *testing.T) {
	c, bus := newTestCPU(0xFB, 0x00, 0x00, 0x00) // EI ; NOP ; NOP ; NOP
	c.sp = 0xFFFE
	bus.mem[0xFF0F] = 0x01 // VBlank pending throughout
	bus.mem[0xFFFF] = 0x01

	c.Step() // EI: ime becomes pending, not yet enabled
	assert.Equal(t, imePending, c.ime)

	c.Step() // the NOP immediately after EI must run uninterrupted
	assert.Equal(t, uint16(0x0102), c.pc, "the instruction right after EI must retire, not be replaced by a dispatch")
	assert.Equal(t, imeEnabled, c.ime)

	c.Step() // only now may the pending interrupt be serviced
	assert.Equal(t, uint16(0x0040), c.pc, "interrupt dispatches only once the post-EI instruction has retired")
}

func TestEIThenDIKeepsInterruptsDisabled(t *testing.T) {
	c, bus := newTestCPU(0xFB, 0xF3, 0x00) // EI ; DI ; NOP
	c.sp = 0xFFFE
	bus.mem[0xFF0F] = 0x01
	bus.mem[0xFFFF] = 0x01

	c.Step() // EI
	c.Step() // DI: retires without being preempted, and wins over EI's pending enable
	assert.Equal(t, imeDisabled, c.ime)

	c.Step() // NOP: no interrupt should fire, IME stays disabled
	assert.Equal(t, uint16(0x0103), c.pc)
	assert.Equal(t, imeDisabled, c.ime)
}

func TestInterruptDispatchPriorityAndIFClear(t *testing.T) {
	c, bus := newTestCPU(0x00)
	c.ime = imeEnabled
	c.sp = 0xFFFE
	bus.mem[0xFF0F] = 0x07 // VBlank, LCD, Timer pending
	bus.mem[0xFFFF] = 0x07

	c.Step()
	assert.Equal(t, uint16(0x0040), c.pc) // VBlank vector first
	assert.Equal(t, uint8(0x06), bus.mem[0xFF0F]&0x07)

	c.pc = 0x0100
	c.ime = imeEnabled
	c.Step()
	assert.Equal(t, uint16(0x0048), c.pc) // LCD STAT vector next
}

func TestIllegalOpcodePanics(t *testing.T) {
	c, _ := newTestCPU(0xD3)
	require.Panics(t, func() { c.Step() })
}

func TestBreakpointFiresOnConfiguredOpcode(t *testing.T) {
	c, _ := newTestCPU(0x40) // LD B,B
	fired := false
	c.Breakpoint = func() { fired = true }
	c.BreakpointOpcode = 0x40
	c.Step()
	assert.True(t, fired)
}

func TestCyclesAccumulateAcrossSteps(t *testing.T) {
	c, _ := newTestCPU(0x00, 0x00, 0x00)
	c.Step()
	c.Step()
	c.Step()
	assert.Equal(t, uint64(3), c.Cycles())
}

func TestSetPostBootState(t *testing.T) {
	c, _ := newTestCPU()
	c.SetPostBootState()
	assert.Equal(t, uint16(0x01B0), c.af())
	assert.Equal(t, uint16(0x0013), c.bc())
	assert.Equal(t, uint16(0x00D8), c.de())
	assert.Equal(t, uint16(0x014D), c.hl())
	assert.Equal(t, uint16(0xFFFE), c.sp)
	assert.Equal(t, uint16(0x0100), c.pc)
}
