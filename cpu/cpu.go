// Package cpu implements the Sharp SM83 interpreter: registers, the 256
// primary and 256 CB-prefixed opcodes, and interrupt dispatch. Every memory
// access and internal delay goes through the Bus, which is what actually
// advances every other component in lockstep with the CPU.
package cpu

import "github.com/kestrelgb/dmgcore/addr"

// Bus is everything the CPU needs from the rest of the machine. A read or
// write clocks the whole system by one machine cycle as a side effect;
// Peek does not, and exists only for the interrupt-pending check between
// instructions.
type Bus interface {
	ClockRead(address uint16) uint8
	ClockWrite(address uint16, value uint8)
	ClockInternal()
	Peek(address uint16) uint8
}

// imeState models the EI instruction's one-instruction-delayed effect: EI
// doesn't enable interrupts immediately, it schedules them to turn on after
// the next instruction retires.
type imeState uint8

const (
	imeDisabled imeState = iota
	imePending
	imeEnabled
)

// CPU is the Sharp SM83 register file and execution state.
type CPU struct {
	a, f, b, c, d, e, h, l uint8
	sp, pc                 uint16

	bus Bus

	ime     imeState
	halted  bool
	haltBug bool

	lastOpcode uint8
	cycles     uint64

	// Breakpoint, if set, is called after any primary-page (not CB-prefixed)
	// instruction whose opcode matches BreakpointOpcode executes.
	// Acceptance-test harnesses use opcode 0x40
	// (LD B,B) as the canonical "test complete" signal.
	Breakpoint       func()
	BreakpointOpcode uint8
}

// New returns a CPU wired to the given bus, with registers zeroed. Callers
// that need the post-boot-ROM register snapshot should call SetPostBootState.
func New(bus Bus) *CPU {
	c := &CPU{BreakpointOpcode: 0x40}
	c.bus = &countingBus{inner: bus, cpu: c}
	return c
}

// Cycles returns the total number of machine cycles (bus accesses plus
// internal delays) executed since the CPU was created.
func (c *CPU) Cycles() uint64 { return c.cycles }

// countingBus wraps the real Bus so every clocking call is also reflected in
// the CPU's own cycle counter, keeping it equal by construction to the
// number of bus-clock ticks (testable property: cycle conservation).
type countingBus struct {
	inner Bus
	cpu   *CPU
}

func (b *countingBus) ClockRead(address uint16) uint8 {
	b.cpu.cycles++
	return b.inner.ClockRead(address)
}

func (b *countingBus) ClockWrite(address uint16, value uint8) {
	b.cpu.cycles++
	b.inner.ClockWrite(address, value)
}

func (b *countingBus) ClockInternal() {
	b.cpu.cycles++
	b.inner.ClockInternal()
}

func (b *countingBus) Peek(address uint16) uint8 {
	return b.inner.Peek(address)
}

// SetPostBootState loads the register values the DMG boot ROM leaves behind
// when it hands control to the cartridge, so emulation can start without
// running the boot ROM itself.
func (c *CPU) SetPostBootState() {
	c.setAF(0x01B0)
	c.setBC(0x0013)
	c.setDE(0x00D8)
	c.setHL(0x014D)
	c.sp = 0xFFFE
	c.pc = 0x0100
	c.ime = imeDisabled
}

// PC and SP are exposed read-only for debugging and tests.
func (c *CPU) PC() uint16 { return c.pc }
func (c *CPU) SP() uint16 { return c.sp }

// Step executes exactly one instruction, or one halted idle cycle, or one
// interrupt dispatch; when an interrupt is dispatched, that dispatch is the
// whole Step and no instruction runs.
func (c *CPU) Step() {
	if c.dispatchInterrupt() {
		return
	}

	// wasPending marks this as the one instruction following EI: if it's
	// still true after the instruction runs (nothing, e.g. DI, changed ime
	// away from pending), EI's enable takes effect now, after this
	// instruction has retired, not before it ran.
	wasPending := c.ime == imePending

	if c.halted {
		c.bus.ClockInternal()
		return
	}

	opcode := c.fetch()
	c.lastOpcode = opcode
	if opcode == 0xCB {
		cb := c.fetch()
		opcodeCBMap[cb](c)
	} else {
		opcodeMap[opcode](c)

		if opcode == c.BreakpointOpcode && c.Breakpoint != nil {
			c.Breakpoint()
		}
	}

	if wasPending && c.ime == imePending {
		c.ime = imeEnabled
	}
}

// fetch reads the byte at PC and advances it, except immediately after the
// HALT bug triggers, where the same byte is read twice without advancing.
func (c *CPU) fetch() uint8 {
	value := c.bus.ClockRead(c.pc)
	if c.haltBug {
		c.haltBug = false
		return value
	}
	c.pc++
	return value
}

func (c *CPU) fetch16() uint16 {
	low := c.fetch()
	high := c.fetch()
	return uint16(high)<<8 | uint16(low)
}

// pendingInterrupts peeks IF&IE without clocking the bus; the check itself
// takes no machine cycle, only the resulting dispatch or HALT wake does.
func (c *CPU) pendingInterrupts() uint8 {
	return c.bus.Peek(addr.IF) & c.bus.Peek(addr.IE) & 0x1F
}

// dispatchInterrupt services the highest-priority pending interrupt if IME
// is enabled, and always wakes the CPU from HALT when one is pending
// regardless of IME. Returns true if it consumed this Step as a dispatch.
func (c *CPU) dispatchInterrupt() bool {
	pending := c.pendingInterrupts()

	if c.halted && pending != 0 {
		c.halted = false
	}

	if c.ime != imeEnabled || pending == 0 {
		return false
	}

	for bitPos := uint8(0); bitPos < 5; bitPos++ {
		if pending&(1<<bitPos) == 0 {
			continue
		}
		interrupt := addr.Interrupt(bitPos)
		c.ime = imeDisabled
		c.bus.ClockInternal()
		c.bus.ClockInternal()
		c.pushPC()
		ifValue := c.bus.Peek(addr.IF) &^ (1 << bitPos)
		c.bus.ClockWrite(addr.IF, ifValue)
		c.pc = interrupt.Vector()
		c.bus.ClockInternal()
		return true
	}
	return false
}

func (c *CPU) pushPC() {
	c.sp--
	c.bus.ClockWrite(c.sp, uint8(c.pc>>8))
	c.sp--
	c.bus.ClockWrite(c.sp, uint8(c.pc))
}
