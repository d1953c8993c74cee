// Package dmg wires the CPU, memory map, and peripherals into a runnable
// machine: cartridge loading, the boot sequence, the frame-paced run loop,
// and battery-save persistence.
package dmg

import (
	"github.com/kestrelgb/dmgcore/cpu"
	"github.com/kestrelgb/dmgcore/memory"
)

// bus adapts the MMU to cpu.Bus: every clocking call performs its access
// and then steps the MMU once, which is what actually advances the PPU,
// timer, MBC, APU, and serial port by one machine cycle each.
type bus struct {
	mmu *memory.MMU
}

func newBus(mmu *memory.MMU) *bus {
	return &bus{mmu: mmu}
}

func (b *bus) ClockRead(address uint16) uint8 {
	value := b.mmu.Read(address)
	b.mmu.Step()
	return value
}

func (b *bus) ClockWrite(address uint16, value uint8) {
	b.mmu.Write(address, value)
	b.mmu.Step()
}

func (b *bus) ClockInternal() {
	b.mmu.Step()
}

// Peek reads without clocking the bus; the CPU uses it only to check
// IF&IE between instructions, which isn't itself a hardware bus access.
func (b *bus) Peek(address uint16) uint8 {
	return b.mmu.Read(address)
}

var _ cpu.Bus = (*bus)(nil)
