// Package memory implements the DMG address space: cartridge decode through
// the MBC family, work/high RAM, the timer, and the register windows owned
// by the PPU, APU, and serial port.
package memory

import (
	"fmt"
	"log/slog"

	"github.com/kestrelgb/dmgcore/addr"
	"github.com/kestrelgb/dmgcore/audio"
	"github.com/kestrelgb/dmgcore/bit"
	"github.com/kestrelgb/dmgcore/serial"
	"github.com/kestrelgb/dmgcore/video"
)

type region uint8

const (
	regionROM region = iota
	regionVRAM
	regionExtRAM
	regionWRAM
	regionEcho
	regionOAM
	regionIO
)

// Button identifies one of the eight joypad inputs.
type Button uint8

const (
	ButtonRight Button = iota
	ButtonLeft
	ButtonUp
	ButtonDown
	ButtonA
	ButtonB
	ButtonSelect
	ButtonStart
)

// MMU is the DMG address space: it decodes every CPU access into the right
// backing store or peripheral, and owns the devices that aren't big enough
// to need their own package (timer, DMA, joypad).
type MMU struct {
	cart *Cartridge
	mbc  MBC

	wram [0x2000]uint8
	hram [0x7F]uint8
	ie   uint8
	ifr  uint8

	regionMap [256]region

	PPU    *video.PPU
	APU    *audio.APU
	Serial *serial.Shifter
	Timer  Timer

	joypadButtons uint8
	joypadDpad    uint8
	p1            uint8

	dma dmaState
}

// dmaState tracks an in-flight OAM-DMA transfer: one byte copied per machine
// cycle, 160 bytes total, starting the cycle after the triggering write.
type dmaState struct {
	active      bool
	pending     bool
	sourceHigh  uint8
	sourceIndex uint8
}

// New creates an MMU with a cartridge already loaded.
func New(cart *Cartridge) *MMU {
	m := &MMU{
		cart:          cart,
		mbc:           NewMBC(cart),
		PPU:           video.NewPPU(),
		APU:           audio.New(),
		Serial:        serial.NewShifter(),
		joypadButtons: 0x0F,
		joypadDpad:    0x0F,
	}
	m.Timer.RequestInterrupt = func() { m.RequestInterrupt(addr.TimerInterrupt) }
	m.Serial.RequestInterrupt = func() { m.RequestInterrupt(addr.SerialInterrupt) }
	m.PPU.RequestInterrupt = m.RequestInterrupt
	initRegionMap(m)
	return m
}

func initRegionMap(m *MMU) {
	for i := 0x00; i <= 0x7F; i++ {
		m.regionMap[i] = regionROM
	}
	for i := 0x80; i <= 0x9F; i++ {
		m.regionMap[i] = regionVRAM
	}
	for i := 0xA0; i <= 0xBF; i++ {
		m.regionMap[i] = regionExtRAM
	}
	for i := 0xC0; i <= 0xDF; i++ {
		m.regionMap[i] = regionWRAM
	}
	for i := 0xE0; i <= 0xFD; i++ {
		m.regionMap[i] = regionEcho
	}
	m.regionMap[0xFE] = regionOAM
	m.regionMap[0xFF] = regionIO
}

// Step advances every peripheral this MMU owns by one machine cycle's worth
// of dots (DMA, then PPU, then timer, then MBC, then APU, then serial), the
// fixed order every bus access clocks the hardware in.
func (m *MMU) Step() {
	m.stepDMA()
	m.PPU.Step(4)
	m.Timer.Step()
	m.Timer.Step()
	m.Timer.Step()
	m.Timer.Step()
	m.mbc.Clock()
	m.APU.Step(4)
	m.Serial.Step()
	m.Serial.Step()
	m.Serial.Step()
	m.Serial.Step()
}

func (m *MMU) stepDMA() {
	if m.dma.pending {
		m.dma.pending = false
		m.dma.active = true
		m.dma.sourceIndex = 0
		m.PPU.SetDMAActive(true)
		return
	}
	if !m.dma.active {
		return
	}
	src := uint16(m.dma.sourceHigh)<<8 | uint16(m.dma.sourceIndex)
	value := m.readForDMA(src)
	m.PPU.DMAWriteOAM(m.dma.sourceIndex, value)
	m.dma.sourceIndex++
	if m.dma.sourceIndex >= 160 {
		m.dma.active = false
		m.PPU.SetDMAActive(false)
	}
}

// readForDMA reads source bytes directly, bypassing the OAM CPU-lock (DMA
// itself is exempt) but otherwise going through the normal region decode.
func (m *MMU) readForDMA(address uint16) uint8 {
	switch m.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		return m.mbc.Read(address)
	case regionVRAM:
		return m.PPU.ReadVRAM(address)
	case regionWRAM:
		return m.wram[address-0xC000]
	default:
		return m.wram[address%0x2000]
	}
}

// RequestInterrupt sets the matching bit in IF.
func (m *MMU) RequestInterrupt(i addr.Interrupt) {
	m.ifr = bit.Set(i.Bit(), m.ifr)
}

// IF and IE are exposed directly for the CPU's interrupt dispatch loop.
func (m *MMU) IF() uint8     { return m.ifr | 0xE0 }
func (m *MMU) SetIF(v uint8) { m.ifr = v & 0x1F }
func (m *MMU) IE() uint8     { return m.ie }

func (m *MMU) Read(address uint16) uint8 {
	switch m.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		return m.mbc.Read(address)
	case regionVRAM:
		return m.PPU.ReadVRAM(address)
	case regionWRAM:
		return m.wram[address-0xC000]
	case regionEcho:
		return m.wram[address-0xE000]
	case regionOAM:
		if address <= 0xFE9F {
			return m.PPU.ReadOAM(address)
		}
		return 0xFF
	case regionIO:
		return m.readIO(address)
	default:
		panic(fmt.Sprintf("memory: read from unmapped address 0x%04X", address))
	}
}

func (m *MMU) readIO(address uint16) uint8 {
	switch {
	case address == addr.P1:
		return m.p1
	case address == addr.SB || address == addr.SC:
		return m.Serial.Read(address)
	case address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC:
		return m.Timer.Read(address)
	case address == addr.IF:
		return m.IF()
	case address == addr.IE:
		return m.IE()
	case address >= addr.AudioStart && address <= addr.AudioEnd:
		return m.APU.ReadRegister(address)
	case address >= addr.LCDC && address <= addr.WX, address == addr.DMA:
		if address == addr.DMA {
			return m.dma.sourceHigh
		}
		return m.PPU.ReadRegister(address)
	case address >= 0xFF80:
		return m.hram[address-0xFF80]
	default:
		return 0xFF
	}
}

func (m *MMU) Write(address uint16, value uint8) {
	switch m.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		m.mbc.Write(address, value)
	case regionVRAM:
		m.PPU.WriteVRAM(address, value)
	case regionWRAM:
		m.wram[address-0xC000] = value
	case regionEcho:
		m.wram[address-0xE000] = value
	case regionOAM:
		if address <= 0xFE9F {
			m.PPU.WriteOAM(address, value)
		}
	case regionIO:
		m.writeIO(address, value)
	default:
		panic(fmt.Sprintf("memory: write to unmapped address 0x%04X", address))
	}
}

func (m *MMU) writeIO(address uint16, value uint8) {
	switch {
	case address == addr.P1:
		m.p1 = value & 0x30
		m.updateJoypad()
	case address == addr.SB || address == addr.SC:
		m.Serial.Write(address, value)
	case address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC:
		m.Timer.Write(address, value)
	case address == addr.IF:
		m.SetIF(value)
	case address == addr.IE:
		m.ie = value
	case address >= addr.AudioStart && address <= addr.AudioEnd:
		m.APU.WriteRegister(address, value)
	case address == addr.DMA:
		m.dma.sourceHigh = value
		m.dma.pending = true
	case address >= addr.LCDC && address <= addr.WX:
		m.PPU.WriteRegister(address, value)
	case address >= 0xFF80:
		m.hram[address-0xFF80] = value
	default:
		// unmapped IO register, ignored
	}
}

// updateJoypad recomputes the low nibble of P1 from the selection bits and
// current button state. 0 = pressed, 1 = released; bits 6-7 always read 1.
func (m *MMU) updateJoypad() {
	result := uint8(0b1100_0000) | (m.p1 & 0b0011_0000)

	selectDpad := !bit.IsSet(4, m.p1)
	selectButtons := !bit.IsSet(5, m.p1)

	switch {
	case selectButtons && !selectDpad:
		result |= m.joypadButtons & 0x0F
	case selectDpad && !selectButtons:
		result |= m.joypadDpad & 0x0F
	case selectButtons && selectDpad:
		result |= m.joypadButtons & m.joypadDpad & 0x0F
	default:
		result |= 0x0F
	}

	m.p1 = result
}

// PressButton marks a button as pressed and raises the joypad interrupt on
// the high-to-low transition.
func (m *MMU) PressButton(b Button) {
	prevButtons, prevDpad := m.joypadButtons, m.joypadDpad
	m.setButton(b, false)
	if (prevButtons&^m.joypadButtons)|(prevDpad&^m.joypadDpad) != 0 {
		m.RequestInterrupt(addr.JoypadInterrupt)
	}
	m.updateJoypad()
}

// ReleaseButton marks a button as released.
func (m *MMU) ReleaseButton(b Button) {
	m.setButton(b, true)
	m.updateJoypad()
}

func (m *MMU) setButton(b Button, released bool) {
	var target *uint8
	var bitIdx uint8
	switch b {
	case ButtonRight:
		target, bitIdx = &m.joypadDpad, 0
	case ButtonLeft:
		target, bitIdx = &m.joypadDpad, 1
	case ButtonUp:
		target, bitIdx = &m.joypadDpad, 2
	case ButtonDown:
		target, bitIdx = &m.joypadDpad, 3
	case ButtonA:
		target, bitIdx = &m.joypadButtons, 0
	case ButtonB:
		target, bitIdx = &m.joypadButtons, 1
	case ButtonSelect:
		target, bitIdx = &m.joypadButtons, 2
	case ButtonStart:
		target, bitIdx = &m.joypadButtons, 3
	default:
		return
	}
	if released {
		*target = bit.Set(bitIdx, *target)
	} else {
		*target = bit.Reset(bitIdx, *target)
	}
}

// FlushSave persists battery-backed RAM, returning nil if the cartridge has
// no battery.
func (m *MMU) FlushSave() []byte {
	if !m.mbc.BatteryBacked() {
		return nil
	}
	ram := m.mbc.RAM()
	out := make([]byte, len(ram))
	copy(out, ram)
	return out
}

// LoadSave restores previously persisted battery-backed RAM.
func (m *MMU) LoadSave(data []byte) {
	if !m.mbc.BatteryBacked() {
		return
	}
	ram := m.mbc.RAM()
	n := copy(ram, data)
	if n < len(data) {
		slog.Warn("save data larger than cartridge RAM, truncating", "ram_size", len(ram), "save_size", len(data))
	}
}
