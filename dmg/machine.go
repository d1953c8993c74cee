package dmg

import (
	"log/slog"

	"github.com/kestrelgb/dmgcore/audio"
	"github.com/kestrelgb/dmgcore/cpu"
	"github.com/kestrelgb/dmgcore/memory"
	"github.com/kestrelgb/dmgcore/video"
)

// samplesPerFrame approximates the 44.1kHz host sample rate divided by the
// real 59.73Hz DMG frame rate; the APU's own sample buffer absorbs the
// fractional remainder across frames.
const samplesPerFrame = 738

// Machine is a complete DMG-class console: CPU, bus-synchronized memory
// map, and the peripherals it owns, ready to run from the post-boot-ROM
// register state.
type Machine struct {
	cpu  *cpu.CPU
	mmu  *memory.MMU
	bus  *bus
	cart *memory.Cartridge

	audioSink *audio.Sink
	frameSink *video.Sink

	maxCycles  uint64
	frameReady bool
	exited     bool
}

// New loads romData as a cartridge and returns a Machine ready to run,
// starting from the register state the boot ROM leaves behind.
func New(romData []byte, cfg Config) (*Machine, error) {
	cart, err := memory.NewCartridge(romData)
	if err != nil {
		return nil, err
	}
	slog.Info("cartridge loaded", "title", cart.Title, "kind", cart.Kind, "battery", cart.HasBattery)

	mmu := memory.New(cart)
	m := &Machine{
		mmu:       mmu,
		cart:      cart,
		audioSink: audio.NewSink(cfg.AudioSinkDepth),
		frameSink: video.NewSink(cfg.FrameSinkDepth),
		maxCycles: cfg.MaxCycles,
	}
	m.audioSink.SyncAudio = cfg.SyncAudio
	m.frameSink.SyncVideo = cfg.SyncVideo
	m.bus = newBus(mmu)
	m.cpu = cpu.New(m.bus)
	m.cpu.SetPostBootState()

	mmu.PPU.FrameReady = func() { m.frameReady = true }

	return m, nil
}

// RunFrame executes CPU instructions until the PPU signals a completed
// frame (or MaxCycles is reached), pushes the frame and its audio onto
// their sinks, and reports whether the run loop should keep going.
func (m *Machine) RunFrame() bool {
	if m.exited {
		return false
	}

	m.frameReady = false
	for !m.frameReady {
		if m.maxCycles > 0 && m.cpu.Cycles() >= m.maxCycles {
			m.exited = true
			return false
		}
		m.cpu.Step()
	}

	m.frameSink.Push(m.mmu.PPU.FrameBuffer().Snapshot())
	m.audioSink.Push(audio.Chunk{Samples: m.mmu.APU.GetSamples(samplesPerFrame)})
	return true
}

// SetBreakpoint installs a callback fired every time the CPU retires the
// given opcode; acceptance-test harnesses use opcode 0x40 (LD B,B).
func (m *Machine) SetBreakpoint(opcode uint8, fn func()) {
	m.cpu.BreakpointOpcode = opcode
	m.cpu.Breakpoint = fn
}

// Cycles returns the total number of machine cycles executed so far.
func (m *Machine) Cycles() uint64 { return m.cpu.Cycles() }

// FrameBuffer returns the PPU's current framebuffer of 2-bit shade indices.
func (m *Machine) FrameBuffer() *video.FrameBuffer {
	return m.mmu.PPU.FrameBuffer()
}

// AudioSink exposes the channel host code drains finished audio chunks from.
func (m *Machine) AudioSink() *audio.Sink {
	return m.audioSink
}

// FrameSink exposes the channel host code drains finished frames from.
func (m *Machine) FrameSink() *video.Sink {
	return m.frameSink
}

func (m *Machine) PressButton(b memory.Button)   { m.mmu.PressButton(b) }
func (m *Machine) ReleaseButton(b memory.Button) { m.mmu.ReleaseButton(b) }

// SaveRAM returns battery-backed cartridge RAM for persistence, or nil if
// the cartridge has no battery.
func (m *Machine) SaveRAM() []byte {
	return m.mmu.FlushSave()
}

// LoadRAM restores previously persisted battery-backed cartridge RAM.
func (m *Machine) LoadRAM(data []byte) {
	m.mmu.LoadSave(data)
}

// Title is the cartridge's header title string.
func (m *Machine) Title() string {
	return m.cart.Title
}

// CPU and MMU are exposed for debugging and tests.
func (m *Machine) CPU() *cpu.CPU    { return m.cpu }
func (m *Machine) MMU() *memory.MMU { return m.mmu }
