package audio

import (
	"testing"

	"github.com/kestrelgb/dmgcore/addr"
	"github.com/stretchr/testify/assert"
)

func newEnabledAPU() *APU {
	a := New()
	a.WriteRegister(addr.NR52, 0x80)
	return a
}

func TestLengthCounterDisablesChannelOnFrameSequencerStepZero(t *testing.T) {
	a := newEnabledAPU()
	a.WriteRegister(addr.NR12, 0xF0) // max volume, DAC on
	a.WriteRegister(addr.NR11, 0b0011_1111) // length = 64-63 = 1
	a.WriteRegister(addr.NR13, 0x00)
	a.WriteRegister(addr.NR14, 0b1100_0000) // trigger, length enable

	ch1, _, _, _ := a.GetChannelStatus()
	assert.True(t, ch1)

	a.Step(cyclesPerStep) // frame-sequencer step 0: length clocks

	ch1, _, _, _ = a.GetChannelStatus()
	assert.False(t, ch1, "length reaching zero on a 256Hz tick disables the channel")
}

func TestEnvelopeRampsUpOnFrameSequencerStepSeven(t *testing.T) {
	a := newEnabledAPU()
	a.WriteRegister(addr.NR12, 0b0000_1001) // volume 0, envelope up, pace 1
	a.WriteRegister(addr.NR14, 0b1000_0000) // trigger

	a.Step(cyclesPerStep * 8) // one full pass through all 8 sequencer steps

	vol1, _, _, _ := a.GetChannelVolumes()
	assert.Equal(t, uint8(1), vol1)
}

func TestSweepAdvancesFrequencyOnFrameSequencerStepTwo(t *testing.T) {
	a := newEnabledAPU()
	a.WriteRegister(addr.NR10, 0b0_001_0001) // period 1, add mode, shift 1
	a.WriteRegister(addr.NR12, 0xF0)
	a.WriteRegister(addr.NR13, 0xE8) // low byte of 1000
	a.WriteRegister(addr.NR14, 0b1000_0011) // trigger, high bits of 1000 (0x3E8)

	a.Step(cyclesPerStep * 3) // steps 0, 1, 2: sweep fires on step 2

	newPeriod := uint16(a.NR13) | uint16(a.NR14&0x07)<<8
	assert.Equal(t, uint16(1500), newPeriod)
}

func TestSweepOverflowDisablesChannelOnTrigger(t *testing.T) {
	a := newEnabledAPU()
	a.WriteRegister(addr.NR10, 0b0_001_0001) // period 1, add mode, shift 1
	a.WriteRegister(addr.NR12, 0xF0)
	a.WriteRegister(addr.NR13, 0xD0) // low byte of 2000
	a.WriteRegister(addr.NR14, 0b1000_0111) // trigger, high bits of 2000 (0x7D0): overflows immediately

	ch1, _, _, _ := a.GetChannelStatus()
	assert.False(t, ch1, "a sweep overflow computed at trigger time disables the channel immediately")
}

func TestMasterDisableSilencesAllChannels(t *testing.T) {
	a := newEnabledAPU()
	a.WriteRegister(addr.NR12, 0xF0)
	a.WriteRegister(addr.NR14, 0b1000_0000)

	ch1, _, _, _ := a.GetChannelStatus()
	assert.True(t, ch1)

	a.WriteRegister(addr.NR52, 0x00)
	ch1, _, _, _ = a.GetChannelStatus()
	assert.False(t, ch1)
}

func TestWaveRAMReadsRawStorageWhenChannelThreeOff(t *testing.T) {
	a := New()
	a.WriteRegister(addr.NR52, 0x80)
	a.WriteRegister(addr.WaveRAMStart, 0xAB)
	assert.Equal(t, uint8(0xAB), a.ReadRegister(addr.WaveRAMStart))
}

func fillWaveRAM(a *APU) {
	for i := uint16(0); i < waveRAMSize; i++ {
		a.WriteRegister(addr.WaveRAMStart+i, uint8(0x10+i))
	}
}

// TestRetriggerNearSampleReadRewritesByteZero covers the channel-3 wave-RAM
// corruption quirk when the next byte being read falls within the first
// four.
func TestRetriggerNearSampleReadRewritesByteZero(t *testing.T) {
	a := newEnabledAPU()
	a.WriteRegister(addr.NR30, 0x80) // DAC on
	fillWaveRAM(a)
	a.WriteRegister(addr.NR34, 0b1000_0000) // first trigger: starts playback cleanly

	a.ch[2].waveIndex = 1 // mid-playback, about to read nibble at byte 1
	a.ch[2].freqTimer = 2 // within the corruption window

	a.WriteRegister(addr.NR34, (a.NR34&0x07)|0x80) // retrigger

	assert.Equal(t, uint8(0x11), a.waveRAM[0], "byte 0 is overwritten with the byte about to be read")
}

// TestRetriggerNearSampleReadRewritesAlignedGroup covers the corruption quirk
// when the next byte read falls outside the first four: the whole aligned
// group of four is copied to the start of wave RAM.
func TestRetriggerNearSampleReadRewritesAlignedGroup(t *testing.T) {
	a := newEnabledAPU()
	a.WriteRegister(addr.NR30, 0x80)
	fillWaveRAM(a)
	a.WriteRegister(addr.NR34, 0b1000_0000)

	a.ch[2].waveIndex = 14 // next nibble index 15 -> byte 7, aligned group [4..7]
	a.ch[2].freqTimer = 1

	a.WriteRegister(addr.NR34, (a.NR34&0x07)|0x80)

	assert.Equal(t, [4]uint8{0x14, 0x15, 0x16, 0x17}, [4]uint8{a.waveRAM[0], a.waveRAM[1], a.waveRAM[2], a.waveRAM[3]})
}

// TestRetriggerFarFromSampleReadDoesNotCorrupt confirms the quirk only
// triggers within the documented timing window.
func TestRetriggerFarFromSampleReadDoesNotCorrupt(t *testing.T) {
	a := newEnabledAPU()
	a.WriteRegister(addr.NR30, 0x80)
	fillWaveRAM(a)
	a.WriteRegister(addr.NR34, 0b1000_0000)

	a.ch[2].waveIndex = 1
	a.ch[2].freqTimer = 50 // far from the next read

	a.WriteRegister(addr.NR34, (a.NR34&0x07)|0x80)

	assert.Equal(t, uint8(0x10), a.waveRAM[0], "no corruption outside the read window")
}
