package audio

const (
	// cyclesPerStep is the number of dots per frame-sequencer tick (512Hz).
	cyclesPerStep = 8192

	// waveRAMSize is the size of wave pattern RAM in bytes (16 bytes = 32 nibbles).
	waveRAMSize = 16

	// wavePeriodCorruptionWindow is how many dots away from its next sample
	// read channel 3 must be for a retrigger to corrupt wave RAM.
	wavePeriodCorruptionWindow = 2
)
