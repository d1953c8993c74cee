package dmg

// Config controls how a Machine paces itself against real time and the
// audio/video boundary overflow behavior.
type Config struct {
	// SyncAudio makes the audio sink block rather than drop samples when
	// the host is slower to drain it than the core produces them.
	SyncAudio bool

	// SyncVideo makes the frame sink block rather than drop frames when
	// the host is slower to drain it than the core produces them.
	SyncVideo bool

	// AudioSinkDepth is the number of audio chunks buffered between the
	// core and host before SyncAudio/drop behavior kicks in.
	AudioSinkDepth int

	// FrameSinkDepth is the number of frames buffered between the core and
	// host before SyncVideo/drop behavior kicks in.
	FrameSinkDepth int

	// MaxCycles stops RunFrame as soon as the CPU's cycle counter reaches
	// this value, even mid-frame; a frame cut short is not pushed to the
	// sinks. Zero means unbounded.
	MaxCycles uint64
}

// DefaultConfig returns sensible defaults for interactive play.
func DefaultConfig() Config {
	return Config{
		SyncAudio:      false,
		SyncVideo:      false,
		AudioSinkDepth: 4,
		FrameSinkDepth: 1,
	}
}
