// Package audio implements the streaming capture pipeline: native-rate
// float samples in, fixed 20 ms frames of 16 kHz little-endian PCM16
// out. The package is host-agnostic; a transport layer drives it by
// calling Stream.Process once per captured chunk.
package audio

// Format constants shared by the pipeline and its transports.
const (
	// TargetSampleRate is the fixed rate required by the speech
	// transport downstream.
	TargetSampleRate = 16_000 // Hz

	// FrameMillis is the duration of one block/frame.
	FrameMillis = 20

	// OutputFrameSize is the number of samples in one emitted frame
	// (20 ms at 16 kHz).
	OutputFrameSize = TargetSampleRate * FrameMillis / 1000 // 320

	// OutputFrameBytes is the wire size of one frame (16-bit PCM).
	OutputFrameBytes = OutputFrameSize * 2

	// TickInterval is the number of processed blocks between telemetry
	// tick events (~1 s at 20 ms per block).
	TickInterval = 50

	// blocksPerSecond derives the input block size from a native rate.
	blocksPerSecond = 1000 / FrameMillis
)

// InputBlockSize returns the number of native-rate samples in one 20 ms
// input block, or 0 when the rate cannot be divided into whole blocks.
func InputBlockSize(nativeRate int) int {
	if nativeRate <= 0 || nativeRate%blocksPerSecond != 0 {
		return 0
	}

	return nativeRate / blocksPerSecond
}
