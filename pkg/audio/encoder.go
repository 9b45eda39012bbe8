package audio

import "math"

// EncodePCM16 converts bounded float samples to signed 16-bit PCM.
// Each sample is clamped to [-1, 1] first; non-negative values scale by
// 32767 and negative values by 32768, the conventional full-range
// mapping for signed 16-bit audio.
func EncodePCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}

		if s >= 0 {
			out[i] = int16(math.Round(float64(s) * 32767))
		} else {
			out[i] = int16(math.Round(float64(s) * 32768))
		}
	}

	return out
}

// EncodeFrame clamps, scales and serializes one resampled block into a
// little-endian PCM16 wire frame.
func EncodeFrame(samples []float32) []byte {
	return PCMInt16ToLE(EncodePCM16(samples))
}
