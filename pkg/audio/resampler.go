package audio

// Resampler converts one fixed-size native-rate block into a 20 ms
// block at TargetSampleRate using linear interpolation.
//
// The transform is purely per-block: when the interpolation neighbor
// for an output sample would sit past the end of the block, the edge
// sample is flat-extended instead of reading into the next block. That
// flattens at most one sample at the trailing edge of each block and
// keeps the resampler free of cross-block state.
type Resampler struct {
	ratio     float64
	blockSize int
}

// NewResampler creates a resampler for blocks captured at nativeRate.
// The ratio nativeRate/TargetSampleRate is fixed at construction.
func NewResampler(nativeRate int) *Resampler {
	return &Resampler{
		ratio:     float64(nativeRate) / float64(TargetSampleRate),
		blockSize: InputBlockSize(nativeRate),
	}
}

// BlockSize returns the expected input block length in samples.
func (r *Resampler) BlockSize() int {
	return r.blockSize
}

// Resample maps one full input block to exactly OutputFrameSize float
// samples. The block must hold BlockSize samples.
func (r *Resampler) Resample(block []float32) []float32 {
	out := make([]float32, OutputFrameSize)
	for i := range out {
		idx := float64(i) * r.ratio
		i0 := int(idx)
		frac := float32(idx - float64(i0))

		s0 := block[i0]
		s1 := s0
		if i0+1 < len(block) {
			s1 = block[i0+1]
		}

		out[i] = s0 + (s1-s0)*frac
	}

	return out
}
