package audio

// Accumulator slices an arbitrarily chunked sample feed into fixed-size
// blocks, carrying the remainder between calls. Feeding chunks A then B
// yields exactly the block sequence of feeding the concatenation A+B:
// the emitted blocks never depend on how the input was chunked.
type Accumulator struct {
	blockSize int
	carry     []float32
}

// NewAccumulator creates an accumulator emitting blocks of blockSize
// samples.
func NewAccumulator(blockSize int) *Accumulator {
	return &Accumulator{
		blockSize: blockSize,
		carry:     make([]float32, 0, blockSize),
	}
}

// Append adds chunk to the carried samples and returns every complete
// block now available, in arrival order. The blocks are disjoint
// contiguous slices owned by the caller once returned. Samples short of
// a full block stay carried for the next call; a nil or empty chunk is
// a no-op.
func (a *Accumulator) Append(chunk []float32) [][]float32 {
	if len(chunk) == 0 {
		return nil
	}

	a.carry = append(a.carry, chunk...)

	n := len(a.carry) / a.blockSize
	if n == 0 {
		return nil
	}

	blocks := make([][]float32, n)
	for i := range blocks {
		blocks[i] = a.carry[i*a.blockSize : (i+1)*a.blockSize]
	}

	// The blocks keep the old backing array; the remainder moves to a
	// fresh buffer so later appends cannot scribble over emitted blocks.
	rest := len(a.carry) - n*a.blockSize
	tail := make([]float32, rest, a.blockSize)
	copy(tail, a.carry[n*a.blockSize:])
	a.carry = tail

	return blocks
}

// Pending returns the number of carried samples not yet forming a
// complete block. Always less than the block size.
func (a *Accumulator) Pending() int {
	return len(a.carry)
}
