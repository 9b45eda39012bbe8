package audio

import (
	"errors"
	"fmt"
)

// ErrInvalidSampleRate is returned by NewStream for rates that cannot
// produce whole 20 ms blocks.
var ErrInvalidSampleRate = errors.New("native rate must be a positive multiple of 50 Hz")

// Stream is one capture pipeline instance: it accumulates native-rate
// samples into 20 ms blocks, resamples each block to TargetSampleRate
// and encodes it as a little-endian PCM16 frame.
//
// A Stream owns its carry buffer and tick counter exclusively and is
// not safe for concurrent use: the host calls Process from a single
// goroutine, once per captured chunk. There is no flush on teardown; a
// remainder shorter than one block is discarded with the stream, a
// bounded loss of under 20 ms of trailing audio.
type Stream struct {
	nativeRate int
	blockSize  int

	acc    *Accumulator
	res    *Resampler
	ticker *TickCounter

	pending []Event
}

// NewStream constructs a pipeline for the given native capture rate.
// The rate is bound for the lifetime of the stream; an init event is
// queued at construction and delivered with the events of the first
// Process call.
func NewStream(nativeRate int) (*Stream, error) {
	blockSize := InputBlockSize(nativeRate)
	if blockSize == 0 {
		return nil, fmt.Errorf("%w: got %d Hz", ErrInvalidSampleRate, nativeRate)
	}

	return &Stream{
		nativeRate: nativeRate,
		blockSize:  blockSize,
		acc:        NewAccumulator(blockSize),
		res:        NewResampler(nativeRate),
		ticker:     NewTickCounter(TickInterval),
		pending:    []Event{{Kind: EventInit, NativeRate: nativeRate}},
	}, nil
}

// NativeRate returns the capture rate the stream was constructed with.
func (s *Stream) NativeRate() int {
	return s.nativeRate
}

// BlockSize returns the native-rate samples consumed per output frame.
func (s *Stream) BlockSize() int {
	return s.blockSize
}

// Pending returns the carried samples not yet forming a block.
func (s *Stream) Pending() int {
	return s.acc.Pending()
}

// Process runs one scheduler quantum: append the chunk, drain every
// complete block through resample and encode, and collect telemetry.
// Frames come back in strict arrival order, each a fresh
// OutputFrameBytes buffer whose ownership transfers to the caller.
// Process never fails; an empty or nil chunk produces no frames but
// still drains queued events. Work per call is O(len(chunk)).
func (s *Stream) Process(chunk []float32) ([][]byte, []Event) {
	events := s.pending
	s.pending = nil

	blocks := s.acc.Append(chunk)
	if len(blocks) == 0 {
		return nil, events
	}

	frames := make([][]byte, 0, len(blocks))
	for _, block := range blocks {
		frames = append(frames, EncodeFrame(s.res.Resample(block)))
	}

	if ev, ok := s.ticker.Add(len(blocks)); ok {
		events = append(events, ev)
	}

	return frames, events
}
