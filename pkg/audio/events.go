package audio

// EventKind discriminates pipeline telemetry events.
type EventKind string

const (
	// EventInit is emitted once per stream and carries the native rate
	// the stream was constructed with.
	EventInit EventKind = "init"

	// EventTick is emitted roughly once per TickInterval processed
	// blocks and carries the block count since the previous tick.
	EventTick EventKind = "tick"
)

// Event is a diagnostic signal from the pipeline. Events observe the
// data path and never affect it.
type Event struct {
	Kind       EventKind `json:"kind"`
	Frames     int       `json:"frames,omitempty"`
	NativeRate int       `json:"nativeRate,omitempty"`
}

// TickCounter counts processed blocks and periodically emits a tick.
type TickCounter struct {
	interval int
	count    int
}

// NewTickCounter creates a counter that ticks every interval blocks.
func NewTickCounter(interval int) *TickCounter {
	return &TickCounter{interval: interval}
}

// Add records the blocks processed by one call. Once the running count
// reaches the interval it returns a tick event reporting that count and
// resets. The reset is a hard zero, not the overflow remainder: a call
// that crosses the interval by more than one block under-reports the
// extras on the next tick.
func (t *TickCounter) Add(blocks int) (Event, bool) {
	t.count += blocks
	if t.count < t.interval {
		return Event{}, false
	}

	ev := Event{Kind: EventTick, Frames: t.count}
	t.count = 0

	return ev, true
}

// Count returns the blocks recorded since the last tick.
func (t *TickCounter) Count() int {
	return t.count
}
