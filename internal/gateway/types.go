package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/Raikerian/go-voice-intake/pkg/audio"
	"github.com/Raikerian/go-voice-intake/pkg/util"
)

// Session represents an active intake session bridging one browser
// socket to one OpenAI Realtime conversation.
type Session struct {
	mu            sync.Mutex // Protect concurrent access to fields
	ID            string
	PatientID     string
	Locale        string
	StartTime     time.Time
	LastActivity  time.Time
	LastAudioTime time.Time // Last time capture audio was received
	State         SessionState
	Snapshot      map[string]any     // Patient context pinned into the conversation
	CancelFunc    context.CancelFunc // Cancel function for session context

	// Capture pipeline state
	Stream   *audio.Stream
	Recorder *wavRecorder // nil unless debug recording is enabled

	// Upstream provider connection
	Provider RealtimeProvider

	// Outbound message queue toward the browser socket
	Outbox       chan any
	outboxClosed bool

	// Debounced notes preview pushes
	NotesPush *util.Debouncer

	// Cost tracking
	Usage       Usage   // Cumulative token usage
	SessionCost float64 // Running total cost
	Model       string  // Model being used

	FramesSent  int // 20ms frames forwarded upstream
	Transcripts int // Completed transcript lines, user and assistant

	endOnce sync.Once
}

// SessionState represents the current state of an intake session.
type SessionState int

const (
	SessionStateStarting SessionState = iota
	SessionStateActive
	SessionStateEnding
	SessionStateEnded
)

// SessionStatus provides a read-only view of session status.
type SessionStatus struct {
	Active      bool      `json:"active"`
	SessionID   string    `json:"session_id"`
	PatientID   string    `json:"patient_id,omitempty"`
	StartTime   time.Time `json:"start_time"`
	NativeRate  int       `json:"native_rate"`
	FramesSent  int       `json:"frames_sent"`
	Transcripts int       `json:"transcripts"`
	SessionCost float64   `json:"cost_usd"`
	Model       string    `json:"model"`
}

// SetContext updates the patient context attached to the session.
// Empty fields leave the existing values untouched.
func (s *Session) SetContext(patientID, locale string, snapshot map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if patientID != "" {
		s.PatientID = patientID
	}
	if locale != "" {
		s.Locale = locale
	}
	if snapshot != nil {
		s.Snapshot = snapshot
	}
}

// Context returns the patient context for snapshot pins and finalization.
func (s *Session) Context() (patientID, locale string, snapshot map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.PatientID, s.Locale, s.Snapshot
}

// enqueue places a message on the outbox without blocking. It reports
// false when the queue is full or already closed.
func (s *Session) enqueue(msg any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outboxClosed {
		return false
	}

	select {
	case s.Outbox <- msg:
		return true
	default:
		return false
	}
}

// closeOutbox closes the outbox exactly once, letting the write pump
// drain and shut the socket down.
func (s *Session) closeOutbox() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.outboxClosed {
		s.outboxClosed = true
		close(s.Outbox)
	}
}

// closed reports whether the outbox has been shut.
func (s *Session) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.outboxClosed
}
