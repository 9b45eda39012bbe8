package gateway

import "github.com/Raikerian/go-voice-intake/internal/notes"

// Client message types. Capture clients speak JSON over the WebSocket
// text channel; native-rate audio travels as binary frames (float32
// little-endian) and never appears here.
const (
	MessageTypeSessionStart   = "session.start"
	MessageTypeAudioCommit    = "audio.commit"
	MessageTypeResponseCreate = "response.create"
	MessageTypeText           = "text"
	MessageTypeSessionContext = "session.context"
	MessageTypeSessionEnd     = "session.end"
)

// Server message types.
const (
	MessageTypeSessionCreated = "session.created"
	MessageTypeTelemetry      = "telemetry"
	MessageTypeAudioDelta     = "audio.delta"
	MessageTypeTranscript     = "transcript"
	MessageTypeNotesUpdated   = "notes.updated"
	MessageTypeSOAPDraft      = "soap.draft"
	MessageTypeUsage          = "usage"
	MessageTypeContextReady   = "session.context.ready"
	MessageTypeError          = "error"
	MessageTypeSessionEnded   = "session.ended"
)

// ClientMessage is the envelope for every JSON message a capture client
// sends. Fields beyond Type are populated per message type.
type ClientMessage struct {
	Type         string         `json:"type"`
	NativeRate   int            `json:"native_rate,omitempty"`
	PatientID    string         `json:"patient_id,omitempty"`
	Snapshot     map[string]any `json:"snapshot,omitempty"`
	Locale       string         `json:"locale,omitempty"`
	Notes        string         `json:"notes,omitempty"`
	Text         string         `json:"text,omitempty"`
	Instructions string         `json:"instructions,omitempty"`
}

// SessionCreatedMessage acknowledges session.start.
type SessionCreatedMessage struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id"`
	NativeRate int    `json:"native_rate"`
	Model      string `json:"model"`
	Voice      string `json:"voice"`
}

// TelemetryMessage forwards a pipeline event to the client.
type TelemetryMessage struct {
	Type       string `json:"type"`
	Kind       string `json:"kind"`
	NativeRate int    `json:"native_rate,omitempty"`
	Frames     int    `json:"frames,omitempty"`
}

// AudioDeltaMessage carries a base64 PCM16 chunk of model speech.
type AudioDeltaMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// TranscriptMessage carries one side of the spoken conversation.
type TranscriptMessage struct {
	Type   string `json:"type"`
	Role   string `json:"role"`
	Text   string `json:"text"`
	Final  bool   `json:"final"`
	ItemID string `json:"item_id,omitempty"`
}

// NotesUpdatedMessage pushes the current working notes after a
// save_observation call or a final flush.
type NotesUpdatedMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Notes     string `json:"notes"`
	Message   string `json:"message,omitempty"`
}

// SOAPDraftMessage previews a finalized SOAP draft for the clinician.
type SOAPDraftMessage struct {
	Type      string       `json:"type"`
	SessionID string       `json:"session_id"`
	Draft     *notes.Draft `json:"draft"`
	Message   string       `json:"message,omitempty"`
}

// UsageMessage reports cumulative token usage and cost after a model
// response completes. Sent only when cost tracking is enabled.
type UsageMessage struct {
	Type              string  `json:"type"`
	InputTokens       int     `json:"input_tokens"`
	OutputTokens      int     `json:"output_tokens"`
	InputAudioTokens  int     `json:"input_audio_tokens"`
	OutputAudioTokens int     `json:"output_audio_tokens"`
	CostUSD           float64 `json:"cost_usd"`
}

// ContextReadyMessage acknowledges a session.context update.
type ContextReadyMessage struct {
	Type           string `json:"type"`
	SessionID      string `json:"session_id"`
	SnapshotLoaded bool   `json:"snapshot_loaded"`
	PatientID      string `json:"patient_id,omitempty"`
}

// ErrorMessage surfaces a gateway or upstream error to the client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SessionEndedMessage is the last message on a connection.
type SessionEndedMessage struct {
	Type            string  `json:"type"`
	SessionID       string  `json:"session_id"`
	Reason          string  `json:"reason"`
	DurationSeconds float64 `json:"duration_seconds"`
	FramesSent      int     `json:"frames_sent"`
	Usage           Usage   `json:"usage"`
	CostUSD         float64 `json:"cost_usd"`
}

func newTelemetryMessage(kind string, nativeRate, frames int) TelemetryMessage {
	return TelemetryMessage{
		Type:       MessageTypeTelemetry,
		Kind:       kind,
		NativeRate: nativeRate,
		Frames:     frames,
	}
}

func newErrorMessage(message string) ErrorMessage {
	return ErrorMessage{Type: MessageTypeError, Message: message}
}
