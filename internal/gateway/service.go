package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Raikerian/go-voice-intake/internal/config"
	"github.com/Raikerian/go-voice-intake/internal/metrics"
	"github.com/Raikerian/go-voice-intake/internal/notes"
	"github.com/Raikerian/go-voice-intake/internal/visit"
	"github.com/Raikerian/go-voice-intake/pkg/audio"
	pkgopenai "github.com/Raikerian/go-voice-intake/pkg/openai"
	"github.com/Raikerian/go-voice-intake/pkg/util"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum capture message size allowed from peer.
	maxMessageSize = 1 << 20

	// Outbound message queue depth per session.
	outboxSize = 256
)

// Service bridges capture clients to the OpenAI Realtime API: it owns
// the live sessions, runs the audio pipeline on inbound chunks, executes
// intake tool calls and streams model output back to the client.
type Service struct {
	logger         *zap.Logger
	cfg            *config.Config
	sessionManager SessionManager
	providers      RealtimeProviderFactory
	notesStore     notes.Store
	finalizer      notes.Finalizer
	pricingService pkgopenai.PricingService
	visits         visit.Writer
	metrics        *metrics.Metrics

	// instructions are loaded once at startup, like the prompt file of
	// the intake agent they configure.
	instructions string

	// watchdogCancel for stopping the watchdog goroutine
	watchdogCancel context.CancelFunc
}

func NewService(
	logger *zap.Logger,
	cfg *config.Config,
	sessionManager SessionManager,
	providers RealtimeProviderFactory,
	notesStore notes.Store,
	finalizer notes.Finalizer,
	pricingService pkgopenai.PricingService,
	visits visit.Writer,
	metrics *metrics.Metrics,
) *Service {
	s := &Service{
		logger:         logger,
		cfg:            cfg,
		sessionManager: sessionManager,
		providers:      providers,
		notesStore:     notesStore,
		finalizer:      finalizer,
		pricingService: pricingService,
		visits:         visits,
		metrics:        metrics,
	}

	s.instructions = loadInstructions(logger, cfg.Intake.PromptPath)

	// Start watchdog
	ctx, cancel := context.WithCancel(context.Background())
	s.watchdogCancel = cancel
	go s.runWatchdog(ctx)

	return s
}

// Instructions returns the session instructions currently in use.
func (s *Service) Instructions() string {
	return s.instructions
}

// HandleConnection runs one capture client connection from handshake to
// teardown. It blocks until the session ends or the socket drops.
func (s *Service) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))

		return nil
	})

	start, err := s.readSessionStart(conn)
	if err != nil {
		s.rejectConnection(conn, err.Error())

		return
	}

	stream, err := audio.NewStream(start.NativeRate)
	if err != nil {
		s.rejectConnection(conn, fmt.Sprintf("unsupported native rate %d: %v", start.NativeRate, err))

		return
	}

	sessionID := uuid.NewString()

	session, err := s.sessionManager.CreateSession(sessionID, start.PatientID, start.Locale)
	if err != nil {
		s.rejectConnection(conn, err.Error())

		return
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	session.CancelFunc = cancel
	session.Stream = stream
	session.Model = s.cfg.OpenAI.RealtimeModel
	session.Outbox = make(chan any, outboxSize)
	session.NotesPush = util.NewDebouncer(s.cfg.Intake.NotesDebounce())
	session.SetContext("", "", start.Snapshot)

	provider := s.providers.NewProvider()
	provider.SetEventHandlers(s.eventHandlers(session))
	session.Provider = provider

	if err := provider.Connect(sessionCtx, s.instructions); err != nil {
		s.logger.Error("Failed to connect to OpenAI Realtime",
			zap.String("session_id", sessionID),
			zap.Error(err))
		session.NotesPush.Stop()
		cancel()
		s.sessionManager.EndSession(sessionID)
		s.rejectConnection(conn, "upstream connection failed")

		return
	}

	if s.cfg.Gateway.DebugAudioDir != "" {
		recorder, err := newWAVRecorder(s.cfg.Gateway.DebugAudioDir, sessionID, s.logger)
		if err != nil {
			s.logger.Warn("Debug recording unavailable", zap.Error(err))
		} else {
			session.Recorder = recorder
		}
	}

	session.State = SessionStateActive

	go s.writePump(conn, session)
	go s.notesPushLoop(sessionCtx, session)

	s.sendToClient(session, SessionCreatedMessage{
		Type:       MessageTypeSessionCreated,
		SessionID:  sessionID,
		NativeRate: stream.NativeRate(),
		Model:      session.Model,
		Voice:      s.cfg.Gateway.Voice,
	})

	// Pin the instructions as a system item so they survive upstream
	// session truncation, then greet through a first response.
	if err := provider.SendSystemText(sessionCtx, s.instructions); err != nil {
		s.logger.Warn("Failed to pin session instructions", zap.Error(err))
	}
	if start.Snapshot != nil {
		if err := provider.SendSystemText(sessionCtx, snapshotMessage(sessionID, start.PatientID, start.Snapshot)); err != nil {
			s.logger.Warn("Failed to pin patient snapshot", zap.Error(err))
		}
	}
	if err := provider.GenerateResponse(sessionCtx, "ROLE-ACK: supervised intake agent."); err != nil {
		s.logger.Warn("Failed to request opening response", zap.Error(err))
	}

	s.metrics.SessionStarted()

	s.logger.Info("Intake session started",
		zap.String("session_id", sessionID),
		zap.String("patient_id", start.PatientID),
		zap.String("model", session.Model),
		zap.Int("native_rate", stream.NativeRate()))

	s.readLoop(sessionCtx, conn, session)

	s.endSession(session, "client disconnected")
}

// readSessionStart expects the first client message to be session.start.
func (s *Service) readSessionStart(conn *websocket.Conn) (*ClientMessage, error) {
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("handshake read failed: %w", err)
	}
	if messageType != websocket.TextMessage {
		return nil, fmt.Errorf("expected a session.start message")
	}

	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed session.start: %w", err)
	}
	if msg.Type != MessageTypeSessionStart {
		return nil, fmt.Errorf("expected session.start, got %q", msg.Type)
	}

	return &msg, nil
}

func (s *Service) rejectConnection(conn *websocket.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(newErrorMessage(message)); err != nil {
		s.logger.Debug("Failed to write rejection", zap.Error(err))
	}
}

// writePump is the single writer for one connection. It drains the
// session outbox and keeps the socket alive with pings.
func (s *Service) writePump(conn *websocket.Conn, session *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-session.Outbox:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("Client write failed",
					zap.String("session_id", session.ID),
					zap.Error(err))

				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Service) readLoop(ctx context.Context, conn *websocket.Conn, session *Session) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug("Client read loop finished",
				zap.String("session_id", session.ID),
				zap.Error(err))

			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			s.handleCaptureChunk(ctx, session, data)
		case websocket.TextMessage:
			if done := s.handleClientMessage(ctx, session, data); done {
				return
			}
		}
	}
}

// handleCaptureChunk runs one scheduler quantum of capture audio through
// the pipeline and forwards the resulting frames upstream.
func (s *Service) handleCaptureChunk(ctx context.Context, session *Session, data []byte) {
	samples := audio.LEToFloat32(data)
	if len(samples) == 0 {
		return
	}

	s.sessionManager.UpdateAudioTime(session.ID)

	frames, events := session.Stream.Process(samples)

	for _, event := range events {
		if event.Kind == audio.EventTick {
			s.metrics.RecordTick()
		}
		s.sendToClient(session, newTelemetryMessage(string(event.Kind), event.NativeRate, event.Frames))
	}

	for _, frame := range frames {
		if session.Recorder != nil {
			if err := session.Recorder.WriteFrame(frame); err != nil {
				s.logger.Warn("Debug recording write failed", zap.Error(err))
			}
		}

		if err := session.Provider.SendAudio(ctx, base64.StdEncoding.EncodeToString(frame)); err != nil {
			s.logger.Warn("Failed to forward audio frame",
				zap.String("session_id", session.ID),
				zap.Error(err))

			break
		}
		session.FramesSent++
	}

	s.metrics.RecordChunk(len(data), len(frames), len(frames)*audio.OutputFrameBytes)
}

// handleClientMessage dispatches one JSON control message. It reports
// true when the client asked to end the session.
func (s *Service) handleClientMessage(ctx context.Context, session *Session, data []byte) bool {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn("Malformed client message",
			zap.String("session_id", session.ID),
			zap.Error(err))

		return false
	}

	s.sessionManager.UpdateActivity(session.ID)

	switch msg.Type {
	case MessageTypeAudioCommit:
		if err := session.Provider.CommitAudio(ctx); err != nil {
			s.logger.Warn("Failed to commit audio buffer", zap.Error(err))
		}

	case MessageTypeResponseCreate:
		if err := session.Provider.GenerateResponse(ctx, msg.Instructions); err != nil {
			s.logger.Warn("Failed to request response", zap.Error(err))
		}

	case MessageTypeText:
		if msg.Text == "" {
			return false
		}
		if err := session.Provider.GenerateResponse(ctx, msg.Text); err != nil {
			s.logger.Warn("Failed to request text response", zap.Error(err))
		}

	case MessageTypeSessionContext:
		s.handleSessionContext(ctx, session, &msg)

	case MessageTypeSessionEnd:
		s.endSession(session, "ended by client")

		return true

	case MessageTypeSessionStart:
		s.logger.Warn("Duplicate session.start ignored",
			zap.String("session_id", session.ID))

	default:
		// Unknown control messages are dropped here instead of being
		// proxied upstream; the provider surface stays typed.
		s.logger.Warn("Unknown client message type",
			zap.String("session_id", session.ID),
			zap.String("type", msg.Type))
	}

	return false
}

// handleSessionContext refreshes patient context mid-session and pins
// the new snapshot into the conversation.
func (s *Service) handleSessionContext(ctx context.Context, session *Session, msg *ClientMessage) {
	session.SetContext(msg.PatientID, msg.Locale, msg.Snapshot)

	if msg.Notes != "" {
		s.notesStore.Overwrite(session.ID, msg.Notes)
		session.NotesPush.Reset()
	}

	patientID, _, snapshot := session.Context()

	if snapshot != nil {
		if err := session.Provider.SendSystemText(ctx, snapshotMessage(session.ID, patientID, snapshot)); err != nil {
			s.logger.Warn("Failed to pin patient snapshot", zap.Error(err))
		}
	}

	s.sendToClient(session, ContextReadyMessage{
		Type:           MessageTypeContextReady,
		SessionID:      session.ID,
		SnapshotLoaded: snapshot != nil,
		PatientID:      patientID,
	})
}

// notesPushLoop flushes debounced notes updates to the client.
func (s *Service) notesPushLoop(ctx context.Context, session *Session) {
	for {
		select {
		case <-session.NotesPush.C():
			text := s.notesStore.Get(session.ID)
			if text == "" {
				continue
			}
			s.sendToClient(session, NotesUpdatedMessage{
				Type:      MessageTypeNotesUpdated,
				SessionID: session.ID,
				Notes:     text,
			})

		case <-ctx.Done():
			return
		}
	}
}

// sendToClient queues a message for the write pump without blocking the
// caller. Messages to a full queue are dropped.
func (s *Service) sendToClient(session *Session, msg any) {
	if session.enqueue(msg) {
		return
	}
	if session.closed() {
		return
	}

	s.logger.Warn("Client queue full, dropping message",
		zap.String("session_id", session.ID),
		zap.String("message_type", fmt.Sprintf("%T", msg)))
}

func (s *Service) eventHandlers(session *Session) RealtimeEventHandlers {
	return RealtimeEventHandlers{
		OnAudioDelta: func(ctx context.Context, audioBase64 string) {
			s.sendToClient(session, AudioDeltaMessage{
				Type:  MessageTypeAudioDelta,
				Audio: audioBase64,
			})
		},
		OnTranscript: func(ctx context.Context, transcript string) {
			s.handleTranscript(session, "assistant", "", transcript)
		},
		OnUserTranscript: func(ctx context.Context, itemID, transcript string) {
			s.handleTranscript(session, "user", itemID, transcript)
		},
		OnTranscriptFailed: func(ctx context.Context, itemID, message string) {
			s.sendToClient(session, newErrorMessage("transcription failed: "+message))
		},
		OnToolCall: func(ctx context.Context, call ToolCall) {
			go s.handleToolCall(ctx, session, call)
		},
		OnResponseDone: func(ctx context.Context, usage *Usage) {
			s.handleResponseDone(session, usage)
		},
		OnError: func(ctx context.Context, err error) {
			s.logger.Error("OpenAI Realtime error",
				zap.String("session_id", session.ID),
				zap.Error(err))
			s.sendToClient(session, newErrorMessage(err.Error()))
		},
	}
}

func (s *Service) handleTranscript(session *Session, role, itemID, transcript string) {
	if transcript == "" {
		return
	}

	session.Transcripts++

	if role == "assistant" {
		s.logger.Info("AI transcript",
			zap.String("session_id", session.ID),
			zap.String("transcript", transcript))
	} else {
		s.logger.Info("User transcript",
			zap.String("session_id", session.ID),
			zap.String("transcript", transcript))
	}

	s.sendToClient(session, TranscriptMessage{
		Type:   MessageTypeTranscript,
		Role:   role,
		Text:   transcript,
		Final:  true,
		ItemID: itemID,
	})
}

func (s *Service) handleResponseDone(session *Session, usage *Usage) {
	if usage == nil {
		return
	}

	// Update token usage
	if err := s.sessionManager.UpdateTokenUsage(session.ID, *usage); err != nil {
		s.logger.Debug("Failed to update token usage", zap.Error(err),
			zap.String("session_id", session.ID))

		return // Session was likely cleaned up
	}

	textIn := max(usage.InputTokens-usage.InputAudioTokens, 0)
	textOut := max(usage.OutputTokens-usage.OutputAudioTokens, 0)
	s.metrics.RecordUsage(textIn, textOut, usage.InputAudioTokens, usage.OutputAudioTokens)

	// Calculate cost using pricing service
	cost, err := s.calculateSessionCost(session)
	if err != nil {
		s.logger.Error("Failed to calculate session cost", zap.Error(err))
	} else {
		if err := s.sessionManager.UpdateSessionCost(session.ID, cost); err != nil {
			s.logger.Debug("Failed to update session cost", zap.Error(err),
				zap.String("session_id", session.ID))

			return
		}

		if s.cfg.Gateway.TrackSessionCosts {
			s.sendToClient(session, UsageMessage{
				Type:              MessageTypeUsage,
				InputTokens:       session.Usage.InputTokens,
				OutputTokens:      session.Usage.OutputTokens,
				InputAudioTokens:  session.Usage.InputAudioTokens,
				OutputAudioTokens: session.Usage.OutputAudioTokens,
				CostUSD:           cost,
			})
		}

		s.checkCostLimits(session, cost)
	}

	s.logger.Debug("Response completed",
		zap.String("session_id", session.ID),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Float64("cost", cost))
}

// calculateSessionCost prices the session's cumulative usage: realtime
// audio tokens plus the text tokens around them.
func (s *Service) calculateSessionCost(session *Session) (float64, error) {
	audioCost, err := s.pricingService.CalculateAudioTokenCost(session.Model,
		session.Usage.InputAudioTokens, session.Usage.OutputAudioTokens)
	if err != nil {
		return 0, err
	}

	textIn := max(session.Usage.InputTokens-session.Usage.InputAudioTokens, 0)
	textOut := max(session.Usage.OutputTokens-session.Usage.OutputAudioTokens, 0)

	textCost, err := s.pricingService.CalculateTokenCost(session.Model, textIn, textOut)
	if err != nil {
		return 0, err
	}

	return audioCost + textCost, nil
}

func (s *Service) checkCostLimits(session *Session, cost float64) {
	if s.cfg.Gateway.MaxCostPerSession <= 0 {
		return
	}

	if cost >= s.cfg.Gateway.MaxCostPerSession {
		s.logger.Warn("Cost limit exceeded, ending session",
			zap.String("session_id", session.ID),
			zap.Float64("cost", cost),
			zap.Float64("limit", s.cfg.Gateway.MaxCostPerSession))

		s.endSession(session, fmt.Sprintf("cost limit exceeded ($%.2f)", cost))
	}
}

// handleToolCall executes one intake tool call and answers the model.
func (s *Service) handleToolCall(ctx context.Context, session *Session, call ToolCall) {
	s.logger.Info("Handling tool call",
		zap.String("session_id", session.ID),
		zap.String("tool", call.Name),
		zap.String("call_id", call.CallID))

	// The model is asked to pass session_id but the bound session always
	// wins; a hallucinated id must not cross sessions.
	var args struct {
		SessionID string `json:"session_id"`
		Notes     string `json:"notes"`
	}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			s.logger.Warn("Malformed tool arguments",
				zap.String("tool", call.Name),
				zap.Error(err))
		}
	}

	var (
		result map[string]any
		ack    string
	)

	switch call.Name {
	case "save_observation":
		result, ack = s.handleSaveObservation(session, args.Notes)
	case "finalize_soap":
		result, ack = s.handleFinalizeSOAP(ctx, session, args.Notes)
	default:
		s.logger.Warn("Unknown tool requested", zap.String("tool", call.Name))
		result = map[string]any{"ok": false, "message": "Unknown tool: " + call.Name}
	}

	output, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("Failed to encode tool result", zap.Error(err))
		output = []byte(`{"ok":false}`)
	}

	if err := session.Provider.SendToolOutput(ctx, call.CallID, string(output), ack); err != nil {
		s.logger.Error("Failed to send tool output",
			zap.String("session_id", session.ID),
			zap.String("tool", call.Name),
			zap.Error(err))
	}
}

func (s *Service) handleSaveObservation(session *Session, rawNotes string) (map[string]any, string) {
	normalized := s.notesStore.Overwrite(session.ID, rawNotes)

	s.metrics.RecordToolCall("save_observation", false)
	session.NotesPush.Reset()

	result := map[string]any{
		"ok":          true,
		"session_id":  session.ID,
		"len":         len(normalized),
		"message":     "Notes overwritten.",
		"notes":       normalized,
		"observation": normalized,
	}

	return result, "saved"
}

func (s *Service) handleFinalizeSOAP(ctx context.Context, session *Session, rawNotes string) (map[string]any, string) {
	// An optional recap rides along with the finalize call.
	if rawNotes != "" {
		s.notesStore.Overwrite(session.ID, rawNotes)
	}

	patientID, locale, snapshot := session.Context()

	draft, err := s.finalizer.Finalize(ctx, session.ID, snapshot, locale)
	if err != nil {
		s.logger.Error("SOAP finalization failed",
			zap.String("session_id", session.ID),
			zap.Error(err))
		s.metrics.RecordToolCall("finalize_soap", true)
		s.sendToClient(session, newErrorMessage("Finalization failed: "+err.Error()))

		return map[string]any{
			"ok":         false,
			"message":    "Finalization failed: " + err.Error(),
			"session_id": session.ID,
		}, ""
	}

	s.metrics.RecordToolCall("finalize_soap", false)

	s.sendToClient(session, SOAPDraftMessage{
		Type:      MessageTypeSOAPDraft,
		SessionID: session.ID,
		Draft:     draft,
		Message:   "SOAP draft ready.",
	})

	go s.recordVisit(session.ID, patientID, draft)

	result := map[string]any{
		"ok":                true,
		"session_id":        session.ID,
		"soap":              draft.SOAP,
		"speech_output":     draft.SpeechOutput,
		"confidence":        draft.Confidence,
		"suggested_actions": draft.SuggestedActions,
		"message":           "SOAP draft ready.",
	}

	return result, "Doctor, the SOAP draft is ready. Let me know if you need revisions or another pass."
}

// recordVisit posts the finalized summary to the feedback table without
// holding up the tool response.
func (s *Service) recordVisit(sessionID, patientID string, draft *notes.Draft) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Visit.Timeout())
	defer cancel()

	summary := visit.Summary{
		SessionID:   sessionID,
		PatientID:   patientID,
		SOAP:        draft.SOAP,
		Observation: s.notesStore.Get(sessionID),
	}

	if err := s.visits.WriteSummary(ctx, summary); err != nil {
		s.logger.Error("Failed to record visit summary",
			zap.String("session_id", sessionID),
			zap.Error(err))

		if session, gerr := s.sessionManager.GetSession(sessionID); gerr == nil {
			s.sendToClient(session, newErrorMessage("Visit record failed: "+err.Error()))
		}
	}
}

// FinalizeSession drafts a SOAP preview outside the tool flow, for the
// clinician-initiated REST endpoint. The visit record posts the same way
// the tool path does, and a still-connected client sees the draft too.
func (s *Service) FinalizeSession(ctx context.Context, sessionID string) (*notes.Draft, error) {
	var (
		patientID string
		locale    string
		snapshot  map[string]any
	)

	session, err := s.sessionManager.GetSession(sessionID)
	if err == nil {
		patientID, locale, snapshot = session.Context()
	}

	draft, ferr := s.finalizer.Finalize(ctx, sessionID, snapshot, locale)
	if ferr != nil {
		return nil, ferr
	}

	if session != nil {
		s.sendToClient(session, SOAPDraftMessage{
			Type:      MessageTypeSOAPDraft,
			SessionID: sessionID,
			Draft:     draft,
			Message:   "SOAP draft ready.",
		})
	}

	go s.recordVisit(sessionID, patientID, draft)

	return draft, nil
}

// Notes returns the current working notes for a session.
func (s *Service) Notes(sessionID string) string {
	return s.notesStore.Get(sessionID)
}

// EditNotes applies a clinician edit from the REST surface, appending or
// overwriting like the tool handlers do. A live session gets its notes
// preview nudged.
func (s *Service) EditNotes(sessionID, text string, appendMode bool) string {
	var normalized string
	if appendMode {
		normalized = s.notesStore.Append(sessionID, text)
	} else {
		normalized = s.notesStore.Overwrite(sessionID, text)
	}

	if session, err := s.sessionManager.GetSession(sessionID); err == nil && session.NotesPush != nil {
		session.NotesPush.Reset()
	}

	return normalized
}

// Status reports a read-only view of one session.
func (s *Service) Status(sessionID string) (*SessionStatus, error) {
	session, err := s.sessionManager.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	return s.sessionStatus(session), nil
}

// ActiveSessions reports all live sessions.
func (s *Service) ActiveSessions() []SessionStatus {
	sessions := s.sessionManager.GetActiveSessions()

	statuses := make([]SessionStatus, 0, len(sessions))
	for _, session := range sessions {
		statuses = append(statuses, *s.sessionStatus(session))
	}

	return statuses
}

func (s *Service) sessionStatus(session *Session) *SessionStatus {
	status := &SessionStatus{
		Active:      session.State == SessionStateActive,
		SessionID:   session.ID,
		PatientID:   session.PatientID,
		StartTime:   session.StartTime,
		FramesSent:  session.FramesSent,
		Transcripts: session.Transcripts,
		SessionCost: session.SessionCost,
		Model:       session.Model,
	}
	if session.Stream != nil {
		status.NativeRate = session.Stream.NativeRate()
	}

	return status
}

func (s *Service) endSession(session *Session, reason string) {
	session.endOnce.Do(func() {
		session.State = SessionStateEnding

		if session.NotesPush != nil {
			session.NotesPush.Stop()
		}

		// Final notes flush so a saved observation never dies with the
		// debounce timer.
		if text := s.notesStore.Get(session.ID); text != "" {
			session.enqueue(NotesUpdatedMessage{
				Type:      MessageTypeNotesUpdated,
				SessionID: session.ID,
				Notes:     text,
			})
		}

		duration := time.Since(session.StartTime)

		session.enqueue(SessionEndedMessage{
			Type:            MessageTypeSessionEnded,
			SessionID:       session.ID,
			Reason:          reason,
			DurationSeconds: duration.Seconds(),
			FramesSent:      session.FramesSent,
			Usage:           session.Usage,
			CostUSD:         session.SessionCost,
		})
		session.closeOutbox()

		if session.CancelFunc != nil {
			session.CancelFunc()
		}

		if session.Provider != nil {
			if err := session.Provider.Close(); err != nil {
				s.logger.Warn("Failed to close realtime connection", zap.Error(err))
			}
		}

		if session.Recorder != nil {
			if err := session.Recorder.Close(); err != nil {
				s.logger.Warn("Failed to close debug recording", zap.Error(err))
			}
		}

		// Notes stay readable over REST after the session ends; the LRU
		// store evicts them eventually.
		if err := s.sessionManager.EndSession(session.ID); err != nil {
			s.logger.Warn("Failed to remove session", zap.Error(err))
		}

		session.State = SessionStateEnded

		s.metrics.SessionEnded(duration.Seconds())

		s.logger.Info("Intake session ended",
			zap.String("session_id", session.ID),
			zap.String("reason", reason),
			zap.Duration("duration", duration),
			zap.Int("frames_sent", session.FramesSent),
			zap.Float64("cost", session.SessionCost))
	})
}

func (s *Service) runWatchdog(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, session := range s.sessionManager.GetActiveSessions() {
				// Check inactivity timeout
				if time.Since(session.LastAudioTime) > s.cfg.Gateway.InactivityTimeoutDuration() {
					s.endSession(session, "inactivity timeout")

					continue
				}

				// Check session duration
				if time.Since(session.StartTime) > s.cfg.Gateway.MaxSessionDuration() {
					s.endSession(session, "maximum session length reached")

					continue
				}

				// Check cost limit
				if s.cfg.Gateway.MaxCostPerSession > 0 && session.SessionCost >= s.cfg.Gateway.MaxCostPerSession {
					s.endSession(session, fmt.Sprintf("cost limit reached ($%.2f)", session.SessionCost))
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) Shutdown(ctx context.Context) error {
	if s.watchdogCancel != nil {
		s.watchdogCancel()
	}

	// End all active sessions
	for _, session := range s.sessionManager.GetActiveSessions() {
		s.endSession(session, "service shutdown")
	}

	return nil
}
