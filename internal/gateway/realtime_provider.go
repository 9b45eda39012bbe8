package gateway

import (
	"context"
	"errors"
	"fmt"

	openairt "github.com/WqyJh/go-openai-realtime"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/Raikerian/go-voice-intake/internal/config"
)

type RealtimeProvider interface {
	// Establish connection and configure the intake session
	Connect(ctx context.Context, instructions string) error

	// Send one 20ms PCM16 frame (base64 encoded)
	SendAudio(ctx context.Context, audioBase64 string) error

	// Commit audio buffer (triggers processing when VAD is off)
	CommitAudio(ctx context.Context) error

	// Request a model response, optionally steered by instructions
	GenerateResponse(ctx context.Context, instructions string) error

	// Pin a system message into the conversation state
	SendSystemText(ctx context.Context, text string) error

	// Answer a function call with its JSON output and request the
	// follow-up response, optionally steered by ack instructions
	SendToolOutput(ctx context.Context, callID, output, ack string) error

	// Receive model output through event handlers
	SetEventHandlers(handlers RealtimeEventHandlers)

	// Close connection
	Close() error
}

// RealtimeProviderFactory mints one provider per intake session, all
// sharing a single configured client.
type RealtimeProviderFactory interface {
	NewProvider() RealtimeProvider
}

// ToolCall is a completed function call requested by the model.
type ToolCall struct {
	CallID    string
	Name      string
	Arguments string // raw JSON
}

// Usage holds cumulative token counts reported on response.done.
type Usage struct {
	InputTokens       int `json:"input_tokens"`
	OutputTokens      int `json:"output_tokens"`
	InputAudioTokens  int `json:"input_audio_tokens"`
	OutputAudioTokens int `json:"output_audio_tokens"`
}

type RealtimeEventHandlers struct {
	OnAudioDelta       func(ctx context.Context, audioBase64 string)
	OnTranscript       func(ctx context.Context, transcript string) // AI response transcript
	OnUserTranscript   func(ctx context.Context, itemID, transcript string)
	OnTranscriptFailed func(ctx context.Context, itemID, message string)
	OnToolCall         func(ctx context.Context, call ToolCall)
	OnResponseDone     func(ctx context.Context, usage *Usage)
	OnError            func(ctx context.Context, err error)
}

type providerFactory struct {
	logger *zap.Logger
	cfg    *config.Config
	client *openairt.Client
}

// NewProviderFactory wires the shared realtime client into per-session
// providers.
func NewProviderFactory(logger *zap.Logger, cfg *config.Config, client *openairt.Client) RealtimeProviderFactory {
	return &providerFactory{
		logger: logger,
		cfg:    cfg,
		client: client,
	}
}

func (f *providerFactory) NewProvider() RealtimeProvider {
	return &openAIRealtimeProvider{
		logger: f.logger,
		cfg:    f.cfg,
		client: f.client,
	}
}

type openAIRealtimeProvider struct {
	logger   *zap.Logger
	cfg      *config.Config
	client   *openairt.Client
	conn     *openairt.Conn
	handler  *openairt.ConnHandler
	handlers RealtimeEventHandlers
}

func (p *openAIRealtimeProvider) Connect(ctx context.Context, instructions string) error {
	if p.conn != nil {
		return errors.New("already connected to OpenAI Realtime API")
	}

	model := p.cfg.OpenAI.RealtimeModel

	p.logger.Info("Connecting to OpenAI Realtime API",
		zap.String("model", model))

	conn, err := p.client.Connect(ctx, openairt.WithModel(model))
	if err != nil {
		return fmt.Errorf("failed to connect to OpenAI Realtime: %w", err)
	}

	p.conn = conn

	// Start processing server events before any client event goes out.
	p.handler = openairt.NewConnHandler(ctx, conn, p.handleServerEvent)
	go p.handler.Start()

	if err := p.configureSession(ctx, instructions); err != nil {
		p.Close()

		return fmt.Errorf("failed to configure session: %w", err)
	}

	p.logger.Info("Connected to OpenAI Realtime API",
		zap.String("model", model),
		zap.String("voice", p.cfg.Gateway.Voice))

	return nil
}

func (p *openAIRealtimeProvider) configureSession(ctx context.Context, instructions string) error {
	gw := &p.cfg.Gateway
	temperature := gw.Temperature

	sessionUpdate := &openairt.SessionUpdateEvent{
		Session: openairt.ClientSession{
			Modalities:        []openairt.Modality{openairt.ModalityText, openairt.ModalityAudio},
			Voice:             voiceProfile(gw.Voice),
			InputAudioFormat:  openairt.AudioFormatPcm16,
			OutputAudioFormat: openairt.AudioFormatPcm16,
			InputAudioTranscription: &openairt.InputAudioTranscription{
				Model: openai.Whisper1,
			},
			TurnDetection: &openairt.ClientTurnDetection{
				Type: openairt.ClientTurnDetectionTypeServerVad,
				TurnDetectionParams: openairt.TurnDetectionParams{
					Threshold:         float64(gw.VADThreshold),
					PrefixPaddingMs:   gw.VADPrefixPaddingMs,
					SilenceDurationMs: gw.VADSilenceDurationMs,
				},
			},
			Temperature:  &temperature,
			ToolChoice:   openairt.ToolChoiceAuto,
			Tools:        intakeTools(),
			Instructions: instructions,
		},
	}

	return p.conn.SendMessage(ctx, sessionUpdate)
}

// intakeTools declares the two functions the intake agent may call.
func intakeTools() []openairt.Tool {
	return []openairt.Tool{
		{
			Type:        openairt.ToolTypeFunction,
			Name:        "save_observation",
			Description: "Persist the current observation/notes for this session to storage.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"session_id": map[string]any{"type": "string"},
					"notes":      map[string]any{"type": "string"},
				},
				"required": []string{"session_id", "notes"},
			},
		},
		{
			Type:        openairt.ToolTypeFunction,
			Name:        "finalize_soap",
			Description: "Synthesize a SOAP draft from the current working notes for physician review.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"session_id": map[string]any{"type": "string"},
					"notes": map[string]any{
						"type":        "string",
						"description": "Optional recap of the latest findings to feed into the SOAP draft.",
					},
				},
				"required": []string{"session_id"},
			},
		},
	}
}

// voiceProfile maps a configured voice name onto the library constant,
// passing unknown names through unchanged.
func voiceProfile(name string) openairt.Voice {
	switch name {
	case "verse":
		return openairt.VoiceVerse
	case "shimmer":
		return openairt.VoiceShimmer
	case "alloy":
		return openairt.VoiceAlloy
	case "echo":
		return openairt.VoiceEcho
	case "":
		return openairt.VoiceVerse
	default:
		return openairt.Voice(name)
	}
}

func (p *openAIRealtimeProvider) SendAudio(ctx context.Context, audioBase64 string) error {
	if p.conn == nil {
		return errors.New("not connected to OpenAI Realtime API")
	}

	event := &openairt.InputAudioBufferAppendEvent{
		Audio: audioBase64,
	}

	return p.conn.SendMessage(ctx, event)
}

func (p *openAIRealtimeProvider) CommitAudio(ctx context.Context) error {
	if p.conn == nil {
		return errors.New("not connected to OpenAI Realtime API")
	}

	event := &openairt.InputAudioBufferCommitEvent{}

	return p.conn.SendMessage(ctx, event)
}

func (p *openAIRealtimeProvider) GenerateResponse(ctx context.Context, instructions string) error {
	if p.conn == nil {
		return errors.New("not connected to OpenAI Realtime API")
	}

	event := &openairt.ResponseCreateEvent{
		Response: openairt.ResponseCreateParams{
			Modalities:   []openairt.Modality{openairt.ModalityText, openairt.ModalityAudio},
			Instructions: instructions,
		},
	}

	return p.conn.SendMessage(ctx, event)
}

func (p *openAIRealtimeProvider) SendSystemText(ctx context.Context, text string) error {
	if p.conn == nil {
		return errors.New("not connected to OpenAI Realtime API")
	}

	event := &openairt.ConversationItemCreateEvent{
		Item: openairt.MessageItem{
			Type: openairt.MessageItemTypeMessage,
			Role: openairt.MessageRoleSystem,
			Content: []openairt.MessageContentPart{
				{Type: openairt.MessageContentTypeInputText, Text: text},
			},
		},
	}

	return p.conn.SendMessage(ctx, event)
}

func (p *openAIRealtimeProvider) SendToolOutput(ctx context.Context, callID, output, ack string) error {
	if p.conn == nil {
		return errors.New("not connected to OpenAI Realtime API")
	}

	event := &openairt.ConversationItemCreateEvent{
		Item: openairt.MessageItem{
			Type:   openairt.MessageItemTypeFunctionCallOutput,
			CallID: callID,
			Output: output,
		},
	}

	if err := p.conn.SendMessage(ctx, event); err != nil {
		return err
	}

	// The model only reacts to the tool result once a response is
	// requested.
	return p.GenerateResponse(ctx, ack)
}

func (p *openAIRealtimeProvider) SetEventHandlers(handlers RealtimeEventHandlers) {
	p.handlers = handlers
}

func (p *openAIRealtimeProvider) Close() error {
	if p.conn == nil {
		return nil
	}

	p.logger.Info("Closing OpenAI Realtime connection")

	err := p.conn.Close()
	if err != nil {
		p.logger.Warn("Error closing connection", zap.Error(err))
	}
	p.conn = nil
	p.handler = nil

	return err
}

// handleServerEvent handles incoming server events from the WebSocket.
func (p *openAIRealtimeProvider) handleServerEvent(ctx context.Context, event openairt.ServerEvent) {
	p.logger.Debug("Received server event",
		zap.String("event_type", string(event.ServerEventType())))

	switch event.ServerEventType() {
	case openairt.ServerEventTypeResponseAudioDelta:
		delta := event.(openairt.ResponseAudioDeltaEvent)
		if p.handlers.OnAudioDelta != nil && delta.Delta != "" {
			p.handlers.OnAudioDelta(ctx, delta.Delta)
		}

	case openairt.ServerEventTypeResponseAudioTranscriptDone:
		transcript := event.(openairt.ResponseAudioTranscriptDoneEvent)
		if p.handlers.OnTranscript != nil {
			p.handlers.OnTranscript(ctx, transcript.Transcript)
		}

	case openairt.ServerEventTypeConversationItemInputAudioTranscriptionCompleted:
		inputTranscript := event.(openairt.ConversationItemInputAudioTranscriptionCompletedEvent)
		if p.handlers.OnUserTranscript != nil {
			p.handlers.OnUserTranscript(ctx, inputTranscript.ItemID, inputTranscript.Transcript)
		}

	case openairt.ServerEventTypeConversationItemInputAudioTranscriptionFailed:
		failed := event.(openairt.ConversationItemInputAudioTranscriptionFailedEvent)
		p.logger.Warn("User audio transcription failed",
			zap.String("item_id", failed.ItemID),
			zap.String("error", failed.Error.Message))
		if p.handlers.OnTranscriptFailed != nil {
			p.handlers.OnTranscriptFailed(ctx, failed.ItemID, failed.Error.Message)
		}

	case openairt.ServerEventTypeResponseFunctionCallArgumentsDone:
		args := event.(openairt.ResponseFunctionCallArgumentsDoneEvent)
		if p.handlers.OnToolCall != nil {
			p.handlers.OnToolCall(ctx, ToolCall{
				CallID:    args.CallID,
				Name:      args.Name,
				Arguments: args.Arguments,
			})
		}

	case openairt.ServerEventTypeResponseDone:
		done := event.(openairt.ResponseDoneEvent)
		if p.handlers.OnResponseDone != nil && done.Response.Usage != nil {
			usage := &Usage{
				InputTokens:       done.Response.Usage.InputTokens,
				OutputTokens:      done.Response.Usage.OutputTokens,
				InputAudioTokens:  done.Response.Usage.InputTokenDetails.AudioTokens,
				OutputAudioTokens: done.Response.Usage.OutputTokenDetails.AudioTokens,
			}
			p.handlers.OnResponseDone(ctx, usage)
		}

	case openairt.ServerEventTypeError:
		errorEvent := event.(openairt.ErrorEvent)
		if p.handlers.OnError != nil {
			p.handlers.OnError(ctx, fmt.Errorf("OpenAI error: %s", errorEvent.Error.Message))
		}
	}
}
