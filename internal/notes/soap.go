package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// SOAP is a structured clinical draft: subjective, objective, assessment, plan.
type SOAP struct {
	Subjective string `json:"subjective"`
	Objective  string `json:"objective"`
	Assessment string `json:"assessment"`
	Plan       string `json:"plan"`
}

// Draft is a normalized SOAP synthesis result ready for client rendering.
type Draft struct {
	SpeechOutput     string   `json:"speech_output"`
	SOAP             SOAP     `json:"soap"`
	Confidence       float64  `json:"confidence"`
	SuggestedActions []string `json:"suggested_actions"`
}

// Finalizer synthesizes a SOAP draft from a session's working notes.
type Finalizer interface {
	Finalize(ctx context.Context, sessionID string, snapshot map[string]any, locale string) (*Draft, error)
}

type soapFinalizer struct {
	logger *zap.Logger
	client *openai.Client
	store  Store
	model  string
}

// NewFinalizer creates a Finalizer that drafts SOAP summaries with a chat
// completion in JSON mode.
func NewFinalizer(logger *zap.Logger, client *openai.Client, store Store, model string) Finalizer {
	return &soapFinalizer{
		logger: logger,
		client: client,
		store:  store,
		model:  model,
	}
}

const soapSystemPrompt = `You are a clinical documentation assistant supporting a supervised medical intake. ` +
	`Draft a SOAP summary from the intake notes for physician review. ` +
	`Respond with a single JSON object with keys: "soap" (object with string fields ` +
	`"subjective", "objective", "assessment", "plan"), "speech_output" (one short sentence ` +
	`announcing the draft), "confidence" (number between 0 and 1), and "suggested_actions" ` +
	`(array of strings). Do not invent findings that the notes do not support.`

func (f *soapFinalizer) Finalize(ctx context.Context, sessionID string, snapshot map[string]any, locale string) (*Draft, error) {
	workingNotes := f.store.Get(sessionID)
	if locale == "" {
		locale = "en"
	}

	snapshotJSON := "{}"
	if len(snapshot) > 0 {
		if encoded, err := json.MarshalIndent(snapshot, "", "  "); err == nil {
			snapshotJSON = string(encoded)
		}
	}

	userPrompt := fmt.Sprintf(
		"Intake notes:\n%s\n\nPatient snapshot:\n%s\n\nLocale: %s\nThis is a preview for physician review, not a final record.",
		workingNotes, snapshotJSON, locale,
	)

	resp, err := f.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       f.model,
		Temperature: 0.6,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: soapSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("soap finalization failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("soap finalization returned no choices")
	}

	draft := normalizeDraft(resp.Choices[0].Message.Content)

	f.logger.Info("SOAP draft synthesized",
		zap.String("session_id", sessionID),
		zap.Float64("confidence", draft.Confidence),
		zap.Int("notes_len", len(workingNotes)))

	return draft, nil
}

// normalizeDraft coerces whatever JSON the model returned into a complete
// Draft, applying defaults for every missing or malformed field.
func normalizeDraft(content string) *Draft {
	js := map[string]any{}
	if err := json.Unmarshal([]byte(content), &js); err != nil {
		js = map[string]any{}
	}

	draft := &Draft{
		SpeechOutput:     "SOAP summary prepared.",
		Confidence:       0.9,
		SuggestedActions: []string{"approve_save", "reject_save"},
	}

	if speech, ok := js["speech_output"].(string); ok && speech != "" {
		draft.SpeechOutput = speech
	}

	switch confidence := js["confidence"].(type) {
	case float64:
		draft.Confidence = confidence
	case string:
		if parsed, err := strconv.ParseFloat(confidence, 64); err == nil {
			draft.Confidence = parsed
		}
	}

	if rawActions, ok := js["suggested_actions"].([]any); ok {
		actions := make([]string, 0, len(rawActions))
		for _, action := range rawActions {
			if text := CoerceText(action); text != "" {
				actions = append(actions, text)
			}
		}
		if len(actions) > 0 {
			draft.SuggestedActions = actions
		}
	}

	switch soap := js["soap"].(type) {
	case map[string]any:
		draft.SOAP = SOAP{
			Subjective: flattenBlock(soap["subjective"]),
			Objective:  flattenBlock(soap["objective"]),
			Assessment: flattenBlock(soap["assessment"]),
			Plan:       flattenBlock(soap["plan"]),
		}
	case string:
		// Model returned a bare string by mistake; keep it as the subjective.
		draft.SOAP = SOAP{Subjective: soap}
	}

	return draft
}

// flattenBlock renders one SOAP section: strings pass through trimmed and
// arrays join line by line.
func flattenBlock(block any) string {
	switch v := block.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []any:
		lines := make([]string, 0, len(v))
		for _, item := range v {
			if text := strings.TrimSpace(CoerceText(item)); text != "" {
				lines = append(lines, text)
			}
		}

		return strings.Join(lines, "\n")
	default:
		return strings.TrimSpace(CoerceText(v))
	}
}
