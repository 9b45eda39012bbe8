package gateway

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// defaultInstructions is used when no prompt file is configured or the
// configured file cannot be read.
const defaultInstructions = "You are a concise, clinically-safe triage assistant. " +
	"Speak briefly, one question at a time, use the save_observation and finalize_soap " +
	"tools for notes and SOAP drafts, and do not read long documents aloud."

// conductRules are appended to every prompt, file-loaded or default.
const conductRules = "\n\nConduct rules:\n" +
	"- Record findings only through the save_observation tool; never claim notes were saved without calling it.\n" +
	"- Produce SOAP drafts only through the finalize_soap tool.\n" +
	"- Do not invent findings the conversation does not support.\n" +
	"- Every draft is a preview for physician review, not a final record."

// loadInstructions returns the session instructions: the prompt file at
// path when readable, the built-in default otherwise, always with the
// conduct rules appended.
func loadInstructions(logger *zap.Logger, path string) string {
	prompt := defaultInstructions
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("Prompt file not readable, using built-in default",
				zap.String("path", path),
				zap.Error(err))
		} else if trimmed := strings.TrimSpace(string(data)); trimmed != "" {
			prompt = trimmed
		}
	}

	logger.Info("Session instructions loaded",
		zap.String("path", path),
		zap.Int("length", len(prompt)))

	return prompt + conductRules
}

// snapshotMessage renders a patient snapshot as the system text pinned
// into the model conversation.
func snapshotMessage(sessionID, patientID string, snapshot map[string]any) string {
	header := fmt.Sprintf("Patient Snapshot (session %s)", sessionID)
	if patientID != "" {
		header = fmt.Sprintf("Patient Snapshot (patient %s)", patientID)
	}

	text, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Sprintf("%s:\n%v", header, snapshot)
	}

	return fmt.Sprintf("%s:\n%s", header, text)
}
