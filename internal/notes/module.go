package notes

import (
	"github.com/sashabaranov/go-openai"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-voice-intake/internal/config"
)

// Module provides notes dependencies.
var Module = fx.Module("notes",
	fx.Provide(
		NewStoreProvider,
		NewFinalizerProvider,
	),
)

// NewStoreProvider creates the notes store with config-derived bounds.
func NewStoreProvider(logger *zap.Logger, cfg *config.Config) Store {
	maxSessions := cfg.Intake.MaxTrackedSessions
	if maxSessions <= 0 {
		logger.Warn("Intake MaxTrackedSessions is not configured or is invalid, defaulting to 256",
			zap.Int("configuredSize", maxSessions))
		maxSessions = 256
	}

	maxNotesLen := cfg.Intake.MaxNotesLen
	if maxNotesLen <= 0 {
		logger.Warn("Intake MaxNotesLen is not configured or is invalid, defaulting to 12000",
			zap.Int("configuredLen", maxNotesLen))
		maxNotesLen = 12000
	}

	return NewStore(maxSessions, maxNotesLen)
}

// NewFinalizerProvider creates the SOAP finalizer bound to the reasoning model.
func NewFinalizerProvider(logger *zap.Logger, client *openai.Client, store Store, cfg *config.Config) Finalizer {
	return NewFinalizer(logger, client, store, cfg.OpenAI.ReasoningModel)
}
