// Package openai provides OpenAI-related infrastructure and Fx modules.
package openai

import (
	"errors"

	openairt "github.com/WqyJh/go-openai-realtime"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-voice-intake/internal/config"
	pkgopenai "github.com/Raikerian/go-voice-intake/pkg/openai"
)

// Module provides OpenAI-related dependencies.
var Module = fx.Module("openai",
	fx.Provide(
		NewClient,
		NewRealtimeClient,
		NewPricingService,
	),
)

// NewClient creates and configures a new OpenAI client for chat completions
// and audio transcription.
func NewClient(cfg *config.Config, logger *zap.Logger) (*openai.Client, error) {
	if cfg.OpenAI.APIKey == "" {
		logger.Error("OpenAI API key is not configured in config.yaml")

		return nil, errors.New("OpenAI API key (config.OpenAI.APIKey) is not configured")
	}

	client := openai.NewClient(cfg.OpenAI.APIKey)
	logger.Info("OpenAI client created successfully.")

	return client, nil
}

// NewRealtimeClient creates the shared OpenAI Realtime client. Each intake
// session dials its own connection through it.
func NewRealtimeClient(cfg *config.Config, logger *zap.Logger) (*openairt.Client, error) {
	if cfg.OpenAI.APIKey == "" {
		logger.Error("OpenAI API key is not configured in config.yaml")

		return nil, errors.New("OpenAI API key (config.OpenAI.APIKey) is not configured")
	}

	client := openairt.NewClient(cfg.OpenAI.APIKey)
	logger.Info("OpenAI realtime client created successfully.",
		zap.String("model", cfg.OpenAI.RealtimeModel))

	return client, nil
}

// NewPricingService creates and configures a new OpenAI pricing service.
func NewPricingService(cfg *config.Config, logger *zap.Logger) pkgopenai.PricingService {
	path := cfg.OpenAI.PricesPath
	if path == "" {
		path = "models.json"
	}

	service := pkgopenai.NewPricingService(path)
	logger.Info("OpenAI pricing service created successfully.",
		zap.String("prices_path", path))

	return service
}
