// Package openai provides OpenAI-related infrastructure and pricing data.
package openai

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// TokenPricing represents the cost per million tokens for text and audio traffic.
type TokenPricing struct {
	InputPerMillion       float64  `json:"input_per_million"`        // Cost per 1 million input tokens in USD
	OutputPerMillion      *float64 `json:"output_per_million"`       // Cost per 1 million output tokens in USD (nil if not supported)
	AudioInputPerMillion  *float64 `json:"audio_input_per_million"`  // Cost per 1 million audio input tokens in USD (nil if not supported)
	AudioOutputPerMillion *float64 `json:"audio_output_per_million"` // Cost per 1 million audio output tokens in USD (nil if not supported)
}

// ModelInfo contains detailed information about an OpenAI model.
type ModelInfo struct {
	Name        string       `json:"name"`         // Model name/identifier
	DisplayName string       `json:"display_name"` // Human-readable display name
	Pricing     TokenPricing `json:"pricing"`      // Token pricing information
}

// PricingData contains all OpenAI model pricing information.
type PricingData struct {
	Models      map[string]ModelInfo `json:"models"`       // Map of model name to model info
	LastUpdated time.Time            `json:"last_updated"` // When this pricing data was last updated
	Currency    string               `json:"currency"`     // Currency for all prices (USD)
	Note        string               `json:"note"`         // Additional notes about pricing
}

// PricingService defines the interface for pricing operations.
type PricingService interface {
	// GetPricingData returns the current OpenAI pricing data.
	GetPricingData() *PricingData

	// GetModelPricing returns pricing information for a specific model.
	GetModelPricing(modelName string) (*ModelInfo, error)

	// CalculateTokenCost calculates the cost for a given number of input and output text tokens.
	CalculateTokenCost(modelName string, inputTokens, outputTokens int) (float64, error)

	// CalculateAudioTokenCost calculates the cost for audio input/output tokens.
	CalculateAudioTokenCost(modelName string, inputAudioTokens, outputAudioTokens int) (float64, error)
}

// pricingService implements the PricingService interface. The pricing file
// loads once on first use; sessions query it concurrently after that.
type pricingService struct {
	modelsFilePath string

	once       sync.Once
	cachedData *PricingData
}

// NewPricingService creates a new PricingService instance.
// modelsFilePath should be the path to the models.json file.
func NewPricingService(modelsFilePath string) PricingService {
	return &pricingService{
		modelsFilePath: modelsFilePath,
	}
}

// loadPricingData loads pricing data from the JSON file.
func (p *pricingService) loadPricingData() (*PricingData, error) {
	jsonData, err := os.ReadFile(p.modelsFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read models.json file: %w", err)
	}

	var pricingData PricingData
	if err := json.Unmarshal(jsonData, &pricingData); err != nil {
		return nil, fmt.Errorf("failed to parse models.json: %w", err)
	}

	return &pricingData, nil
}

// GetPricingData returns the current OpenAI pricing data. When the pricing
// file is absent or malformed it returns an empty table carrying the load
// error in Note, so cost tracking degrades to zero instead of failing calls.
func (p *pricingService) GetPricingData() *PricingData {
	p.once.Do(func() {
		data, err := p.loadPricingData()
		if err != nil {
			p.cachedData = &PricingData{
				Models:      make(map[string]ModelInfo),
				LastUpdated: time.Now(),
				Currency:    "USD",
				Note:        fmt.Sprintf("Error loading pricing data: %v", err),
			}
			return
		}
		p.cachedData = data
	})

	return p.cachedData
}

// GetModelPricing returns pricing information for a specific model.
func (p *pricingService) GetModelPricing(modelName string) (*ModelInfo, error) {
	pricingData := p.GetPricingData()

	if model, exists := pricingData.Models[modelName]; exists {
		return &model, nil
	}

	return nil, fmt.Errorf("pricing data not found for model: %s", modelName)
}

// CalculateTokenCost calculates the cost for a given number of input and output text tokens.
func (p *pricingService) CalculateTokenCost(modelName string, inputTokens, outputTokens int) (float64, error) {
	model, err := p.GetModelPricing(modelName)
	if err != nil {
		return 0, err
	}

	totalCost := (float64(inputTokens) / 1_000_000) * model.Pricing.InputPerMillion

	if model.Pricing.OutputPerMillion != nil {
		totalCost += (float64(outputTokens) / 1_000_000) * *model.Pricing.OutputPerMillion
	}

	return totalCost, nil
}

// CalculateAudioTokenCost calculates the cost for audio input/output tokens.
func (p *pricingService) CalculateAudioTokenCost(modelName string, inputAudioTokens, outputAudioTokens int) (float64, error) {
	model, err := p.GetModelPricing(modelName)
	if err != nil {
		return 0, err
	}

	var totalCost float64

	if model.Pricing.AudioInputPerMillion != nil {
		totalCost += (float64(inputAudioTokens) / 1_000_000) * *model.Pricing.AudioInputPerMillion
	}

	if model.Pricing.AudioOutputPerMillion != nil {
		totalCost += (float64(outputAudioTokens) / 1_000_000) * *model.Pricing.AudioOutputPerMillion
	}

	return totalCost, nil
}
