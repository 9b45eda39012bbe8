package openai_test

import (
	"fmt"
	"log"

	"github.com/Raikerian/go-voice-intake/pkg/openai"
)

func ExamplePricingService_GetPricingData() {
	// Create a pricing service (in real usage, you'd pass the actual path to models.json)
	service := openai.NewPricingService("models.json")
	data := service.GetPricingData()

	fmt.Printf("Currency: %s\n", data.Currency)
	fmt.Printf("Number of models: %d\n", len(data.Models))
	// Note: This example may not produce exact output due to file loading,
	// but demonstrates the API usage
}

func ExamplePricingService_GetModelPricing() {
	service := openai.NewPricingService("models.json")
	model, err := service.GetModelPricing("gpt-4o-realtime-preview-2024-12-17")
	if err != nil {
		log.Printf("Error getting model pricing: %v", err)
		return
	}

	fmt.Printf("Model: %s\n", model.DisplayName)
	fmt.Printf("Input cost per million: $%.2f\n", model.Pricing.InputPerMillion)
	if model.Pricing.OutputPerMillion != nil {
		fmt.Printf("Output cost per million: $%.2f\n", *model.Pricing.OutputPerMillion)
	}
	if model.Pricing.AudioInputPerMillion != nil {
		fmt.Printf("Audio input cost per million: $%.2f\n", *model.Pricing.AudioInputPerMillion)
	}
}

func ExamplePricingService_CalculateTokenCost() {
	service := openai.NewPricingService("models.json")

	// Calculate cost for 1000 input tokens and 500 output tokens
	cost, err := service.CalculateTokenCost("gpt-4o-mini", 1000, 500)
	if err != nil {
		log.Printf("Error calculating token cost: %v", err)
		return
	}

	fmt.Printf("Cost for 1000 input + 500 output tokens: $%.6f\n", cost)
}

func ExamplePricingService_CalculateAudioTokenCost() {
	service := openai.NewPricingService("models.json")

	// Calculate cost for one minute of audio in and a short spoken reply
	cost, err := service.CalculateAudioTokenCost("gpt-4o-realtime-preview-2024-12-17", 600, 200)
	if err != nil {
		log.Printf("Error calculating audio token cost: %v", err)
		return
	}

	fmt.Printf("Audio cost: $%.6f\n", cost)
}
