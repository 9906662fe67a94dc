package classifier

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/latamwire/news-crawler/pkg/utils"
)

// NewGeminiModel connects the gate to Google's Gemini API.
func NewGeminiModel(ctx context.Context, apiKey, model string) (Model, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: empty Gemini API key", utils.ErrConfigValidation)
	}
	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return llm, nil
}
