// Package providers builds the configured image editor.
package providers

import (
	"context"
	"fmt"

	"photostudio/internal/domain"
	"photostudio/internal/infra"
	"photostudio/internal/providers/genai"
	"photostudio/internal/providers/qwen"
)

// Editor is satisfied by every backend in this tree.
type Editor interface {
	Submit(ctx context.Context, req domain.EditRequest) (domain.EditResult, error)
}

// NewEditor returns the backend selected by cfg.EditorProvider and a short
// description for start-up logs.
func NewEditor(cfg *infra.Config, logger *infra.Logger) (Editor, string, error) {
	switch cfg.EditorProvider {
	case infra.ProviderGemini:
		client, err := genai.NewClient(genai.Options{
			APIKey:  cfg.GeminiAPIKey,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.GeminiModel,
			Timeout: cfg.EditorTimeout,
			Logger:  logger,
		})
		if err != nil {
			return nil, "", err
		}
		return client, "gemini/" + client.Model(), nil
	case infra.ProviderQwen:
		client, err := qwen.NewClient(qwen.Options{
			APIKey:         cfg.QwenAPIKey,
			BaseURL:        cfg.QwenBaseURL,
			Model:          cfg.QwenModel,
			RequestTimeout: cfg.EditorTimeout,
			Logger:         logger,
		})
		if err != nil {
			return nil, "", err
		}
		return client, "qwen/" + client.Model(), nil
	case infra.ProviderSynthetic:
		return genai.NewSynthetic(cfg.SyntheticLatency, logger), "synthetic", nil
	default:
		return nil, "", fmt.Errorf("unknown editor provider %q", cfg.EditorProvider)
	}
}
