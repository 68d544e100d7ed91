package models

import (
	"context"
	"time"

	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/paula/internal/config"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// NewOllama creates a new Ollama ChatModel for a step.
func NewOllama(ctx context.Context, prov config.ProviderConfig, spec StepSpec) (model.ToolCallingChatModel, error) {
	baseURL := prov.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}

	modelConfig := &einoollama.ChatModelConfig{
		BaseURL: baseURL,
		Model:   spec.Model,
	}

	if spec.Timeout > 0 {
		modelConfig.Timeout = spec.Timeout
	} else {
		modelConfig.Timeout = 300 * time.Second
	}

	opts := &einoollama.Options{}
	if spec.MaxTokens > 0 {
		opts.NumPredict = spec.MaxTokens
	}
	if spec.Temperature > 0 {
		opts.Temperature = float32(spec.Temperature)
	}
	modelConfig.Options = opts

	return einoollama.NewChatModel(ctx, modelConfig)
}
