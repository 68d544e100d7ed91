package models

import (
	"context"
	"time"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/paula/internal/config"
)

// NewOpenAI creates a new OpenAI ChatModel for a step.
func NewOpenAI(ctx context.Context, prov config.ProviderConfig, spec StepSpec) (model.ToolCallingChatModel, error) {
	modelConfig := &einoopenai.ChatModelConfig{
		APIKey: prov.APIKey,
		Model:  spec.Model,
	}

	if prov.BaseURL != "" {
		modelConfig.BaseURL = prov.BaseURL
	}

	if spec.MaxTokens > 0 {
		maxTokens := spec.MaxTokens
		modelConfig.MaxCompletionTokens = &maxTokens
	}

	if spec.Temperature > 0 {
		t := float32(spec.Temperature)
		modelConfig.Temperature = &t
	}

	if spec.Timeout > 0 {
		modelConfig.Timeout = spec.Timeout
	} else {
		modelConfig.Timeout = 60 * time.Second
	}

	return einoopenai.NewChatModel(ctx, modelConfig)
}
