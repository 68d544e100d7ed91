package models

import (
	"context"

	einoclaude "github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/paula/internal/config"
)

const defaultAnthropicMaxTokens = 4096

// NewAnthropic creates a new Anthropic ChatModel for a step.
func NewAnthropic(ctx context.Context, prov config.ProviderConfig, spec StepSpec) (model.ToolCallingChatModel, error) {
	maxTokens := spec.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	modelConfig := &einoclaude.Config{
		APIKey:    prov.APIKey,
		Model:     spec.Model,
		MaxTokens: maxTokens,
	}

	if prov.BaseURL != "" {
		baseURL := prov.BaseURL
		modelConfig.BaseURL = &baseURL
	}

	if spec.Temperature > 0 {
		t := float32(spec.Temperature)
		modelConfig.Temperature = &t
	}

	return einoclaude.NewChatModel(ctx, modelConfig)
}
