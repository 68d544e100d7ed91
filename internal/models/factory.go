package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/paula/internal/config"
)

// CreateModel creates a model.ToolCallingChatModel from a provider config
// and a resolved step spec.
func CreateModel(ctx context.Context, prov config.ProviderConfig, spec StepSpec) (model.ToolCallingChatModel, error) {
	switch strings.ToLower(prov.Driver) {
	case "anthropic":
		return NewAnthropic(ctx, prov, spec)
	case "openai":
		return NewOpenAI(ctx, prov, spec)
	case "ollama":
		return NewOllama(ctx, prov, spec)
	default:
		return nil, fmt.Errorf("unknown driver: %s", prov.Driver)
	}
}
