// Package models maps logical pipeline steps (plan, chat, summary) to
// configured chat models and exposes a single invoke surface for them.
package models

import (
	"context"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/paula/internal/config"
)

// Pipeline step names known to the loop.
const (
	StepPlan    = "plan"
	StepChat    = "chat"
	StepSummary = "summary"
)

// StepSpec is the resolved configuration for one pipeline step.
type StepSpec struct {
	Step        string
	Provider    string
	Driver      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type stepEntry struct {
	spec  StepSpec
	prov  config.ProviderConfig
	model model.ToolCallingChatModel
	once  sync.Once
	err   error
}

// Router resolves step names to model specs and invokes the backing
// providers with lazy model initialization. A step never falls back to
// another step's spec.
type Router struct {
	mu      sync.RWMutex
	entries map[string]*stepEntry

	// newModel is the factory used for lazy initialization; replaceable
	// in tests.
	newModel func(ctx context.Context, prov config.ProviderConfig, spec StepSpec) (model.ToolCallingChatModel, error)
}

// NewRouter creates a Router from the models config.
func NewRouter(cfg config.ModelsConfig) *Router {
	r := &Router{
		entries:  make(map[string]*stepEntry),
		newModel: CreateModel,
	}

	for name, step := range cfg.Steps {
		prov := cfg.Providers[step.Provider]
		timeout := step.Timeout.Duration()
		if timeout == 0 {
			timeout = prov.Timeout.Duration()
		}
		r.entries[name] = &stepEntry{
			spec: StepSpec{
				Step:        name,
				Provider:    step.Provider,
				Driver:      prov.Driver,
				Model:       step.Model,
				Temperature: step.Temperature,
				MaxTokens:   step.MaxTokens,
				Timeout:     timeout,
			},
			prov: prov,
		}
	}

	return r
}

// Resolve returns the spec for a step, or UnknownStepError.
func (r *Router) Resolve(step string) (StepSpec, error) {
	r.mu.RLock()
	entry, ok := r.entries[step]
	r.mu.RUnlock()

	if !ok {
		return StepSpec{}, &UnknownStepError{Step: step}
	}
	return entry.spec, nil
}

// Steps returns the configured step names.
func (r *Router) Steps() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// Model returns the chat model for a step, initializing it lazily.
func (r *Router) Model(ctx context.Context, step string) (model.ToolCallingChatModel, error) {
	r.mu.RLock()
	entry, ok := r.entries[step]
	r.mu.RUnlock()

	if !ok {
		return nil, &UnknownStepError{Step: step}
	}

	entry.once.Do(func() {
		entry.model, entry.err = r.newModel(ctx, entry.prov, entry.spec)
	})
	if entry.err != nil {
		return nil, &ProviderError{Step: step, Provider: entry.spec.Provider, Err: entry.err}
	}
	return entry.model, nil
}

// Invoke runs one non-streaming generation for a step. Failures are wrapped
// as ProviderError; the router never retries.
func (r *Router) Invoke(ctx context.Context, step string, messages []*schema.Message) (*schema.Message, error) {
	return r.InvokeWithTools(ctx, step, messages, nil)
}

// InvokeWithTools runs one generation with the given tool schemas bound.
// The invocation carries the step's timeout.
func (r *Router) InvokeWithTools(ctx context.Context, step string, messages []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error) {
	spec, err := r.Resolve(step)
	if err != nil {
		return nil, err
	}

	m, err := r.Model(ctx, step)
	if err != nil {
		return nil, err
	}

	if len(tools) > 0 {
		m, err = m.WithTools(tools)
		if err != nil {
			return nil, &ProviderError{Step: step, Provider: spec.Provider, Err: err}
		}
	}

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	out, err := m.Generate(ctx, messages)
	if err != nil {
		return nil, &ProviderError{Step: step, Provider: spec.Provider, Err: classify(err)}
	}
	return out, nil
}

// Stream runs one streaming generation for a step with tool schemas bound.
func (r *Router) Stream(ctx context.Context, step string, messages []*schema.Message, tools []*schema.ToolInfo) (*schema.StreamReader[*schema.Message], error) {
	spec, err := r.Resolve(step)
	if err != nil {
		return nil, err
	}

	m, err := r.Model(ctx, step)
	if err != nil {
		return nil, err
	}

	if len(tools) > 0 {
		m, err = m.WithTools(tools)
		if err != nil {
			return nil, &ProviderError{Step: step, Provider: spec.Provider, Err: err}
		}
	}

	stream, err := m.Stream(ctx, messages)
	if err != nil {
		return nil, &ProviderError{Step: step, Provider: spec.Provider, Err: classify(err)}
	}
	return stream, nil
}
