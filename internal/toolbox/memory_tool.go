package toolbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/paula/internal/events"
	"github.com/dohr-michael/paula/internal/memory"
)

// MemoryPutTool persists one fact in the user's memory scope.
type MemoryPutTool struct {
	store memory.Store
}

func NewMemoryPutTool(store memory.Store) *MemoryPutTool {
	return &MemoryPutTool{store: store}
}

func (t *MemoryPutTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolInfo("memory_put", "Remember a fact, preference or decision for later conversations.",
		map[string]*schema.ParameterInfo{
			"content": {
				Type:     schema.String,
				Desc:     "The text to remember.",
				Required: true,
			},
		}), nil
}

func (t *MemoryPutTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("memory_put: parse input: %w", err)
	}
	if input.Content == "" {
		return "", fmt.Errorf("memory_put: content is required")
	}

	scope := events.UserIDFromContext(ctx)
	if scope == "" {
		return "", fmt.Errorf("memory_put: no user in context")
	}

	rec, err := t.store.PutConversation(ctx, scope, input.Content)
	if err != nil {
		return "", fmt.Errorf("memory_put: %w", err)
	}
	return rec.ID, nil
}

// MemorySearchTool runs a relevance search over the user's memory scope.
type MemorySearchTool struct {
	retriever *memory.Retriever
	limit     int
}

func NewMemorySearchTool(retriever *memory.Retriever, limit int) *MemorySearchTool {
	if limit <= 0 {
		limit = 5
	}
	return &MemorySearchTool{retriever: retriever, limit: limit}
}

func (t *MemorySearchTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolInfo("memory_search", "Search stored memories for facts relevant to a query.",
		map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "What to look for.",
				Required: true,
			},
			"limit": {
				Type: schema.Integer,
				Desc: "Maximum results to return.",
			},
		}), nil
}

func (t *MemorySearchTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("memory_search: parse input: %w", err)
	}
	if input.Query == "" {
		return "", fmt.Errorf("memory_search: query is required")
	}

	scope := events.UserIDFromContext(ctx)
	if scope == "" {
		return "", fmt.Errorf("memory_search: no user in context")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = t.limit
	}

	matches, err := t.retriever.Search(ctx, scope, input.Query, limit)
	if err != nil {
		return "", fmt.Errorf("memory_search: %w", err)
	}
	if len(matches) == 0 {
		return "no matching memories", nil
	}

	type hit struct {
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	}
	hits := make([]hit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, hit{Content: m.Record.Content, Score: m.Score})
	}
	out, err := json.Marshal(hits)
	if err != nil {
		return "", fmt.Errorf("memory_search: %w", err)
	}
	return string(out), nil
}

var (
	_ tool.InvokableTool = (*MemoryPutTool)(nil)
	_ tool.InvokableTool = (*MemorySearchTool)(nil)
)
