package toolbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// Spawner runs a delegated task in an isolated child loop and returns
// only its final answer. *agent.Spawner satisfies it.
type Spawner interface {
	Spawn(ctx context.Context, task string) (string, error)
}

// SpawnSubagentTool delegates a focused task to a child loop.
type SpawnSubagentTool struct {
	spawner Spawner
}

func NewSpawnSubagentTool(spawner Spawner) *SpawnSubagentTool {
	return &SpawnSubagentTool{spawner: spawner}
}

func (t *SpawnSubagentTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolInfo("spawn_subagent", "Delegate a focused task to an isolated sub-agent and get back only its final answer.",
		map[string]*schema.ParameterInfo{
			"task": {
				Type:     schema.String,
				Desc:     "Complete, self-contained description of the task.",
				Required: true,
			},
		}), nil
}

func (t *SpawnSubagentTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input struct {
		Task string `json:"task"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("spawn_subagent: parse input: %w", err)
	}
	if input.Task == "" {
		return "", fmt.Errorf("spawn_subagent: task is required")
	}
	return t.spawner.Spawn(ctx, input.Task)
}

var _ tool.InvokableTool = (*SpawnSubagentTool)(nil)
