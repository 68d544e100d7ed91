package toolbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/dohr-michael/paula/internal/events"
	"github.com/dohr-michael/paula/internal/todo"
)

// WriteTodosName is the registered name of the checklist tool. The loop
// exempts it from the checklist auto-coupling around tool dispatch.
const WriteTodosName = "write_todos"

// WriteTodosTool lets the model replace the current thread's checklist.
type WriteTodosTool struct {
	store todo.Store
}

func NewWriteTodosTool(store todo.Store) *WriteTodosTool {
	return &WriteTodosTool{store: store}
}

func (t *WriteTodosTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolInfo(WriteTodosName, "Replace the task checklist for this conversation. Send the full list; omitted items are dropped.",
		map[string]*schema.ParameterInfo{
			"todos": {
				Type:     schema.Array,
				Desc:     `Checklist items as {"id","title","status"}. Status is one of pending, in_progress, completed, failed; id and status may be omitted for new items.`,
				Required: true,
				ElemInfo: &schema.ParameterInfo{Type: schema.Object},
			},
		}), nil
}

func (t *WriteTodosTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input struct {
		Todos []todo.Item `json:"todos"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("write_todos: parse input: %w", err)
	}

	threadID := events.ThreadIDFromContext(ctx)
	if threadID == "" {
		return "", fmt.Errorf("write_todos: no thread in context")
	}

	for i := range input.Todos {
		if input.Todos[i].ID == "" {
			input.Todos[i].ID = uuid.NewString()
		}
		if input.Todos[i].Status == "" {
			input.Todos[i].Status = todo.StatusPending
		}
	}

	if err := t.store.Write(ctx, threadID, input.Todos); err != nil {
		return "", err
	}
	return fmt.Sprintf("checklist updated, %d items", len(input.Todos)), nil
}

var _ tool.InvokableTool = (*WriteTodosTool)(nil)
