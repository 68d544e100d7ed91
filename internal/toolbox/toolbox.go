// Package toolbox registers every capability the loop can dispatch and
// gives them one uniform invoke surface.
package toolbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/paula/internal/events"
)

const defaultInvokeTimeout = 30 * time.Second

// Result is the structured outcome of one tool invocation. A failed tool
// fills Err; it is never raised past the loop.
type Result struct {
	Tool     string
	Output   string
	Err      error
	Duration time.Duration
}

// Failed reports whether the invocation produced an error.
func (r Result) Failed() bool { return r.Err != nil }

// Text returns the output, or the error message for the model to read.
func (r Result) Text() string {
	if r.Err != nil {
		return fmt.Sprintf("error: %v", r.Err)
	}
	return r.Output
}

// ToolBox maps tool names to eino invokable tools.
type ToolBox struct {
	tools   map[string]tool.InvokableTool
	bus     *events.Bus
	timeout time.Duration
	logger  *slog.Logger
}

// New creates an empty ToolBox. timeout bounds each invocation; zero
// means the default.
func New(bus *events.Bus, timeout time.Duration, logger *slog.Logger) *ToolBox {
	if timeout <= 0 {
		timeout = defaultInvokeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolBox{
		tools:   make(map[string]tool.InvokableTool),
		bus:     bus,
		timeout: timeout,
		logger:  logger.With("component", "toolbox"),
	}
}

// Register adds a tool under its Info name.
func (b *ToolBox) Register(ctx context.Context, t tool.InvokableTool) error {
	info, err := t.Info(ctx)
	if err != nil {
		return fmt.Errorf("register tool: %w", err)
	}
	if _, exists := b.tools[info.Name]; exists {
		return fmt.Errorf("tool %q already registered", info.Name)
	}
	b.tools[info.Name] = t
	return nil
}

// Names returns registered tool names sorted alphabetically.
func (b *ToolBox) Names() []string {
	names := make([]string, 0, len(b.tools))
	for name := range b.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Infos returns the tool schemas for model binding, in name order.
func (b *ToolBox) Infos(ctx context.Context) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(b.tools))
	for _, name := range b.Names() {
		info, err := b.tools[name].Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool %q info: %w", name, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Invoke runs one tool with a bounded timeout and returns a structured
// result. Unknown names and execution failures land in Result.Err, not
// in a returned error; the loop decides what to do with them.
func (b *ToolBox) Invoke(ctx context.Context, name, argsJSON string) Result {
	start := time.Now()

	t, ok := b.tools[name]
	if !ok {
		res := Result{Tool: name, Err: &ToolNotFoundError{Name: name}, Duration: time.Since(start)}
		b.emit(ctx, res, argsJSON)
		return res
	}

	b.publishStart(ctx, name, argsJSON)

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	output, err := t.InvokableRun(ctx, argsJSON)
	res := Result{Tool: name, Output: output, Duration: time.Since(start)}
	if err != nil {
		// Sandbox violations keep their own kind; everything else is a
		// plain tool failure.
		var aerr *AccessError
		if errors.As(err, &aerr) {
			res.Err = aerr
		} else {
			res.Err = &ToolError{Tool: name, Err: err}
		}
		res.Output = ""
	}

	b.publishEnd(ctx, res)
	if res.Err != nil {
		b.logger.Debug("tool failed", "tool", name, "error", res.Err)
	}
	return res
}

func (b *ToolBox) emit(ctx context.Context, res Result, argsJSON string) {
	b.publishStart(ctx, res.Tool, argsJSON)
	b.publishEnd(ctx, res)
}

func (b *ToolBox) publishStart(ctx context.Context, name, argsJSON string) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(events.NewTypedEventWithThread(events.SourceToolbox, events.ToolStartPayload{
		Tool:  name,
		Input: argsJSON,
	}, events.ThreadIDFromContext(ctx)))
}

func (b *ToolBox) publishEnd(ctx context.Context, res Result) {
	if b.bus == nil {
		return
	}
	payload := events.ToolEndPayload{
		Tool:     res.Tool,
		Output:   res.Output,
		Duration: res.Duration,
	}
	if res.Err != nil {
		payload.Error = res.Err.Error()
	}
	b.bus.Publish(events.NewTypedEventWithThread(events.SourceToolbox, payload, events.ThreadIDFromContext(ctx)))
}
