// Package agent owns the per-message cognitive cycle: assemble context,
// plan, reason against tools, reflect, answer.
package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/dohr-michael/paula/internal/events"
	"github.com/dohr-michael/paula/internal/memory"
	"github.com/dohr-michael/paula/internal/planner"
	"github.com/dohr-michael/paula/internal/todo"
	"github.com/dohr-michael/paula/internal/toolbox"
)

// ModelInvoker is the slice of the model router the loop needs. Chat
// turns stream so token deltas reach the bus as they arrive.
type ModelInvoker interface {
	Invoke(ctx context.Context, step string, messages []*schema.Message) (*schema.Message, error)
	Stream(ctx context.Context, step string, messages []*schema.Message, tools []*schema.ToolInfo) (*schema.StreamReader[*schema.Message], error)
}

// Request is one incoming message for a thread.
type Request struct {
	ThreadID string
	UserID   string
	Message  string
}

// Result is the loop's answer for one turn.
type Result struct {
	ThreadID string
	Reply    string
	Plan     []string
	Todos    []todo.Item
	Memories []memory.RetrievedRecord
}

// Config bounds one loop execution.
type Config struct {
	MaxIterations  int
	MaxDepth       int
	TodoRetries    int
	RecencyLimit   int
	RelevanceLimit int
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 20
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 2
	}
	if c.RecencyLimit <= 0 {
		c.RecencyLimit = 5
	}
	if c.RelevanceLimit <= 0 {
		c.RelevanceLimit = 8
	}
	return c
}

// LoopOptions wires the loop's collaborators.
type LoopOptions struct {
	Router       ModelInvoker
	Planner      *planner.Planner
	ToolBox      *toolbox.ToolBox
	Todos        todo.Store
	Memory       memory.Store
	Retriever    *memory.Retriever
	Summarizer   *memory.Summarizer
	Checkpointer Checkpointer
	Bus          *events.Bus
	Persona      string
	Config       Config
	Logger       *slog.Logger
}

// Loop runs the orchestration cycle. One execution per thread at a time;
// a second message for a busy thread queues behind the first.
type Loop struct {
	router       ModelInvoker
	planner      *planner.Planner
	box          *toolbox.ToolBox
	todos        todo.Store
	mem          memory.Store
	retriever    *memory.Retriever
	summarizer   *memory.Summarizer
	checkpointer Checkpointer
	bus          *events.Bus
	persona      string
	cfg          Config
	logger       *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLoop(opts LoopOptions) *Loop {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		router:       opts.Router,
		planner:      opts.Planner,
		box:          opts.ToolBox,
		todos:        opts.Todos,
		mem:          opts.Memory,
		retriever:    opts.Retriever,
		summarizer:   opts.Summarizer,
		checkpointer: opts.Checkpointer,
		bus:          opts.Bus,
		persona:      opts.Persona,
		cfg:          opts.Config.withDefaults(),
		logger:       logger.With("component", "loop"),
		locks:        make(map[string]*sync.Mutex),
	}
}

// Run executes one full turn for a thread. Mutations committed before a
// failure or cancellation stay committed.
func (l *Loop) Run(ctx context.Context, req Request) (*Result, error) {
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}
	start := time.Now()

	lock := l.threadLock(req.ThreadID)
	lock.Lock()
	defer lock.Unlock()

	ctx = events.ContextWithThreadID(ctx, req.ThreadID)
	ctx = events.ContextWithUserID(ctx, req.UserID)

	l.publish(ctx, events.UserMessagePayload{UserID: req.UserID, Content: req.Message})
	l.status(ctx, "Analyzing request...")

	// ContextAssembly
	recent, err := l.mem.Recent(ctx, req.ThreadID, l.cfg.RecencyLimit)
	if err != nil {
		return nil, l.fail(ctx, start, fmt.Errorf("load history: %w", err))
	}
	var summary string
	if latest, err := l.mem.LatestSummary(ctx, req.ThreadID); err != nil {
		return nil, l.fail(ctx, start, fmt.Errorf("load summary: %w", err))
	} else if latest != nil {
		summary = latest.Content
	}
	facts := l.relevantFacts(ctx, req)

	// Planning
	plan, err := l.planner.Plan(ctx, req.Message, l.toolsDescription(ctx))
	if err != nil {
		return nil, l.fail(ctx, start, err)
	}
	l.publish(ctx, events.PlanPayload{Plan: plan.Plan, Summary: plan.Summary})
	if len(plan.Todos) > 0 {
		// Persist before execution so a crash mid-turn leaves a
		// recoverable checklist.
		if err := l.todos.Write(ctx, req.ThreadID, plan.Todos); err != nil {
			return nil, l.fail(ctx, start, err)
		}
		l.publishTodos(ctx, plan.Todos)
	}
	items, err := l.todos.Get(ctx, req.ThreadID)
	if err != nil {
		return nil, l.fail(ctx, start, err)
	}

	// Reasoning / ToolExecution
	reply, err := l.reason(ctx, req, promptInputs{
		Persona:  l.persona,
		Summary:  summary,
		Facts:    facts,
		Recent:   recent,
		Plan:     plan.Plan,
		Todos:    items,
		ToolDesc: l.toolsDescription(ctx),
	})
	if err != nil {
		return nil, l.fail(ctx, start, err)
	}

	// Whatever is still marked in_progress after a finished turn is done.
	l.completeLeftovers(ctx, req.ThreadID)

	finalTodos, err := l.todos.Get(ctx, req.ThreadID)
	if err != nil {
		finalTodos = items
	}

	// Reflection
	record := fmt.Sprintf("user: %s\nassistant: %s", req.Message, reply)
	if _, err := l.mem.PutConversation(ctx, req.ThreadID, record); err != nil {
		l.logger.Warn("persist turn failed", "thread", req.ThreadID, "error", err)
	} else if l.summarizer != nil {
		l.summarizer.TriggerDetached(req.ThreadID)
	}

	if l.checkpointer != nil {
		state := LoopState{
			Message:   req.Message,
			Reply:     reply,
			Plan:      plan.Plan,
			Todos:     finalTodos,
			Timestamp: time.Now().UTC(),
		}
		if err := l.checkpointer.Save(ctx, req.ThreadID, state); err != nil {
			l.logger.Warn("checkpoint failed", "thread", req.ThreadID, "error", err)
		}
	}

	l.publish(ctx, events.TurnCompletedPayload{Reply: reply, Duration: time.Since(start)})

	return &Result{
		ThreadID: req.ThreadID,
		Reply:    reply,
		Plan:     plan.Plan,
		Todos:    finalTodos,
		Memories: facts,
	}, nil
}

// reason drives the model-call / tool-dispatch cycle until the model
// settles on a final answer or the iteration cap trips.
func (l *Loop) reason(ctx context.Context, req Request, in promptInputs) (string, error) {
	infos, err := l.box.Infos(ctx)
	if err != nil {
		return "", err
	}

	msgs := []*schema.Message{
		schema.SystemMessage(composePrompt(in)),
		schema.UserMessage(req.Message),
	}
	retried := make(map[string]int)

	for i := 0; i < l.cfg.MaxIterations; i++ {
		// A disconnected caller stops further iterations; the turn's
		// committed mutations stay.
		if err := ctx.Err(); err != nil {
			return "", err
		}

		l.status(ctx, "Thinking...")
		out, err := l.consumeChat(ctx, msgs, infos)
		if err != nil {
			return "", err
		}

		if len(out.ToolCalls) == 0 {
			return out.Content, nil
		}

		msgs = append(msgs, out)
		for _, call := range out.ToolCalls {
			// write_todos rewrites the checklist itself; coupling its
			// dispatch to the checklist would clobber what it wrote.
			var current *todo.Item
			if call.Function.Name != toolbox.WriteTodosName {
				current = l.markInProgress(ctx, req.ThreadID)
			}
			res := l.box.Invoke(ctx, call.Function.Name, call.Function.Arguments)
			msgs = append(msgs, schema.ToolMessage(res.Text(), call.ID, schema.WithToolName(call.Function.Name)))
			if call.Function.Name != toolbox.WriteTodosName {
				l.settleTodo(ctx, req.ThreadID, current, res, retried)
			}
		}
	}

	return "", fmt.Errorf("no final answer after %d iterations", l.cfg.MaxIterations)
}

// consumeChat streams one chat generation, publishing each content delta
// as a token event, and returns the aggregated message.
func (l *Loop) consumeChat(ctx context.Context, msgs []*schema.Message, infos []*schema.ToolInfo) (*schema.Message, error) {
	stream, err := l.router.Stream(ctx, "chat", msgs, infos)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var chunks []*schema.Message
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			continue
		}
		if chunk.Content != "" {
			l.publish(ctx, events.TokenPayload{Content: chunk.Content})
		}
		chunks = append(chunks, chunk)
	}

	if len(chunks) == 0 {
		return schema.AssistantMessage("", nil), nil
	}
	out, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, fmt.Errorf("assemble streamed reply: %w", err)
	}
	return out, nil
}

// markInProgress moves the first pending item to in_progress and returns
// it, or nil when the checklist has no pending work.
func (l *Loop) markInProgress(ctx context.Context, threadID string) *todo.Item {
	items, err := l.todos.Get(ctx, threadID)
	if err != nil {
		return nil
	}
	first := todo.FirstPending(items)
	if first == nil {
		return nil
	}
	if err := l.todos.SetStatus(ctx, threadID, first.ID, todo.StatusInProgress); err != nil {
		l.logger.Debug("todo transition failed", "thread", threadID, "item", first.ID, "error", err)
		return nil
	}
	l.publishCurrentTodos(ctx, threadID)
	return first
}

// settleTodo reflects one tool outcome on the active checklist item. A
// failed item returns to pending once per turn; after that it stays
// failed.
func (l *Loop) settleTodo(ctx context.Context, threadID string, item *todo.Item, res toolbox.Result, retried map[string]int) {
	if item == nil {
		return
	}

	if !res.Failed() {
		if err := l.todos.SetStatus(ctx, threadID, item.ID, todo.StatusCompleted); err != nil {
			l.logger.Debug("todo transition failed", "thread", threadID, "item", item.ID, "error", err)
		}
		l.publishCurrentTodos(ctx, threadID)
		return
	}

	if err := l.todos.SetStatus(ctx, threadID, item.ID, todo.StatusFailed); err != nil {
		l.logger.Debug("todo transition failed", "thread", threadID, "item", item.ID, "error", err)
		return
	}
	maxRetries := l.cfg.TodoRetries
	if retried[item.ID] < maxRetries {
		if _, err := l.todos.Retry(ctx, threadID, item.ID); err == nil {
			retried[item.ID]++
		}
	}
	l.publish(ctx, events.ErrorPayload{Content: res.Err.Error(), Severity: events.SeverityWarning})
	l.publishCurrentTodos(ctx, threadID)
}

// completeLeftovers closes items the model worked on but never marked.
func (l *Loop) completeLeftovers(ctx context.Context, threadID string) {
	items, err := l.todos.Get(ctx, threadID)
	if err != nil {
		return
	}
	var changed bool
	for _, item := range items {
		if item.Status == todo.StatusInProgress {
			if err := l.todos.SetStatus(ctx, threadID, item.ID, todo.StatusCompleted); err == nil {
				changed = true
			}
		}
	}
	if changed {
		l.publishCurrentTodos(ctx, threadID)
	}
}

// relevantFacts searches the thread and user scopes and merges the top
// matches. Both scopes empty is a normal answer, not a failure.
func (l *Loop) relevantFacts(ctx context.Context, req Request) []memory.RetrievedRecord {
	if l.retriever == nil {
		return nil
	}
	var merged []memory.RetrievedRecord
	for _, scope := range []string{req.ThreadID, req.UserID} {
		if scope == "" {
			continue
		}
		matches, err := l.retriever.Search(ctx, scope, req.Message, l.cfg.RelevanceLimit)
		if err != nil {
			l.logger.Warn("relevance search failed", "scope", scope, "error", err)
			continue
		}
		merged = append(merged, matches...)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > l.cfg.RelevanceLimit {
		merged = merged[:l.cfg.RelevanceLimit]
	}
	return merged
}

func (l *Loop) toolsDescription(ctx context.Context) string {
	infos, err := l.box.Infos(ctx)
	if err != nil {
		return ""
	}
	var sb strings.Builder
	for _, info := range infos {
		fmt.Fprintf(&sb, "- %s: %s\n", info.Name, info.Desc)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// fail emits the terminal error pair and returns the error unchanged.
func (l *Loop) fail(ctx context.Context, start time.Time, err error) error {
	l.publish(ctx, events.ErrorPayload{Content: err.Error(), Severity: events.SeverityError})
	l.publish(ctx, events.TurnCompletedPayload{Failed: true, Duration: time.Since(start)})
	return err
}

func (l *Loop) status(ctx context.Context, content string) {
	l.publish(ctx, events.StatusPayload{Content: content})
}

func (l *Loop) publish(ctx context.Context, payload events.EventPayload) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(events.NewTypedEventWithThread(events.SourceLoop, payload, events.ThreadIDFromContext(ctx)))
}

func (l *Loop) publishTodos(ctx context.Context, items []todo.Item) {
	views := make([]events.TodoView, 0, len(items))
	for _, item := range items {
		views = append(views, events.TodoView{ID: item.ID, Title: item.Title, Status: string(item.Status)})
	}
	l.publish(ctx, events.TodosPayload{Todos: views})
}

func (l *Loop) publishCurrentTodos(ctx context.Context, threadID string) {
	items, err := l.todos.Get(ctx, threadID)
	if err != nil {
		return
	}
	l.publishTodos(ctx, items)
}

func (l *Loop) threadLock(threadID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[threadID] = lock
	}
	return lock
}
