package agent

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/paula/internal/events"
	"github.com/dohr-michael/paula/internal/memory"
	"github.com/dohr-michael/paula/internal/planner"
	"github.com/dohr-michael/paula/internal/storage"
	"github.com/dohr-michael/paula/internal/todo"
	"github.com/dohr-michael/paula/internal/toolbox"
)

// fakeModel scripts the plan and chat steps. Chat replies are consumed in
// order; the last one repeats once the script runs out.
type fakeModel struct {
	mu       sync.Mutex
	planText string
	planErr  error
	replies  []*schema.Message
	chunks   [][]*schema.Message // per-call chunked stream, overrides replies
	errs     []error
	idx      int
	calls    [][]*schema.Message

	started chan struct{} // closed on first chat call when set
	release chan struct{} // first chat call waits on it when set
	first   bool
}

func (f *fakeModel) Invoke(_ context.Context, step string, _ []*schema.Message) (*schema.Message, error) {
	if step == "plan" {
		if f.planErr != nil {
			return nil, f.planErr
		}
		return schema.AssistantMessage(f.planText, nil), nil
	}
	return schema.AssistantMessage("condensed", nil), nil
}

func (f *fakeModel) Stream(ctx context.Context, _ string, msgs []*schema.Message, _ []*schema.ToolInfo) (*schema.StreamReader[*schema.Message], error) {
	f.mu.Lock()
	blockHere := !f.first && f.started != nil
	f.first = true
	captured := make([]*schema.Message, len(msgs))
	copy(captured, msgs)
	f.calls = append(f.calls, captured)
	i := f.idx
	if i >= len(f.replies) && len(f.replies) > 0 {
		i = len(f.replies) - 1
	}
	f.idx++
	f.mu.Unlock()

	if blockHere {
		close(f.started)
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.chunks) && f.chunks[i] != nil {
		return schema.StreamReaderFromArray(f.chunks[i]), nil
	}
	if len(f.replies) == 0 {
		return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage("ok", nil)}), nil
	}
	return schema.StreamReaderFromArray([]*schema.Message{f.replies[i]}), nil
}

func (f *fakeModel) chatCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idx
}

func toolCallMsg(id, name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{
		{ID: id, Function: schema.FunctionCall{Name: name, Arguments: args}},
	})
}

type probeTool struct {
	name string
	out  string
	err  error
}

func (p *probeTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{Name: p.name, Desc: "test probe"}, nil
}

func (p *probeTool) InvokableRun(_ context.Context, _ string, _ ...tool.Option) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.out, nil
}

// recoveringTool fails its first invocation and succeeds afterwards.
type recoveringTool struct {
	mu    sync.Mutex
	name  string
	calls int
}

func (r *recoveringTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{Name: r.name, Desc: "test probe"}, nil
}

func (r *recoveringTool) InvokableRun(_ context.Context, _ string, _ ...tool.Option) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls == 1 {
		return "", errors.New("transient failure")
	}
	return "done", nil
}

type loopFixture struct {
	loop  *Loop
	bus   *events.Bus
	db    *sql.DB
	todos todo.Store
	mem   memory.Store
}

func newLoopFixture(t *testing.T, fm *fakeModel, cfg Config, tools ...tool.InvokableTool) *loopFixture {
	t.Helper()

	db, err := storage.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	bus := events.NewBus(256)
	t.Cleanup(bus.Close)

	box := toolbox.New(bus, 2*time.Second, nil)
	for _, tl := range tools {
		if err := box.Register(context.Background(), tl); err != nil {
			t.Fatal(err)
		}
	}

	todoStore := todo.NewSQLStore(db)
	memStore := memory.NewSQLStore(db)

	loop := NewLoop(LoopOptions{
		Router:       fm,
		Planner:      planner.New(fm),
		ToolBox:      box,
		Todos:        todoStore,
		Memory:       memStore,
		Retriever:    memory.NewRetriever(memStore, 0.1),
		Checkpointer: NewSQLCheckpointer(db),
		Bus:          bus,
		Persona:      "test persona",
		Config:       cfg,
	})
	return &loopFixture{loop: loop, bus: bus, db: db, todos: todoStore, mem: memStore}
}

// collectEvents drains the bus for a grace period after the turn finished.
func collectEvents(ch <-chan events.Event) []events.Event {
	var collected []events.Event
	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case e := <-ch:
			collected = append(collected, e)
		case <-deadline:
			return collected
		}
	}
}

func countEvents(evs []events.Event, typ events.EventType) int {
	n := 0
	for _, e := range evs {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func TestRunHappyPath(t *testing.T) {
	fm := &fakeModel{
		planText: `{"plan":["inspect the request","answer it"],"todos":[{"id":"t1","title":"inspect the request"},{"id":"t2","title":"answer it"}],"summary":"two step job"}`,
		replies: []*schema.Message{
			toolCallMsg("c1", "probe", `{"q":"x"}`),
			schema.AssistantMessage("the answer is 42", nil),
		},
	}
	fx := newLoopFixture(t, fm, Config{}, &probeTool{name: "probe", out: "probe-ok"})

	ch, unsub := fx.bus.SubscribeChan(128)
	defer unsub()

	res, err := fx.loop.Run(context.Background(), Request{ThreadID: "thread-a", UserID: "user-1", Message: "what is the answer?"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Reply != "the answer is 42" {
		t.Errorf("unexpected reply: %q", res.Reply)
	}
	if len(res.Plan) != 2 {
		t.Errorf("unexpected plan: %v", res.Plan)
	}

	items, err := fx.todos.Get(context.Background(), "thread-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 todos, got %d", len(items))
	}
	if items[0].Status != todo.StatusCompleted {
		t.Errorf("first todo should be completed, got %s", items[0].Status)
	}
	if items[1].Status != todo.StatusPending {
		t.Errorf("second todo should still be pending, got %s", items[1].Status)
	}

	recent, err := fx.mem.Recent(context.Background(), "thread-a", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || !strings.Contains(recent[0].Content, "the answer is 42") {
		t.Errorf("turn not persisted to memory: %+v", recent)
	}

	state, err := fx.loop.checkpointer.Load(context.Background(), "thread-a")
	if err != nil {
		t.Fatal(err)
	}
	if state == nil || state.Reply != "the answer is 42" {
		t.Errorf("unexpected checkpoint: %+v", state)
	}

	evs := collectEvents(ch)
	if n := countEvents(evs, events.EventTurnCompleted); n != 1 {
		t.Errorf("expected exactly one turn.completed, got %d", n)
	}
	for _, typ := range []events.EventType{
		events.EventUserMessage, events.EventPlan, events.EventTodos,
		events.EventToolStart, events.EventToolEnd, events.EventToken,
	} {
		if countEvents(evs, typ) == 0 {
			t.Errorf("missing %s event", typ)
		}
	}
	for _, e := range evs {
		if e.ThreadID != "thread-a" {
			t.Errorf("event %s carries thread %q", e.Type, e.ThreadID)
		}
	}
	if evs[0].Type != events.EventUserMessage {
		t.Errorf("stream should open with user.message, got %s", evs[0].Type)
	}
	if evs[len(evs)-1].Type != events.EventTurnCompleted {
		t.Errorf("stream should end with turn.completed, got %s", evs[len(evs)-1].Type)
	}
}

func TestRunToolFailureMarksAndRetries(t *testing.T) {
	fm := &fakeModel{
		planText: `{"plan":["fetch the report"],"todos":[{"id":"t1","title":"fetch the report"}]}`,
		replies: []*schema.Message{
			toolCallMsg("c1", "flaky", `{}`),
			toolCallMsg("c2", "flaky", `{}`),
			schema.AssistantMessage("could not fetch the report", nil),
		},
	}
	fx := newLoopFixture(t, fm, Config{TodoRetries: 1}, &probeTool{name: "flaky", err: errors.New("upstream down")})

	res, err := fx.loop.Run(context.Background(), Request{ThreadID: "thread-c", UserID: "user-1", Message: "fetch it"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Reply != "could not fetch the report" {
		t.Errorf("unexpected reply: %q", res.Reply)
	}

	// One retry allowed: failed, back to pending, failed again, stays failed.
	items, err := fx.todos.Get(context.Background(), "thread-c")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Status != todo.StatusFailed {
		t.Errorf("expected a single failed todo, got %+v", items)
	}

	// The failure reached the model as a tool result, not as a crash.
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if len(fm.calls) != 3 {
		t.Fatalf("expected 3 chat calls, got %d", len(fm.calls))
	}
	var sawError bool
	for _, msg := range fm.calls[2] {
		if msg.Role == schema.Tool && strings.Contains(msg.Content, "upstream down") {
			sawError = true
		}
	}
	if !sawError {
		t.Error("tool failure was not fed back to the model")
	}
}

func TestRunStreamsTokenDeltas(t *testing.T) {
	fm := &fakeModel{
		planText: `{"plan":["answer"],"todos":[]}`,
		chunks: [][]*schema.Message{{
			schema.AssistantMessage("the answer", nil),
			schema.AssistantMessage(" is", nil),
			schema.AssistantMessage(" 42", nil),
		}},
	}
	fx := newLoopFixture(t, fm, Config{})

	ch, unsub := fx.bus.SubscribeChan(128)
	defer unsub()

	res, err := fx.loop.Run(context.Background(), Request{ThreadID: "thread-s", UserID: "user-1", Message: "what is the answer?"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Reply != "the answer is 42" {
		t.Errorf("chunks not assembled: %q", res.Reply)
	}

	// One token event per content chunk, in arrival order.
	var deltas []string
	for _, e := range collectEvents(ch) {
		if tok, ok := events.GetTokenPayload(e); ok {
			deltas = append(deltas, tok.Content)
		}
	}
	want := []string{"the answer", " is", " 42"}
	if len(deltas) != len(want) {
		t.Fatalf("expected %d token events, got %v", len(want), deltas)
	}
	for i := range want {
		if deltas[i] != want[i] {
			t.Errorf("delta %d: expected %q, got %q", i, want[i], deltas[i])
		}
	}
}

func TestRunWriteTodosKeepsModelStatuses(t *testing.T) {
	fm := &fakeModel{
		planText: `{"plan":["step one"],"todos":[{"id":"t1","title":"step one"}]}`,
		replies: []*schema.Message{
			toolCallMsg("c1", "write_todos",
				`{"todos":[{"id":"t1","title":"step one","status":"pending"},{"id":"t2","title":"step two","status":"pending"}]}`),
			schema.AssistantMessage("checklist updated", nil),
		},
	}
	fx := newLoopFixture(t, fm, Config{})
	wt := toolbox.NewWriteTodosTool(fx.todos)
	if err := fx.loop.box.Register(context.Background(), wt); err != nil {
		t.Fatal(err)
	}

	res, err := fx.loop.Run(context.Background(), Request{ThreadID: "thread-w", UserID: "user-1", Message: "plan the work"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Reply != "checklist updated" {
		t.Errorf("unexpected reply: %q", res.Reply)
	}

	// The statuses the model wrote survive; nothing was marked
	// in_progress or completed around the write_todos dispatch.
	items, err := fx.todos.Get(context.Background(), "thread-w")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %+v", items)
	}
	for _, it := range items {
		if it.Status != todo.StatusPending {
			t.Errorf("item %s: expected pending, got %s", it.ID, it.Status)
		}
	}
}

func TestRunToolRetrySucceeds(t *testing.T) {
	fm := &fakeModel{
		planText: `{"plan":["fetch the report"],"todos":[{"id":"t1","title":"fetch the report"}]}`,
		replies: []*schema.Message{
			toolCallMsg("c1", "recover", `{}`),
			toolCallMsg("c2", "recover", `{}`),
			schema.AssistantMessage("report fetched", nil),
		},
	}
	fx := newLoopFixture(t, fm, Config{TodoRetries: 1}, &recoveringTool{name: "recover"})

	res, err := fx.loop.Run(context.Background(), Request{ThreadID: "thread-r", UserID: "user-1", Message: "fetch it"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Reply != "report fetched" {
		t.Errorf("unexpected reply: %q", res.Reply)
	}

	// Failed once, went back to pending, second attempt completed it.
	items, err := fx.todos.Get(context.Background(), "thread-r")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Status != todo.StatusCompleted {
		t.Errorf("expected a single completed todo, got %+v", items)
	}
}

func TestRunProviderErrorIsTerminal(t *testing.T) {
	boom := errors.New("rate limited")
	fm := &fakeModel{
		planText: `{"plan":["answer"],"todos":[]}`,
		replies:  []*schema.Message{schema.AssistantMessage("unused", nil)},
		errs:     []error{boom},
	}
	fx := newLoopFixture(t, fm, Config{})

	ch, unsub := fx.bus.SubscribeChan(64, events.EventTurnCompleted, events.EventError)
	defer unsub()

	_, err := fx.loop.Run(context.Background(), Request{ThreadID: "thread-e", Message: "hi"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}

	evs := collectEvents(ch)
	if n := countEvents(evs, events.EventTurnCompleted); n != 1 {
		t.Fatalf("expected exactly one turn.completed, got %d", n)
	}
	for _, e := range evs {
		if e.Type != events.EventTurnCompleted {
			continue
		}
		payload, ok := events.GetTurnCompletedPayload(e)
		if !ok || !payload.Failed {
			t.Errorf("terminal event should carry failed=true: %+v", e.Payload)
		}
	}
	if countEvents(evs, events.EventError) == 0 {
		t.Error("expected a turn.error event")
	}

	// Nothing was persisted for the aborted turn.
	recent, err := fx.mem.Recent(context.Background(), "thread-e", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 0 {
		t.Errorf("aborted turn should not reach memory: %+v", recent)
	}
}

func TestRunPlannerProviderErrorIsTerminal(t *testing.T) {
	boom := errors.New("authentication failed")
	fm := &fakeModel{planErr: boom}
	fx := newLoopFixture(t, fm, Config{})

	_, err := fx.loop.Run(context.Background(), Request{ThreadID: "thread-p", Message: "hi"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected planner provider error, got %v", err)
	}
	if fm.chatCalls() != 0 {
		t.Error("reasoning should not start after a failed plan step")
	}
}

func TestRunIterationCap(t *testing.T) {
	fm := &fakeModel{
		planText: `{"plan":["loop forever"],"todos":[]}`,
		replies:  []*schema.Message{toolCallMsg("c1", "probe", `{}`)},
	}
	fx := newLoopFixture(t, fm, Config{MaxIterations: 3}, &probeTool{name: "probe", out: "ok"})

	_, err := fx.loop.Run(context.Background(), Request{ThreadID: "thread-i", Message: "go"})
	if err == nil || !strings.Contains(err.Error(), "no final answer") {
		t.Fatalf("expected iteration cap error, got %v", err)
	}
	if fm.chatCalls() != 3 {
		t.Errorf("expected 3 chat calls, got %d", fm.chatCalls())
	}
}

func TestRunCompletesLeftoverInProgress(t *testing.T) {
	fm := &fakeModel{
		planText: `{"plan":[],"todos":[]}`,
		replies:  []*schema.Message{schema.AssistantMessage("done", nil)},
	}
	fx := newLoopFixture(t, fm, Config{})

	seeded := []todo.Item{
		{ID: "t1", Title: "half finished step", Status: todo.StatusInProgress},
	}
	if err := fx.todos.Write(context.Background(), "thread-l", seeded); err != nil {
		t.Fatal(err)
	}

	if _, err := fx.loop.Run(context.Background(), Request{ThreadID: "thread-l", Message: "finish up"}); err != nil {
		t.Fatal(err)
	}

	items, err := fx.todos.Get(context.Background(), "thread-l")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Status != todo.StatusCompleted {
		t.Errorf("leftover in_progress item should be completed, got %+v", items)
	}
}

func TestRunSerializesPerThread(t *testing.T) {
	fm := &fakeModel{
		planText: `{"plan":["answer"],"todos":[]}`,
		replies:  []*schema.Message{schema.AssistantMessage("ok", nil)},
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	fx := newLoopFixture(t, fm, Config{})

	var mu sync.Mutex
	var order []string

	first := make(chan struct{})
	go func() {
		defer close(first)
		if _, err := fx.loop.Run(context.Background(), Request{ThreadID: "shared", Message: "one"}); err != nil {
			t.Error(err)
		}
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
	}()

	<-fm.started

	second := make(chan struct{})
	go func() {
		defer close(second)
		if _, err := fx.loop.Run(context.Background(), Request{ThreadID: "shared", Message: "two"}); err != nil {
			t.Error(err)
		}
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
	}()

	// The second message must queue behind the one still executing.
	select {
	case <-second:
		t.Fatal("second turn finished while the first was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(fm.release)
	<-first
	<-second

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("unexpected completion order: %v", order)
	}
}

func TestRunGeneratesThreadID(t *testing.T) {
	fm := &fakeModel{
		planText: `{"plan":["answer"],"todos":[]}`,
		replies:  []*schema.Message{schema.AssistantMessage("ok", nil)},
	}
	fx := newLoopFixture(t, fm, Config{})

	res, err := fx.loop.Run(context.Background(), Request{Message: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if res.ThreadID == "" {
		t.Error("expected a generated thread id")
	}
}
