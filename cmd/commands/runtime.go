package commands

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dohr-michael/paula/internal/agent"
	"github.com/dohr-michael/paula/internal/config"
	"github.com/dohr-michael/paula/internal/events"
	"github.com/dohr-michael/paula/internal/mcp"
	"github.com/dohr-michael/paula/internal/memory"
	"github.com/dohr-michael/paula/internal/models"
	"github.com/dohr-michael/paula/internal/planner"
	"github.com/dohr-michael/paula/internal/skills"
	"github.com/dohr-michael/paula/internal/storage"
	"github.com/dohr-michael/paula/internal/todo"
	"github.com/dohr-michael/paula/internal/toolbox"
)

// runtime holds the assembled agent and its collaborators.
type runtime struct {
	cfg        *config.Config
	db         *sql.DB
	bus        *events.Bus
	box        *toolbox.ToolBox
	todos      todo.Store
	memory     memory.Store
	retriever  *memory.Retriever
	summarizer *memory.Summarizer
	loop       *agent.Loop
	mcp        *mcp.Registry
	eventLog   *storage.EventLogger
}

// buildRuntime wires the full agent stack from configuration.
func buildRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	bus := events.NewBus(cfg.Events.BufferSize)

	rt := &runtime{cfg: cfg, db: db, bus: bus}
	if cfg.Events.LogDir != "" {
		rt.eventLog = storage.NewEventLogger(cfg.Events.LogDir, bus)
	}

	router := models.NewRouter(cfg.Models)

	rt.todos = todo.NewSQLStore(db)
	rt.memory = memory.NewSQLStore(db)
	rt.retriever = memory.NewRetriever(rt.memory, cfg.Memory.MinScore)
	rt.summarizer = memory.NewSummarizer(rt.memory, router, bus, cfg.Memory.SummaryInterval, nil)

	rt.box = toolbox.New(bus, cfg.Agent.ToolTimeout.Duration(), nil)
	if err := rt.registerTools(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	rt.loop = agent.NewLoop(agent.LoopOptions{
		Router:       router,
		Planner:      planner.New(router),
		ToolBox:      rt.box,
		Todos:        rt.todos,
		Memory:       rt.memory,
		Retriever:    rt.retriever,
		Summarizer:   rt.summarizer,
		Checkpointer: agent.NewSQLCheckpointer(db),
		Bus:          bus,
		Persona:      agent.LoadPersona(),
		Config: agent.Config{
			MaxIterations:  cfg.Agent.MaxIterations,
			MaxDepth:       cfg.Agent.MaxDepth,
			TodoRetries:    cfg.Agent.TodoRetries,
			RecencyLimit:   cfg.Memory.RecencyLimit,
			RelevanceLimit: cfg.Memory.RelevanceLimit,
		},
	})

	// The spawner needs the loop, so its tool registers last.
	spawner := agent.NewSpawner(rt.loop, cfg.Agent.MaxDepth, cfg.Agent.EphemeralSubagents, nil)
	if err := rt.box.Register(ctx, toolbox.NewSpawnSubagentTool(spawner)); err != nil {
		rt.Close()
		return nil, err
	}

	slog.Info("runtime assembled", "tools", len(rt.box.Names()), "storage", cfg.Storage.Path)
	return rt, nil
}

func (rt *runtime) registerTools(ctx context.Context) error {
	sandbox, err := toolbox.NewSandbox(rt.cfg.Agent.WorkspaceRoot, rt.cfg.Agent.AllowedPaths)
	if err != nil {
		return fmt.Errorf("init sandbox: %w", err)
	}

	for _, t := range []struct {
		name string
		reg  func() error
	}{
		{"ls", func() error { return rt.box.Register(ctx, toolbox.NewLsTool(sandbox)) }},
		{"read_file", func() error { return rt.box.Register(ctx, toolbox.NewReadFileTool(sandbox)) }},
		{"write_file", func() error { return rt.box.Register(ctx, toolbox.NewWriteFileTool(sandbox)) }},
		{"edit_file", func() error { return rt.box.Register(ctx, toolbox.NewEditFileTool(sandbox)) }},
		{"write_todos", func() error { return rt.box.Register(ctx, toolbox.NewWriteTodosTool(rt.todos)) }},
		{"memory_put", func() error { return rt.box.Register(ctx, toolbox.NewMemoryPutTool(rt.memory)) }},
		{"memory_search", func() error {
			return rt.box.Register(ctx, toolbox.NewMemorySearchTool(rt.retriever, rt.cfg.Memory.RelevanceLimit))
		}},
	} {
		if err := t.reg(); err != nil {
			return fmt.Errorf("register %s: %w", t.name, err)
		}
	}

	if len(rt.cfg.MCP.Servers) > 0 {
		rt.mcp = mcp.NewRegistry(rt.cfg.MCP.Servers, nil)
		if err := rt.box.Register(ctx, toolbox.NewMCPCallTool(rt.mcp)); err != nil {
			return fmt.Errorf("register mcp_call: %w", err)
		}
	}

	skillRegistry := skills.NewRegistry(rt.cfg.Skills, nil)
	if len(skillRegistry.Names()) > 0 {
		if err := rt.box.Register(ctx, toolbox.NewSkillCallTool(skillRegistry)); err != nil {
			return fmt.Errorf("register skill_call: %w", err)
		}
	}

	return nil
}

// Close releases the runtime's resources. Pending summarizations finish
// first.
func (rt *runtime) Close() {
	if rt.summarizer != nil {
		rt.summarizer.Wait()
	}
	if rt.mcp != nil {
		rt.mcp.Close()
	}
	if rt.eventLog != nil {
		rt.eventLog.Close()
	}
	rt.bus.Close()
	rt.db.Close()
}
