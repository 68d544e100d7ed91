package agent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/dohr-michael/paula/internal/events"
)

// Spawner launches child loops for delegated subtasks. Each child gets a
// fresh thread: its own checklist and conversation memory, invisible to
// the parent. Only the final reply text crosses back.
type Spawner struct {
	loop      *Loop
	maxDepth  int
	ephemeral bool
	logger    *slog.Logger
}

func NewSpawner(loop *Loop, maxDepth int, ephemeral bool, logger *slog.Logger) *Spawner {
	if maxDepth <= 0 {
		maxDepth = loop.cfg.MaxDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Spawner{
		loop:      loop,
		maxDepth:  maxDepth,
		ephemeral: ephemeral,
		logger:    logger.With("component", "subagent"),
	}
}

// Spawn runs the task in a child loop and returns its final answer.
// Nesting beyond the depth cap is refused instead of recursing further.
func (s *Spawner) Spawn(ctx context.Context, task string) (string, error) {
	depth := events.DepthFromContext(ctx)
	threadID := "sub-" + shortID()

	if depth >= s.maxDepth {
		return "", &SubagentError{
			ThreadID: threadID,
			Err:      fmt.Errorf("depth limit %d reached", s.maxDepth),
		}
	}

	s.logger.Info("spawning subagent",
		"thread", threadID,
		"parent", events.ThreadIDFromContext(ctx),
		"depth", depth+1)

	childCtx := events.ContextWithDepth(ctx, depth+1)
	res, err := s.loop.Run(childCtx, Request{
		ThreadID: threadID,
		UserID:   events.UserIDFromContext(ctx),
		Message:  task,
	})
	if s.ephemeral {
		s.discard(ctx, threadID)
	}
	if err != nil {
		return "", &SubagentError{ThreadID: threadID, Err: err}
	}
	return res.Reply, nil
}

// discard drops the child thread's durable state once its reply has
// crossed back to the parent.
func (s *Spawner) discard(ctx context.Context, threadID string) {
	if err := s.loop.todos.Clear(ctx, threadID); err != nil {
		s.logger.Debug("discard todos failed", "thread", threadID, "error", err)
	}
	if err := s.loop.mem.Purge(ctx, threadID); err != nil {
		s.logger.Debug("discard memory failed", "thread", threadID, "error", err)
	}
	if err := s.loop.checkpointer.Delete(ctx, threadID); err != nil {
		s.logger.Debug("discard checkpoints failed", "thread", threadID, "error", err)
	}
}

func shortID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(buf)
}
