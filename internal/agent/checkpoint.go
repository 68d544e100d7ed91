package agent

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dohr-michael/paula/internal/todo"
)

// LoopState is the durable snapshot written after every turn.
type LoopState struct {
	Turn      int         `json:"turn"`
	Message   string      `json:"message"`
	Reply     string      `json:"reply"`
	Plan      []string    `json:"plan,omitempty"`
	Todos     []todo.Item `json:"todos,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Checkpointer persists loop state per thread for pause/resume.
type Checkpointer interface {
	// Save appends a new checkpoint for the thread.
	Save(ctx context.Context, threadID string, state LoopState) error
	// Load returns the latest checkpoint, or nil for an unseen thread.
	Load(ctx context.Context, threadID string) (*LoopState, error)
	// Delete drops every checkpoint for a thread.
	Delete(ctx context.Context, threadID string) error
}

// SQLCheckpointer is the sqlite-backed Checkpointer.
type SQLCheckpointer struct {
	db *sql.DB
}

func NewSQLCheckpointer(db *sql.DB) *SQLCheckpointer {
	return &SQLCheckpointer{db: db}
}

func (c *SQLCheckpointer) Save(ctx context.Context, threadID string, state LoopState) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	defer tx.Rollback()

	var turn int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(turn), 0) + 1 FROM checkpoints WHERE thread_id = ?`, threadID,
	).Scan(&turn)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	state.Turn = turn
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_id, turn, state, created_at) VALUES (?, ?, ?, ?)`,
		threadID, turn, string(blob), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return tx.Commit()
}

func (c *SQLCheckpointer) Load(ctx context.Context, threadID string) (*LoopState, error) {
	var blob string
	err := c.db.QueryRowContext(ctx,
		`SELECT state FROM checkpoints WHERE thread_id = ? ORDER BY turn DESC LIMIT 1`, threadID,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	var state LoopState
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return &state, nil
}

func (c *SQLCheckpointer) Delete(ctx context.Context, threadID string) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE thread_id = ?`, threadID)
	if err != nil {
		return fmt.Errorf("delete checkpoints: %w", err)
	}
	return nil
}
