package todo

import (
	"context"
	"database/sql"
	"fmt"
)

// Store persists per-thread checklists. Reads observe prior writes from
// the same process immediately.
type Store interface {
	// Get returns the thread's items in order. A thread that never wrote
	// a list gets an empty slice, not an error.
	Get(ctx context.Context, threadID string) ([]Item, error)
	// Write atomically replaces the thread's list. Retry counters reset.
	Write(ctx context.Context, threadID string, items []Item) error
	// SetStatus moves one item to a new status, enforcing the lifecycle.
	SetStatus(ctx context.Context, threadID, id string, status Status) error
	// Retry flips a failed item back to pending and returns how many
	// times the item has been retried so far, this call included.
	Retry(ctx context.Context, threadID, id string) (int, error)
	// Clear drops the thread's list.
	Clear(ctx context.Context, threadID string) error
}

// SQLStore is the sqlite-backed Store.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Get(ctx context.Context, threadID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, status FROM todos WHERE thread_id = ? ORDER BY position`,
		threadID)
	if err != nil {
		return nil, fmt.Errorf("load todos: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.Title, &item.Status); err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLStore) Write(ctx context.Context, threadID string, items []Item) error {
	if err := validate(items); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write todos: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM todos WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("write todos: %w", err)
	}
	for i, item := range items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO todos (thread_id, id, title, status, position, retries) VALUES (?, ?, ?, ?, ?, 0)`,
			threadID, item.ID, item.Title, item.Status, i)
		if err != nil {
			return fmt.Errorf("write todos: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) SetStatus(ctx context.Context, threadID, id string, status Status) error {
	if !status.Valid() {
		return &ValidationError{Reason: fmt.Sprintf("unknown status %q", status)}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set todo status: %w", err)
	}
	defer tx.Rollback()

	var current Status
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM todos WHERE thread_id = ? AND id = ?`, threadID, id,
	).Scan(&current)
	if err == sql.ErrNoRows {
		return &ValidationError{Reason: fmt.Sprintf("no item %q", id)}
	}
	if err != nil {
		return fmt.Errorf("set todo status: %w", err)
	}

	if !canTransition(current, status) {
		return &ValidationError{Reason: fmt.Sprintf("item %q cannot move from %s to %s", id, current, status)}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE todos SET status = ? WHERE thread_id = ? AND id = ?`,
		status, threadID, id); err != nil {
		return fmt.Errorf("set todo status: %w", err)
	}
	return tx.Commit()
}

func (s *SQLStore) Retry(ctx context.Context, threadID, id string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("retry todo: %w", err)
	}
	defer tx.Rollback()

	var current Status
	var retries int
	err = tx.QueryRowContext(ctx,
		`SELECT status, retries FROM todos WHERE thread_id = ? AND id = ?`, threadID, id,
	).Scan(&current, &retries)
	if err == sql.ErrNoRows {
		return 0, &ValidationError{Reason: fmt.Sprintf("no item %q", id)}
	}
	if err != nil {
		return 0, fmt.Errorf("retry todo: %w", err)
	}
	if current != StatusFailed {
		return retries, &ValidationError{Reason: fmt.Sprintf("item %q is %s, only failed items retry", id, current)}
	}

	retries++
	if _, err := tx.ExecContext(ctx,
		`UPDATE todos SET status = ?, retries = ? WHERE thread_id = ? AND id = ?`,
		StatusPending, retries, threadID, id); err != nil {
		return 0, fmt.Errorf("retry todo: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return retries, nil
}

func (s *SQLStore) Clear(ctx context.Context, threadID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE thread_id = ?`, threadID)
	if err != nil {
		return fmt.Errorf("clear todos: %w", err)
	}
	return nil
}
