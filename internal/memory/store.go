package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store is the append-only record store. Ordinals are strictly increasing
// within a scope; nothing is ever updated or deleted.
type Store interface {
	PutConversation(ctx context.Context, scope, content string) (Record, error)
	PutSummary(ctx context.Context, scope, content string, convCount int) (Record, error)
	// Recent returns the last k conversation records for a scope in
	// chronological order.
	Recent(ctx context.Context, scope string, k int) ([]Record, error)
	// All returns every record for a scope in ordinal order.
	All(ctx context.Context, scope string) ([]Record, error)
	// ConversationCount returns how many conversation records a scope holds.
	ConversationCount(ctx context.Context, scope string) (int, error)
	// LatestSummary returns the most recent summary record, or nil.
	LatestSummary(ctx context.Context, scope string) (*Record, error)
	// Scopes returns every scope holding at least one record.
	Scopes(ctx context.Context) ([]string, error)
	// Purge drops every record for a scope. Records within a live scope
	// stay append-only; this tears down a whole scope at once, as when
	// an ephemeral subagent thread is discarded.
	Purge(ctx context.Context, scope string) error
}

// SQLStore is the sqlite-backed Store.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) PutConversation(ctx context.Context, scope, content string) (Record, error) {
	return s.put(ctx, scope, TypeConversation, content, 0)
}

func (s *SQLStore) PutSummary(ctx context.Context, scope, content string, convCount int) (Record, error) {
	return s.put(ctx, scope, TypeSummary, content, convCount)
}

func (s *SQLStore) put(ctx context.Context, scope string, typ RecordType, content string, convCount int) (Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("put record: %w", err)
	}
	defer tx.Rollback()

	var ordinal int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(ordinal), 0) + 1 FROM memory_records WHERE scope = ?`, scope,
	).Scan(&ordinal)
	if err != nil {
		return Record{}, fmt.Errorf("put record: %w", err)
	}

	rec := Record{
		ID:        uuid.NewString(),
		Scope:     scope,
		Type:      typ,
		Content:   content,
		Ordinal:   ordinal,
		ConvCount: convCount,
		CreatedAt: time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO memory_records (id, scope, type, content, ordinal, conv_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Scope, rec.Type, rec.Content, rec.Ordinal, rec.ConvCount, rec.CreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("put record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("put record: %w", err)
	}
	return rec, nil
}

func (s *SQLStore) Recent(ctx context.Context, scope string, k int) ([]Record, error) {
	if k <= 0 {
		return []Record{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scope, type, content, ordinal, conv_count, created_at
		 FROM (
			SELECT * FROM memory_records
			WHERE scope = ? AND type = ?
			ORDER BY ordinal DESC LIMIT ?
		 ) ORDER BY ordinal ASC`,
		scope, TypeConversation, k)
	if err != nil {
		return nil, fmt.Errorf("recent records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *SQLStore) All(ctx context.Context, scope string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scope, type, content, ordinal, conv_count, created_at
		 FROM memory_records WHERE scope = ? ORDER BY ordinal ASC`, scope)
	if err != nil {
		return nil, fmt.Errorf("all records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *SQLStore) ConversationCount(ctx context.Context, scope string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memory_records WHERE scope = ? AND type = ?`,
		scope, TypeConversation,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func (s *SQLStore) LatestSummary(ctx context.Context, scope string) (*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scope, type, content, ordinal, conv_count, created_at
		 FROM memory_records WHERE scope = ? AND type = ?
		 ORDER BY ordinal DESC LIMIT 1`,
		scope, TypeSummary)
	if err != nil {
		return nil, fmt.Errorf("latest summary: %w", err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

func (s *SQLStore) Scopes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT scope FROM memory_records ORDER BY scope`)
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	defer rows.Close()

	scopes := []string{}
	for rows.Next() {
		var scope string
		if err := rows.Scan(&scope); err != nil {
			return nil, fmt.Errorf("list scopes: %w", err)
		}
		scopes = append(scopes, scope)
	}
	return scopes, rows.Err()
}

func (s *SQLStore) Purge(ctx context.Context, scope string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM memory_records WHERE scope = ?`, scope)
	if err != nil {
		return fmt.Errorf("purge scope: %w", err)
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	records := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Scope, &rec.Type, &rec.Content,
			&rec.Ordinal, &rec.ConvCount, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
