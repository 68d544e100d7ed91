package todo

import (
	"context"
	"errors"
	"testing"

	"github.com/dohr-michael/paula/internal/storage"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := storage.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db)
}

func TestGetDefaultsEmpty(t *testing.T) {
	s := newTestStore(t)

	items, err := s.Get(context.Background(), "thread-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("expected empty list, got %d items", len(items))
	}
}

func TestWriteThenGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := []Item{
		{ID: "a", Title: "first", Status: StatusPending},
		{ID: "b", Title: "second", Status: StatusPending},
	}
	if err := s.Write(ctx, "thread-1", in); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "thread-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("unexpected items: %+v", got)
	}

	// Other threads stay isolated.
	other, err := s.Get(ctx, "thread-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Errorf("expected isolation, got %+v", other)
	}
}

func TestWriteReplacesList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Write(ctx, "t", []Item{{ID: "a", Title: "old", Status: StatusCompleted}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, "t", []Item{{ID: "b", Title: "new", Status: StatusPending}}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "t")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("expected replacement, got %+v", got)
	}
}

func TestWriteRejectsDuplicateIDs(t *testing.T) {
	s := newTestStore(t)

	err := s.Write(context.Background(), "t", []Item{
		{ID: "a", Title: "one", Status: StatusPending},
		{ID: "a", Title: "two", Status: StatusPending},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	// The rejected write must not partially apply.
	got, gerr := s.Get(context.Background(), "t")
	if gerr != nil {
		t.Fatal(gerr)
	}
	if len(got) != 0 {
		t.Errorf("expected no items after rejected write, got %+v", got)
	}
}

func TestWriteRejectsUnknownStatus(t *testing.T) {
	s := newTestStore(t)

	err := s.Write(context.Background(), "t", []Item{{ID: "a", Title: "x", Status: "paused"}})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestStatusLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Write(ctx, "t", []Item{{ID: "a", Title: "x", Status: StatusPending}}); err != nil {
		t.Fatal(err)
	}

	// Completion never skips in_progress.
	err := s.SetStatus(ctx, "t", "a", StatusCompleted)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for pending to completed, got %v", err)
	}

	if err := s.SetStatus(ctx, "t", "a", StatusInProgress); err != nil {
		t.Fatal(err)
	}
	if err := s.SetStatus(ctx, "t", "a", StatusCompleted); err != nil {
		t.Fatal(err)
	}

	// Completed is terminal.
	err = s.SetStatus(ctx, "t", "a", StatusPending)
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for backward move, got %v", err)
	}
}

func TestSetStatusUnknownItem(t *testing.T) {
	s := newTestStore(t)

	err := s.SetStatus(context.Background(), "t", "missing", StatusCompleted)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestRetryFlipsFailedToPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Write(ctx, "t", []Item{{ID: "a", Title: "x", Status: StatusPending}}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetStatus(ctx, "t", "a", StatusInProgress); err != nil {
		t.Fatal(err)
	}
	if err := s.SetStatus(ctx, "t", "a", StatusFailed); err != nil {
		t.Fatal(err)
	}

	n, err := s.Retry(ctx, "t", "a")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected retry count 1, got %d", n)
	}

	got, err := s.Get(ctx, "t")
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Status != StatusPending {
		t.Errorf("expected pending after retry, got %s", got[0].Status)
	}

	// Retrying a non-failed item is rejected.
	if _, err := s.Retry(ctx, "t", "a"); err == nil {
		t.Error("expected error retrying pending item")
	}
}

func TestWriteResetsRetryCounter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Write(ctx, "t", []Item{{ID: "a", Title: "x", Status: StatusFailed}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Retry(ctx, "t", "a"); err != nil {
		t.Fatal(err)
	}

	// A fresh list starts the counter over.
	if err := s.Write(ctx, "t", []Item{{ID: "a", Title: "x", Status: StatusFailed}}); err != nil {
		t.Fatal(err)
	}
	n, err := s.Retry(ctx, "t", "a")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected counter reset to 1, got %d", n)
	}
}

func TestFirstPending(t *testing.T) {
	items := []Item{
		{ID: "a", Status: StatusCompleted},
		{ID: "b", Status: StatusPending},
		{ID: "c", Status: StatusPending},
	}
	got := FirstPending(items)
	if got == nil || got.ID != "b" {
		t.Errorf("expected b, got %+v", got)
	}
	if FirstPending(nil) != nil {
		t.Error("expected nil for empty list")
	}
}
