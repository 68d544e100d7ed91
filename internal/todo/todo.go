// Package todo holds the per-thread task checklist the loop plans against.
package todo

import "fmt"

// Status is the lifecycle state of an item. Transitions are monotonic:
// pending → in_progress → completed or failed. A failed item may return
// to pending through Retry; the loop bounds how often.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// transitions lists the allowed status moves besides the no-op.
var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress},
	StatusInProgress: {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusPending},
}

func canTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Item is one checklist entry.
type Item struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status Status `json:"status"`
}

// ValidationError rejects a malformed list or an illegal status move.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid todos: %s", e.Reason)
}

// validate checks an incoming list before it replaces the stored one.
func validate(items []Item) error {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.ID == "" {
			return &ValidationError{Reason: "item without id"}
		}
		if _, dup := seen[item.ID]; dup {
			return &ValidationError{Reason: fmt.Sprintf("duplicate id %q", item.ID)}
		}
		seen[item.ID] = struct{}{}
		if item.Title == "" {
			return &ValidationError{Reason: fmt.Sprintf("item %q without title", item.ID)}
		}
		if !item.Status.Valid() {
			return &ValidationError{Reason: fmt.Sprintf("item %q has unknown status %q", item.ID, item.Status)}
		}
	}
	return nil
}

// FirstPending returns the first pending item of a list, or nil.
func FirstPending(items []Item) *Item {
	for i := range items {
		if items[i].Status == StatusPending {
			return &items[i]
		}
	}
	return nil
}
