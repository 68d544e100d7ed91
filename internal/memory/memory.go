// Package memory stores conversation turns and derived summaries per scope
// and serves the recency and relevance reads the loop assembles context from.
package memory

import (
	"fmt"
	"time"
)

// RecordType distinguishes raw turns from derived summaries.
type RecordType string

const (
	TypeConversation RecordType = "conversation"
	TypeSummary      RecordType = "summary"
)

// Record is one persisted fact. Conversation records are immutable once
// written; summaries supersede older ones in context assembly but never
// delete them.
type Record struct {
	ID        string     `json:"id"`
	Scope     string     `json:"scope"`
	Type      RecordType `json:"type"`
	Content   string     `json:"content"`
	Ordinal   int64      `json:"ordinal"`
	// ConvCount on a summary record is the number of conversation records
	// the summary covers. It is the watermark the summarizer resumes from.
	ConvCount int       `json:"conv_count,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SummarizationError marks a failed summarization cycle. It is logged and
// retried on the next trigger, never surfaced to the caller.
type SummarizationError struct {
	Scope string
	Err   error
}

func (e *SummarizationError) Error() string {
	return fmt.Sprintf("summarize scope %q: %v", e.Scope, e.Err)
}

func (e *SummarizationError) Unwrap() error { return e.Err }
