package agent

import "fmt"

// SubagentError marks a child loop that failed or exceeded its bounds.
// It surfaces to the parent as a tool result, never as a crash.
type SubagentError struct {
	ThreadID string
	Err      error
}

func (e *SubagentError) Error() string {
	return fmt.Sprintf("subagent %s: %v", e.ThreadID, e.Err)
}

func (e *SubagentError) Unwrap() error { return e.Err }
