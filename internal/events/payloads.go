package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// TodoView is the wire shape of one todo item in a todos event.
type TodoView struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// =============================================================================
// INCOMING
// =============================================================================

type UserMessagePayload struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
}

func (UserMessagePayload) EventType() EventType { return EventUserMessage }

// =============================================================================
// TURN LIFECYCLE
// =============================================================================

type StatusPayload struct {
	Content string `json:"content"`
}

func (StatusPayload) EventType() EventType { return EventStatus }

type PlanPayload struct {
	Plan    []string `json:"plan"`
	Summary string   `json:"summary,omitempty"`
}

func (PlanPayload) EventType() EventType { return EventPlan }

type TodosPayload struct {
	Todos []TodoView `json:"todos"`
}

func (TodosPayload) EventType() EventType { return EventTodos }

// ErrorSeverity distinguishes turn-fatal errors from recoverable ones.
type ErrorSeverity string

const (
	SeverityError   ErrorSeverity = "error"
	SeverityWarning ErrorSeverity = "warning"
)

type ErrorPayload struct {
	Content  string        `json:"content"`
	Severity ErrorSeverity `json:"severity"`
}

func (ErrorPayload) EventType() EventType { return EventError }

// TurnCompletedPayload is the terminal stream marker for a turn.
type TurnCompletedPayload struct {
	Reply    string        `json:"reply"`
	Failed   bool          `json:"failed,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

func (TurnCompletedPayload) EventType() EventType { return EventTurnCompleted }

// =============================================================================
// TOKEN STREAM
// =============================================================================

type TokenPayload struct {
	Content string `json:"content"`
	Index   int    `json:"index"`
}

func (TokenPayload) EventType() EventType { return EventToken }

// =============================================================================
// TOOLS
// =============================================================================

type ToolStartPayload struct {
	Tool  string `json:"tool"`
	Input string `json:"input,omitempty"`
}

func (ToolStartPayload) EventType() EventType { return EventToolStart }

type ToolEndPayload struct {
	Tool     string        `json:"tool"`
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

func (ToolEndPayload) EventType() EventType { return EventToolEnd }

// =============================================================================
// BACKGROUND MEMORY
// =============================================================================

type SummaryWrittenPayload struct {
	Scope   string `json:"scope"`
	Ordinal int64  `json:"ordinal"`
	UpTo    int64  `json:"up_to"` // conversation count covered by the summary
}

func (SummaryWrittenPayload) EventType() EventType { return EventSummaryWritten }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func NewTypedEventWithThread(source EventSource, payload EventPayload, threadID string) Event {
	return Event{
		ID:        generateEventID(),
		ThreadID:  threadID,
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// =============================================================================
// TYPED PAYLOAD EXTRACTORS
// =============================================================================

func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}

func GetUserMessagePayload(e Event) (UserMessagePayload, bool) {
	return ExtractPayload[UserMessagePayload](e)
}

func GetTokenPayload(e Event) (TokenPayload, bool) {
	return ExtractPayload[TokenPayload](e)
}

func GetTodosPayload(e Event) (TodosPayload, bool) {
	return ExtractPayload[TodosPayload](e)
}

func GetPlanPayload(e Event) (PlanPayload, bool) {
	return ExtractPayload[PlanPayload](e)
}

func GetErrorPayload(e Event) (ErrorPayload, bool) {
	return ExtractPayload[ErrorPayload](e)
}

func GetTurnCompletedPayload(e Event) (TurnCompletedPayload, bool) {
	return ExtractPayload[TurnCompletedPayload](e)
}

func GetToolStartPayload(e Event) (ToolStartPayload, bool) {
	return ExtractPayload[ToolStartPayload](e)
}

func GetToolEndPayload(e Event) (ToolEndPayload, bool) {
	return ExtractPayload[ToolEndPayload](e)
}
