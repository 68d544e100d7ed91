package planner

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/dohr-michael/paula/internal/todo"
)

type rawOutput struct {
	Plan    []string `json:"plan"`
	Todos   []struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Status string `json:"status"`
	} `json:"todos"`
	Summary string `json:"summary"`
}

// parseOutput tolerantly parses the plan step's reply. Models ignore the
// no-markdown instruction often enough that fences are stripped first; a
// reply that still is not JSON becomes a single-step plan.
func parseOutput(content string) Output {
	text := stripFences(content)

	var raw rawOutput
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		trimmed := strings.TrimSpace(content)
		if trimmed == "" {
			return Output{Plan: []string{}, Todos: []todo.Item{}}
		}
		out := Output{Plan: []string{trimmed}}
		out.Todos = todosFromPlan(out.Plan)
		return out
	}

	out := Output{Summary: strings.TrimSpace(raw.Summary)}
	for _, step := range raw.Plan {
		if s := strings.TrimSpace(step); s != "" {
			out.Plan = append(out.Plan, s)
		}
	}
	for _, t := range raw.Todos {
		title := strings.TrimSpace(t.Title)
		if title == "" {
			continue
		}
		item := todo.Item{ID: t.ID, Title: title, Status: todo.Status(t.Status)}
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		if !item.Status.Valid() {
			item.Status = todo.StatusPending
		}
		out.Todos = append(out.Todos, item)
	}

	// A plan without todos still needs a checklist to execute against.
	if len(out.Todos) == 0 && len(out.Plan) > 0 {
		out.Todos = todosFromPlan(out.Plan)
	}
	if out.Plan == nil {
		out.Plan = []string{}
	}
	if out.Todos == nil {
		out.Todos = []todo.Item{}
	}
	return out
}

func todosFromPlan(plan []string) []todo.Item {
	items := make([]todo.Item, 0, len(plan))
	for _, step := range plan {
		items = append(items, todo.Item{
			ID:     uuid.NewString(),
			Title:  step,
			Status: todo.StatusPending,
		})
	}
	return items
}

// stripFences removes a surrounding markdown code fence, with or without
// a language tag.
func stripFences(s string) string {
	text := strings.TrimSpace(s)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if idx := strings.Index(text, "\n"); idx >= 0 {
		// Drop the language tag line ("json", "jsonc", or empty).
		first := strings.TrimSpace(text[:idx])
		if len(first) <= 10 && !strings.ContainsAny(first, "{}[]") {
			text = text[idx+1:]
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
