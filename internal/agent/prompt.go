package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dohr-michael/paula/internal/config"
	"github.com/dohr-michael/paula/internal/memory"
	"github.com/dohr-michael/paula/internal/todo"
)

// DefaultPersona is the Paula personality, inspired by Paula Myo from
// Peter F. Hamilton's Commonwealth Saga: the investigator who never drops
// a case, methodical to a fault, incorruptible.
// Overridable via SOUL.md in PAULA_PATH.
const DefaultPersona = `You are Paula — a methodical, relentless assistant with the instincts of an investigator. You do not guess when you can verify, you do not abandon a task half-done, and you never pretend to know something you don't.

### Core Philosophy
- **Finish the case:** Every request is worked to completion or to an honest dead end. No silent drops.
- **Evidence over assumption:** Check memory, check files, check tools before asserting. If the facts are missing, say so.
- **Method over flair:** Plans before actions. One step at a time, each verified before the next.

### Personality & Traits
- **Precise:** Answers are direct and complete. No filler, no hedging for politeness.
- **Persistent:** A failed step is retried or rerouted, not ignored.
- **Honest:** Uncertainty is stated plainly. Fabrication is never acceptable.`

// AgentInstructions are the functional operating instructions appended to
// the persona for every turn.
const AgentInstructions = `## Operating Mode

You work through a plan. The current checklist is shown below when one exists.

### Rules
- Execute the plan step by step using your tools. If a tool can do the task, use it.
- After finishing a step, call write_todos to mark it completed.
- Delegate large self-contained subtasks with spawn_subagent.
- Store durable facts and preferences with memory_put; recall them with memory_search.
- When the work is done, reply with the final answer. Do not narrate tool calls you did not make.`

// LoadPersona reads SOUL.md from PAULA_PATH if it exists, otherwise
// returns DefaultPersona.
func LoadPersona() string {
	path := filepath.Join(config.PaulaPath(), "SOUL.md")
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultPersona
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return DefaultPersona
	}
	return content
}

// promptInputs carries the per-turn dynamic context layers.
type promptInputs struct {
	Persona  string
	Summary  string
	Facts    []memory.RetrievedRecord
	Recent   []memory.Record
	Plan     []string
	Todos    []todo.Item
	ToolDesc string
}

// composePrompt builds the system prompt from the assembled context.
func composePrompt(in promptInputs) string {
	persona := in.Persona
	if persona == "" {
		persona = DefaultPersona
	}
	sections := []string{persona, AgentInstructions}

	if in.ToolDesc != "" {
		sections = append(sections, "## Available Tools\n\n"+in.ToolDesc)
	}

	if in.Summary != "" {
		sections = append(sections, "## Conversation Summary\n\n"+in.Summary)
	}

	if len(in.Facts) > 0 {
		var sb strings.Builder
		sb.WriteString("## Relevant Memory\n\n")
		for _, f := range in.Facts {
			sb.WriteString("- " + f.Record.Content + "\n")
		}
		sections = append(sections, strings.TrimRight(sb.String(), "\n"))
	}

	if len(in.Recent) > 0 {
		var sb strings.Builder
		sb.WriteString("## Recent Turns\n\n")
		for _, r := range in.Recent {
			sb.WriteString(r.Content + "\n")
		}
		sections = append(sections, strings.TrimRight(sb.String(), "\n"))
	}

	if len(in.Todos) > 0 {
		var sb strings.Builder
		sb.WriteString("## Current Plan\n\n")
		for _, step := range in.Plan {
			sb.WriteString("- " + step + "\n")
		}
		sb.WriteString("\nChecklist:\n")
		for _, item := range in.Todos {
			fmt.Fprintf(&sb, "- [%s] %s (id: %s)\n", item.Status, item.Title, item.ID)
		}
		sections = append(sections, strings.TrimRight(sb.String(), "\n"))
	}

	return strings.Join(sections, "\n\n")
}
