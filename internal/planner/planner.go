// Package planner turns a user request plus assembled context into an
// ordered plan and an initial checklist through one plan-step call.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/paula/internal/todo"
)

const planSystemPrompt = `You are a planning assistant. Analyze the user's request and produce a structured plan.
%s
Return a JSON object with:
- 'plan': A list of high-level steps (strings). If only one step, return a list with one string.
- 'todos': A list of actionable items, each with a 'title' and a unique 'id' (string).
- 'summary': A brief summary of the intent.
If the user asks for something an available tool can do, create a plan step to use that tool.
Do NOT wrap the JSON in markdown code blocks or backticks. Do NOT add explanations or extra text.`

// Output is the parsed result of one planning call.
type Output struct {
	Plan    []string
	Todos   []todo.Item
	Summary string
}

// Invoker is the single model call the planner needs. *models.Router
// satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, step string, messages []*schema.Message) (*schema.Message, error)
}

// Planner drives the plan pipeline step.
type Planner struct {
	invoker Invoker
}

func New(invoker Invoker) *Planner {
	return &Planner{invoker: invoker}
}

// Plan invokes the plan step for a request. toolsDesc, when non-empty,
// advertises callable tools to the model. A provider failure is returned
// as-is; a malformed model reply degrades to a single-step plan instead
// of failing the turn.
func (p *Planner) Plan(ctx context.Context, request, toolsDesc string) (Output, error) {
	system := fmt.Sprintf(planSystemPrompt, toolsSection(toolsDesc))

	out, err := p.invoker.Invoke(ctx, "plan", []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(request),
	})
	if err != nil {
		return Output{}, err
	}

	return parseOutput(out.Content), nil
}

func toolsSection(desc string) string {
	if strings.TrimSpace(desc) == "" {
		return ""
	}
	return "Available tools for execution:\n" + desc + "\n"
}
