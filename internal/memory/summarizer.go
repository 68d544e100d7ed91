package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/paula/internal/events"
)

const summarySystemPrompt = `You condense conversation history. Write a short factual summary of the exchange below. Keep names, decisions, open tasks and stated preferences. Drop filler. Reply with the summary text only.`

// Invoker is the single model call the summarizer needs. *models.Router
// satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, step string, messages []*schema.Message) (*schema.Message, error)
}

// Summarizer condenses conversation records into summary records once a
// scope accumulates interval unsummarized turns. The watermark persisted
// on each summary record makes the trigger restart-safe: a cycle that
// fails leaves the watermark untouched and runs again next trigger.
type Summarizer struct {
	store    Store
	invoker  Invoker
	bus      *events.Bus
	interval int
	logger   *slog.Logger

	wg sync.WaitGroup
}

func NewSummarizer(store Store, invoker Invoker, bus *events.Bus, interval int, logger *slog.Logger) *Summarizer {
	if interval <= 0 {
		interval = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		store:    store,
		invoker:  invoker,
		bus:      bus,
		interval: interval,
		logger:   logger.With("component", "summarizer"),
	}
}

// MaybeSummarize runs one cycle if the scope has at least interval
// conversation records past the watermark. Calling it again after a
// successful cycle is a no-op until the next threshold.
func (s *Summarizer) MaybeSummarize(ctx context.Context, scope string) error {
	count, err := s.store.ConversationCount(ctx, scope)
	if err != nil {
		return &SummarizationError{Scope: scope, Err: err}
	}

	var watermark int
	var previous string
	latest, err := s.store.LatestSummary(ctx, scope)
	if err != nil {
		return &SummarizationError{Scope: scope, Err: err}
	}
	if latest != nil {
		watermark = latest.ConvCount
		previous = latest.Content
	}

	if count-watermark < s.interval {
		return nil
	}

	window, err := s.window(ctx, scope, watermark)
	if err != nil {
		return &SummarizationError{Scope: scope, Err: err}
	}
	if len(window) == 0 {
		return nil
	}

	content, err := s.condense(ctx, previous, window)
	if err != nil {
		return &SummarizationError{Scope: scope, Err: err}
	}

	covered := watermark + len(window)
	rec, err := s.store.PutSummary(ctx, scope, content, covered)
	if err != nil {
		return &SummarizationError{Scope: scope, Err: err}
	}

	s.logger.Info("summary written", "scope", scope, "covered", covered)
	if s.bus != nil {
		s.bus.Publish(events.NewTypedEvent(events.SourceMemory, events.SummaryWrittenPayload{
			Scope:   scope,
			Ordinal: rec.Ordinal,
			UpTo:    int64(covered),
		}))
	}
	return nil
}

// TriggerDetached runs MaybeSummarize in the background. Failures are
// logged, never returned; the foreground turn is already gone.
func (s *Summarizer) TriggerDetached(scope string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.MaybeSummarize(ctx, scope); err != nil {
			s.logger.Warn("summarization failed, will retry next trigger", "scope", scope, "error", err)
		}
	}()
}

// Wait blocks until all detached cycles finish. Used on shutdown.
func (s *Summarizer) Wait() {
	s.wg.Wait()
}

// window returns the conversation records past the watermark, oldest first.
func (s *Summarizer) window(ctx context.Context, scope string, watermark int) ([]Record, error) {
	all, err := s.store.All(ctx, scope)
	if err != nil {
		return nil, err
	}
	conv := make([]Record, 0, len(all))
	for _, rec := range all {
		if rec.Type == TypeConversation {
			conv = append(conv, rec)
		}
	}
	if watermark >= len(conv) {
		return nil, nil
	}
	return conv[watermark:], nil
}

func (s *Summarizer) condense(ctx context.Context, previous string, window []Record) (string, error) {
	var b strings.Builder
	if previous != "" {
		fmt.Fprintf(&b, "Previous summary:\n%s\n\n", previous)
	}
	b.WriteString("Exchange:\n")
	for _, rec := range window {
		b.WriteString(rec.Content)
		b.WriteString("\n")
	}

	out, err := s.invoker.Invoke(ctx, "summary", []*schema.Message{
		schema.SystemMessage(summarySystemPrompt),
		schema.UserMessage(b.String()),
	})
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(out.Content)
	if content == "" {
		return "", fmt.Errorf("summary step returned empty content")
	}
	return content, nil
}
