package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/schema"
)

type fakeInvoker struct {
	reply string
	err   error
	calls int
}

func (f *fakeInvoker) Invoke(_ context.Context, _ string, _ []*schema.Message) (*schema.Message, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func TestSummarizeAfterEightTurns(t *testing.T) {
	s := newTestStore(t)
	inv := &fakeInvoker{reply: "condensed history"}
	sum := NewSummarizer(s, inv, nil, 8, nil)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if _, err := s.PutConversation(ctx, "t", fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatal(err)
		}
		if err := sum.MaybeSummarize(ctx, "t"); err != nil {
			t.Fatal(err)
		}
	}
	if inv.calls != 0 {
		t.Fatalf("summarized before threshold, %d calls", inv.calls)
	}

	if _, err := s.PutConversation(ctx, "t", "turn 7"); err != nil {
		t.Fatal(err)
	}
	if err := sum.MaybeSummarize(ctx, "t"); err != nil {
		t.Fatal(err)
	}
	if inv.calls != 1 {
		t.Fatalf("expected one summarization, got %d", inv.calls)
	}

	latest, err := s.LatestSummary(ctx, "t")
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.Content != "condensed history" {
		t.Fatalf("unexpected summary: %+v", latest)
	}
	if latest.ConvCount != 8 {
		t.Errorf("expected watermark 8, got %d", latest.ConvCount)
	}

	// The summary record lands after everything it condenses.
	recent, err := s.Recent(ctx, "t", 8)
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range recent {
		if rec.Type == TypeConversation && rec.Ordinal >= latest.Ordinal {
			t.Errorf("conversation ordinal %d not below summary ordinal %d", rec.Ordinal, latest.Ordinal)
		}
	}
}

func TestSummarizeIdempotentUntilNextThreshold(t *testing.T) {
	s := newTestStore(t)
	inv := &fakeInvoker{reply: "sum"}
	sum := NewSummarizer(s, inv, nil, 8, nil)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if _, err := s.PutConversation(ctx, "t", "x"); err != nil {
			t.Fatal(err)
		}
	}
	if err := sum.MaybeSummarize(ctx, "t"); err != nil {
		t.Fatal(err)
	}
	// The 9th record does not retrigger.
	if _, err := s.PutConversation(ctx, "t", "x"); err != nil {
		t.Fatal(err)
	}
	if err := sum.MaybeSummarize(ctx, "t"); err != nil {
		t.Fatal(err)
	}
	if inv.calls != 1 {
		t.Fatalf("expected 1 call, got %d", inv.calls)
	}

	// Seven more reach the next threshold of 16.
	for i := 0; i < 7; i++ {
		if _, err := s.PutConversation(ctx, "t", "x"); err != nil {
			t.Fatal(err)
		}
	}
	if err := sum.MaybeSummarize(ctx, "t"); err != nil {
		t.Fatal(err)
	}
	if inv.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", inv.calls)
	}
}

func TestSummarizeWatermarkSurvivesRestart(t *testing.T) {
	s := newTestStore(t)
	inv := &fakeInvoker{reply: "sum"}
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if _, err := s.PutConversation(ctx, "t", "x"); err != nil {
			t.Fatal(err)
		}
	}
	if err := NewSummarizer(s, inv, nil, 8, nil).MaybeSummarize(ctx, "t"); err != nil {
		t.Fatal(err)
	}

	// A fresh summarizer over the same store reads the persisted watermark
	// and does not re-summarize.
	if err := NewSummarizer(s, inv, nil, 8, nil).MaybeSummarize(ctx, "t"); err != nil {
		t.Fatal(err)
	}
	if inv.calls != 1 {
		t.Fatalf("expected 1 call across restarts, got %d", inv.calls)
	}
}

func TestSummarizeFailureRetriedNextTrigger(t *testing.T) {
	s := newTestStore(t)
	inv := &fakeInvoker{err: errors.New("model down")}
	sum := NewSummarizer(s, inv, nil, 8, nil)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if _, err := s.PutConversation(ctx, "t", "x"); err != nil {
			t.Fatal(err)
		}
	}

	err := sum.MaybeSummarize(ctx, "t")
	var serr *SummarizationError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SummarizationError, got %v", err)
	}

	// The watermark did not move, so the next trigger retries.
	inv.err = nil
	inv.reply = "recovered"
	if err := sum.MaybeSummarize(ctx, "t"); err != nil {
		t.Fatal(err)
	}
	latest, err := s.LatestSummary(ctx, "t")
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.Content != "recovered" {
		t.Fatalf("expected recovery summary, got %+v", latest)
	}
}

func TestTriggerDetachedDoesNotBlock(t *testing.T) {
	s := newTestStore(t)
	inv := &fakeInvoker{reply: "sum"}
	sum := NewSummarizer(s, inv, nil, 8, nil)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if _, err := s.PutConversation(ctx, "t", "x"); err != nil {
			t.Fatal(err)
		}
	}

	sum.TriggerDetached("t")
	sum.Wait()

	latest, err := s.LatestSummary(ctx, "t")
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil {
		t.Fatal("expected summary after detached trigger")
	}
}
