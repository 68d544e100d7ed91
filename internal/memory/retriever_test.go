package memory

import (
	"context"
	"testing"
)

func seedRecords(t *testing.T, s *SQLStore, scope string, contents ...string) {
	t.Helper()
	for _, c := range contents {
		if _, err := s.PutConversation(context.Background(), scope, c); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSearchRanksByOverlap(t *testing.T) {
	s := newTestStore(t)
	seedRecords(t, s, "t",
		"we discussed the deployment pipeline for the gateway",
		"user prefers coffee over tea in the morning",
		"deployment failed because the gateway config was stale",
	)

	r := NewRetriever(s, 0.1)
	got, err := r.Search(context.Background(), "t", "gateway deployment", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	for _, m := range got {
		if m.Record.Content == "user prefers coffee over tea in the morning" {
			t.Error("irrelevant record surfaced")
		}
	}
	if got[0].Score < got[1].Score {
		t.Error("results not sorted by score")
	}
}

func TestSearchEmptyNotError(t *testing.T) {
	s := newTestStore(t)
	seedRecords(t, s, "t", "completely unrelated content")

	r := NewRetriever(s, 0.1)
	got, err := r.Search(context.Background(), "t", "kubernetes migration", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}

	// Unseen scope is also empty, not an error.
	got, err = r.Search(context.Background(), "nowhere", "anything at all", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}

func TestSearchRecencyTieBreak(t *testing.T) {
	s := newTestStore(t)
	seedRecords(t, s, "t",
		"the gateway restarted today",
		"the gateway restarted again",
	)

	r := NewRetriever(s, 0.1)
	got, err := r.Search(context.Background(), "t", "gateway restarted", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	// Equal scores, newer record first.
	if got[0].Record.Ordinal <= got[1].Record.Ordinal {
		t.Errorf("expected newer record first, got ordinals %d, %d",
			got[0].Record.Ordinal, got[1].Record.Ordinal)
	}
}

func TestSearchLimit(t *testing.T) {
	s := newTestStore(t)
	seedRecords(t, s, "t",
		"alpha report one", "alpha report two", "alpha report three", "alpha report four",
	)

	r := NewRetriever(s, 0.1)
	got, err := r.Search(context.Background(), "t", "alpha report", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("expected limit 2, got %d", len(got))
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("Hello, World! (again)")
	want := []string{"hello", "world", "again"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}
