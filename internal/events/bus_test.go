package events

import (
	"sync"
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	var mu sync.Mutex
	var received []Event

	bus.Subscribe(func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	}, EventUserMessage)

	bus.Publish(NewTypedEvent(SourceGateway, UserMessagePayload{UserID: "u1", Content: "hello"}))
	bus.Publish(NewTypedEvent(SourceLoop, StatusPayload{Content: "Thinking..."}))

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Type != EventUserMessage {
		t.Errorf("expected user.message, got %s", received[0].Type)
	}

	payload, ok := GetUserMessagePayload(received[0])
	if !ok {
		t.Fatal("expected user message payload")
	}
	if payload.Content != "hello" {
		t.Errorf("expected content hello, got %q", payload.Content)
	}
}

func TestBusSubscribeThread(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	ch, cancel := bus.SubscribeThread("t1", 16)
	defer cancel()

	bus.Publish(NewTypedEventWithThread(SourceLoop, TokenPayload{Content: "a"}, "t1"))
	bus.Publish(NewTypedEventWithThread(SourceLoop, TokenPayload{Content: "b"}, "t2"))
	bus.Publish(NewTypedEventWithThread(SourceLoop, TurnCompletedPayload{Reply: "a"}, "t1"))

	var got []Event
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case e := <-ch:
			got = append(got, e)
		case <-timeout:
			t.Fatalf("timed out, got %d events", len(got))
		}
	}

	if got[0].Type != EventToken || got[1].Type != EventTurnCompleted {
		t.Errorf("unexpected event types: %s, %s", got[0].Type, got[1].Type)
	}
	for _, e := range got {
		if e.ThreadID != "t1" {
			t.Errorf("expected thread t1, got %s", e.ThreadID)
		}
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	var mu sync.Mutex
	count := 0
	unsub := bus.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	bus.Publish(NewTypedEvent(SourceLoop, StatusPayload{Content: "one"}))
	time.Sleep(50 * time.Millisecond)
	unsub()
	bus.Publish(NewTypedEvent(SourceLoop, StatusPayload{Content: "two"}))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("expected 1 delivery, got %d", count)
	}
}

func TestBusHistory(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	for i := 0; i < 12; i++ {
		bus.Publish(NewTypedEvent(SourceLoop, StatusPayload{Content: "s"}))
	}
	time.Sleep(50 * time.Millisecond)

	history := bus.History(8)
	if len(history) != 8 {
		t.Errorf("expected 8 events in history, got %d", len(history))
	}
}

func TestBusPublishAfterClose(t *testing.T) {
	bus := NewBus(8)
	bus.Close()
	// Must not panic.
	bus.Publish(NewTypedEvent(SourceLoop, StatusPayload{Content: "late"}))
}

func TestRingBufferWrap(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.Add(Event{ID: string(rune('a' + i))})
	}
	got := rb.Get(3)
	if len(got) != 3 {
		t.Fatalf("expected 3, got %d", len(got))
	}
	if got[0].ID != "c" || got[2].ID != "e" {
		t.Errorf("unexpected order: %v", got)
	}
}
