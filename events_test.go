package relay

import (
	"testing"
	"time"
)

func TestNewEvent(t *testing.T) {
	before := time.Now()
	e := NewEvent(EventAttemptStarted, "req-1", ProviderIssueTracker)

	if e.Kind != EventAttemptStarted {
		t.Fatalf("Kind = %q, want %q", e.Kind, EventAttemptStarted)
	}
	if e.RequestID != "req-1" {
		t.Fatalf("RequestID = %q, want %q", e.RequestID, "req-1")
	}
	if e.Provider != ProviderIssueTracker {
		t.Fatalf("Provider = %q, want %q", e.Provider, ProviderIssueTracker)
	}
	if e.Time.Before(before) {
		t.Fatalf("Time = %v, want >= %v", e.Time, before)
	}
}

func TestEventBuilders(t *testing.T) {
	result := Failure("boom", ErrorKindTransient)
	e := NewEvent(EventAttemptFinished, "req-1", ProviderModel).
		WithAttempt(2).
		WithElapsed(150 * time.Millisecond).
		WithResult(result)

	if e.Attempt != 2 {
		t.Fatalf("Attempt = %d, want 2", e.Attempt)
	}
	if e.Elapsed != 150*time.Millisecond {
		t.Fatalf("Elapsed = %v, want 150ms", e.Elapsed)
	}
	if e.Result == nil {
		t.Fatal("Result = nil, want set")
	}
	if !e.Result.Equal(result) {
		t.Fatalf("Result = %v, want %v", e.Result, result)
	}
}

func TestMultiEventHandler(t *testing.T) {
	var first, second int
	handler := MultiEventHandler(
		func(Event) { first++ },
		nil,
		func(Event) { second++ },
	)

	handler(NewEvent(EventRequestAccepted, "req-1", ProviderModel))
	handler(NewEvent(EventRequestFinished, "req-1", ProviderModel))

	if first != 2 || second != 2 {
		t.Fatalf("handler counts = %d, %d, want 2, 2", first, second)
	}
}

func TestChannelEventHandlerDropsWhenFull(t *testing.T) {
	ch := make(chan Event, 1)
	handler := ChannelEventHandler(ch)

	handler(NewEvent(EventRequestAccepted, "req-1", ProviderModel))
	handler(NewEvent(EventRequestFinished, "req-1", ProviderModel))

	got := <-ch
	if got.Kind != EventRequestAccepted {
		t.Fatalf("first event kind = %q, want %q", got.Kind, EventRequestAccepted)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected second event %q, want drop", e.Kind)
	default:
	}
}
