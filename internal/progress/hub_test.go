package progress

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestPublishAssignsSequence(t *testing.T) {
	hub := NewHub(10)
	hub.Publish(Event{JobID: "a", Percent: 10})
	hub.Publish(Event{JobID: "a", Percent: 20})

	events, next := hub.Tail("", 10)
	if len(events) != 2 {
		t.Fatalf("got %d events", len(events))
	}
	if events[0].Sequence != 1 || events[1].Sequence != 2 {
		t.Fatalf("sequences = %d,%d", events[0].Sequence, events[1].Sequence)
	}
	if next != 2 {
		t.Fatalf("next = %d", next)
	}
	if events[0].Timestamp.IsZero() {
		t.Fatal("timestamp not set")
	}
}

func TestFetchFromCursor(t *testing.T) {
	hub := NewHub(10)
	for i := 1; i <= 5; i++ {
		hub.Publish(Event{JobID: "a", Percent: float64(i * 10)})
	}

	events, next, err := hub.Fetch(context.Background(), "", 2, 10, false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Sequence != 3 {
		t.Fatalf("first sequence = %d", events[0].Sequence)
	}
	if next != 5 {
		t.Fatalf("next = %d", next)
	}
}

func TestFetchTruncatedResultResumesWithoutLoss(t *testing.T) {
	hub := NewHub(10)
	for i := 1; i <= 5; i++ {
		hub.Publish(Event{JobID: "a", Percent: float64(i * 10)})
	}

	events, next, err := hub.Fetch(context.Background(), "", 0, 2, false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if next != events[1].Sequence {
		t.Fatalf("next = %d, want last delivered sequence %d", next, events[1].Sequence)
	}

	rest, next, err := hub.Fetch(context.Background(), "", next, 10, false)
	if err != nil {
		t.Fatalf("fetch rest: %v", err)
	}
	if len(rest) != 3 {
		t.Fatalf("got %d remaining events, want 3", len(rest))
	}
	if rest[0].Sequence != 3 || rest[2].Sequence != 5 {
		t.Fatalf("unexpected remaining sequences: %d..%d", rest[0].Sequence, rest[2].Sequence)
	}
	if next != 5 {
		t.Fatalf("next after full drain = %d", next)
	}
}

func TestFetchFiltersByJob(t *testing.T) {
	hub := NewHub(10)
	hub.Publish(Event{JobID: "a", Percent: 10})
	hub.Publish(Event{JobID: "b", Percent: 20})
	hub.Publish(Event{JobID: "a", Percent: 30})

	events, _, err := hub.Fetch(context.Background(), "a", 0, 10, false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	for _, evt := range events {
		if evt.JobID != "a" {
			t.Fatalf("wrong job in results: %+v", evt)
		}
	}
}

func TestFetchWaitWakesOnPublish(t *testing.T) {
	hub := NewHub(10)

	type result struct {
		events []Event
		err    error
	}
	done := make(chan result, 1)
	go func() {
		events, _, err := hub.Fetch(context.Background(), "a", 0, 10, true)
		done <- result{events, err}
	}()

	time.Sleep(50 * time.Millisecond)
	hub.Publish(Event{JobID: "a", Percent: 42})

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("fetch: %v", r.err)
		}
		if len(r.events) != 1 || r.events[0].Percent != 42 {
			t.Fatalf("events = %+v", r.events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not woken")
	}
}

func TestFetchWaitHonorsContext(t *testing.T) {
	hub := NewHub(10)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := hub.Fetch(ctx, "", 0, 10, true)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestBufferEviction(t *testing.T) {
	hub := NewHub(3)
	for i := 1; i <= 5; i++ {
		hub.Publish(Event{JobID: "a", Message: fmt.Sprintf("e%d", i)})
	}

	if first := hub.FirstSequence(); first != 3 {
		t.Fatalf("first sequence = %d, want 3", first)
	}
	events, _ := hub.Tail("", 10)
	if len(events) != 3 {
		t.Fatalf("got %d buffered events", len(events))
	}
	if events[0].Message != "e3" {
		t.Fatalf("oldest buffered = %q", events[0].Message)
	}
}

func TestTailLimitsAndOrders(t *testing.T) {
	hub := NewHub(10)
	hub.Publish(Event{JobID: "a", Message: "one"})
	hub.Publish(Event{JobID: "b", Message: "skip"})
	hub.Publish(Event{JobID: "a", Message: "two"})
	hub.Publish(Event{JobID: "a", Message: "three"})

	events, _ := hub.Tail("a", 2)
	if len(events) != 2 {
		t.Fatalf("got %d events", len(events))
	}
	if events[0].Message != "two" || events[1].Message != "three" {
		t.Fatalf("tail order wrong: %+v", events)
	}
}
