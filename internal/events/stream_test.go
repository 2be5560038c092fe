package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quarryhq/quarry/pkg/models"
)

func TestStreamOrderedDelivery(t *testing.T) {
	s := New(8)
	s.Push(models.NewMessageStart())
	s.Push(models.NewMessageDelta("a", false))
	s.Push(models.NewMessageComplete("a", time.Millisecond))
	s.Close()

	want := []models.EventType{
		models.EventMessageStart,
		models.EventMessageDelta,
		models.EventMessageComplete,
	}
	ctx := context.Background()
	for i, w := range want {
		ev, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
		if ev.Type != w {
			t.Fatalf("event %d: got %s, want %s", i, ev.Type, w)
		}
	}
	if _, err := s.Next(ctx); !errors.Is(err, ErrStreamDone) {
		t.Fatalf("expected ErrStreamDone, got %v", err)
	}
}

func TestStreamPushAfterCloseDropped(t *testing.T) {
	s := New(8)
	s.Close()
	s.Push(models.NewMessageDelta("late", false))
	if _, err := s.Next(context.Background()); !errors.Is(err, ErrStreamDone) {
		t.Fatalf("late push leaked into stream: %v", err)
	}
}

func TestStreamFailDeliveredExactlyOnce(t *testing.T) {
	s := New(8)
	boom := errors.New("boom")
	s.Push(models.NewMessageStart())
	s.Fail(boom)
	s.Push(models.NewMessageDelta("late", false))

	ctx := context.Background()
	if ev, err := s.Next(ctx); err != nil || ev.Type != models.EventMessageStart {
		t.Fatalf("buffered event lost: %v %v", ev.Type, err)
	}
	if _, err := s.Next(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected failure, got %v", err)
	}
	if _, err := s.Next(ctx); !errors.Is(err, ErrStreamDone) {
		t.Fatalf("failure delivered twice: %v", err)
	}
}

func TestStreamParkedConsumerReleasedByPush(t *testing.T) {
	s := New(8)
	got := make(chan models.AgentEvent, 1)
	go func() {
		ev, err := s.Next(context.Background())
		if err != nil {
			t.Errorf("next: %v", err)
		}
		got <- ev
	}()

	time.Sleep(20 * time.Millisecond)
	s.Push(models.NewToolStart("read_file", "t1", nil))

	select {
	case ev := <-got:
		if ev.Type != models.EventToolStart {
			t.Fatalf("got %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("parked consumer never released")
	}
}

func TestStreamParkedConsumerReleasedByCancel(t *testing.T) {
	s := New(8)
	done := make(chan error, 1)
	go func() {
		_, err := s.Next(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	s.Cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrStreamDone) {
			t.Fatalf("expected ErrStreamDone, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancel did not release consumer")
	}
	if !s.Done() {
		t.Fatal("stream should be terminal after cancel")
	}
}

func TestStreamBackpressureReleasedOnTerminal(t *testing.T) {
	s := New(1)
	s.Push(models.NewMessageStart())

	unblocked := make(chan struct{})
	go func() {
		s.Push(models.NewMessageDelta("stuck", false)) // blocks: buffer full
		close(unblocked)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-unblocked:
		t.Fatal("push should block on full open stream")
	default:
	}

	s.Cancel()
	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("terminal state did not release blocked producer")
	}
}

func TestStreamSingleConsumerDiscipline(t *testing.T) {
	s := New(8)
	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = s.Next(context.Background())
	}()
	<-started
	time.Sleep(20 * time.Millisecond)

	_, err := s.Next(context.Background())
	if !errors.Is(err, ErrBusyConsumer) {
		t.Fatalf("expected ErrBusyConsumer, got %v", err)
	}
	s.Close()
}

func TestStreamNextContextCancel(t *testing.T) {
	s := New(8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Next(ctx)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("context cancel did not release consumer")
	}

	// The stream itself stays open; a fresh Next may park again.
	s.Push(models.NewMessageStart())
	if ev, err := s.Next(context.Background()); err != nil || ev.Type != models.EventMessageStart {
		t.Fatalf("stream unusable after consumer ctx cancel: %v", err)
	}
}
