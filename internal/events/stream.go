// Package events implements the bounded single-producer single-consumer
// event stream that carries agent run output to its one consumer.
//
// A channel cannot express the required terminal-state semantics (pushes
// after Close or Fail must be silent no-ops, a failure must be delivered to
// the consumer exactly once), so the queue is hand-written on a mutex.
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/quarryhq/quarry/pkg/models"
)

// Sentinel errors returned by Next.
var (
	// ErrStreamDone indicates the stream terminated and its buffer is drained.
	ErrStreamDone = errors.New("event stream done")

	// ErrBusyConsumer indicates a second Next was issued while one was parked.
	// The stream is single-consumer; at most one Next may be outstanding.
	ErrBusyConsumer = errors.New("event stream: concurrent Next")
)

// DefaultCapacity is the event buffer bound. A full open stream blocks the
// producer (backpressure); terminal streams drop pushes instead.
const DefaultCapacity = 256

type streamState int

const (
	stateOpen streamState = iota
	stateClosed
	stateFailed
)

// Stream is a bounded ordered queue of agent events with states
// open, closed, and failed.
//
// Producers call Push, then exactly one of Close or Fail. The single
// consumer calls Next until it returns ErrStreamDone, or abandons the
// stream with Cancel.
type Stream struct {
	mu  sync.Mutex
	buf []models.AgentEvent
	cap int

	state        streamState
	err          error
	errDelivered bool

	// waiter is non-nil while a consumer is parked in Next.
	waiter chan struct{}
	// space wakes producers blocked on a full buffer.
	space *sync.Cond
}

// New creates an open stream. A capacity <= 0 selects DefaultCapacity.
func New(capacity int) *Stream {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Stream{cap: capacity}
	s.space = sync.NewCond(&s.mu)
	return s
}

// Push enqueues an event. It blocks while the stream is open and full, and
// silently drops the event once the stream is closed, failed, or cancelled.
func (s *Stream) Push(ev models.AgentEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.state != stateOpen {
			return
		}
		if len(s.buf) < s.cap {
			s.buf = append(s.buf, ev)
			s.wakeConsumer()
			return
		}
		s.space.Wait()
	}
}

// Close transitions the stream to closed. A parked consumer is released and
// will observe ErrStreamDone after draining the buffer. Idempotent.
func (s *Stream) Close() {
	s.terminate(stateClosed, nil)
}

// Fail transitions the stream to failed with the given error. The consumer
// receives err from Next exactly once after the buffer drains; subsequent
// calls return ErrStreamDone.
func (s *Stream) Fail(err error) {
	if err == nil {
		err = ErrStreamDone
	}
	s.terminate(stateFailed, err)
}

// Cancel is the consumer-initiated close, equivalent to dropping the
// iterator. Producers observe the terminal state on their next Push.
func (s *Stream) Cancel() {
	s.terminate(stateClosed, nil)
}

func (s *Stream) terminate(st streamState, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateOpen {
		return
	}
	s.state = st
	s.err = err
	s.wakeConsumer()
	s.space.Broadcast()
}

// Next dequeues the next event, parking the caller while the stream is open
// and empty. On a drained closed stream it returns ErrStreamDone; on a
// drained failed stream it returns the failure once, then ErrStreamDone.
func (s *Stream) Next(ctx context.Context) (models.AgentEvent, error) {
	s.mu.Lock()
	for {
		if len(s.buf) > 0 {
			ev := s.buf[0]
			s.buf = s.buf[1:]
			s.space.Signal()
			s.mu.Unlock()
			return ev, nil
		}
		switch s.state {
		case stateFailed:
			if !s.errDelivered {
				s.errDelivered = true
				err := s.err
				s.mu.Unlock()
				return models.AgentEvent{}, err
			}
			s.mu.Unlock()
			return models.AgentEvent{}, ErrStreamDone
		case stateClosed:
			s.mu.Unlock()
			return models.AgentEvent{}, ErrStreamDone
		}
		if s.waiter != nil {
			s.mu.Unlock()
			return models.AgentEvent{}, ErrBusyConsumer
		}
		w := make(chan struct{})
		s.waiter = w
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.waiter == w {
				s.waiter = nil
			}
			s.mu.Unlock()
			return models.AgentEvent{}, ctx.Err()
		case <-w:
			s.mu.Lock()
		}
	}
}

// Done reports whether the stream reached a terminal state.
func (s *Stream) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != stateOpen
}

func (s *Stream) wakeConsumer() {
	if s.waiter != nil {
		close(s.waiter)
		s.waiter = nil
	}
}
