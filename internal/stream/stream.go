// Package stream carries a run's events from the pipeline to a single
// consumer, and frames them as server-sent events on the wire.
package stream

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/drmonteiro/brands-ai/internal/model"
)

// DefaultBuffer is the event capacity used when none is configured.
const DefaultBuffer = 16

var (
	// ErrConsumerGone is returned by Emit after the consumer cancelled.
	ErrConsumerGone = eris.New("stream: consumer gone")
	// ErrClosed is returned by Emit after Close.
	ErrClosed = eris.New("stream: closed")
)

// Stream is an ordered, bounded single-producer/single-consumer event
// channel. Emit blocks while the buffer is full; nothing is dropped.
// Emit and Close must be called from the producing goroutine only.
type Stream struct {
	ch        chan model.Event
	cancelled chan struct{}

	mu         sync.Mutex
	closed     bool
	cancelOnce sync.Once
}

// New creates a Stream holding up to buffer undelivered events.
func New(buffer int) *Stream {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Stream{
		ch:        make(chan model.Event, buffer),
		cancelled: make(chan struct{}),
	}
}

// Emit queues ev for the consumer.
func (s *Stream) Emit(ctx context.Context, ev model.Event) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	select {
	case <-s.cancelled:
		return ErrConsumerGone
	default:
	}

	select {
	case s.ch <- ev:
		return nil
	case <-s.cancelled:
		return ErrConsumerGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the stream. Calling it more than once is a no-op.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Cancel tells the producer nobody is listening any more. Pending and
// future Emit calls return ErrConsumerGone.
func (s *Stream) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancelled) })
}

// Next returns the next event in emission order. ok is false once the
// stream is closed and drained, or ctx is done.
func (s *Stream) Next(ctx context.Context) (ev model.Event, ok bool) {
	select {
	case ev, ok = <-s.ch:
		return ev, ok
	case <-ctx.Done():
		return model.Event{}, false
	}
}

// Drain reads every event until the stream closes. terminal reports whether
// the last event ended the stream normally; a stream closed without a
// terminal event is an abnormal end and must not be read as completion.
func (s *Stream) Drain(ctx context.Context) (events []model.Event, terminal bool) {
	for {
		ev, ok := s.Next(ctx)
		if !ok {
			return events, terminal
		}
		events = append(events, ev)
		terminal = ev.IsTerminal()
	}
}
