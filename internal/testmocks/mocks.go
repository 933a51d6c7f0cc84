package testmocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"fatalwatch/internal/event"
	"fatalwatch/internal/source"
)

// --- Mock Sink (always succeeds, stores events) ---
type MockSink struct {
	mu           sync.Mutex
	Events       []event.FatalEvent
	Destinations []string
}

func (s *MockSink) Insert(_ context.Context, ev event.FatalEvent, destination string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
	s.Destinations = append(s.Destinations, destination)
	return nil
}

func (s *MockSink) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.Events))
	for _, ev := range s.Events {
		out = append(out, ev.Message)
	}
	return out
}

// --- Flaky Sink ---
// Fails for the messages listed in FailMessages, succeeds otherwise.
type FlakySink struct {
	MockSink
	FailMessages map[string]bool

	mu    sync.Mutex
	Calls int // total insert calls, including failures
}

func (s *FlakySink) Insert(ctx context.Context, ev event.FatalEvent, destination string) error {
	s.mu.Lock()
	s.Calls++
	fail := s.FailMessages[ev.Message]
	s.mu.Unlock()

	if fail {
		return errors.New("connection refused for event " + ev.ID)
	}
	return s.MockSink.Insert(ctx, ev, destination)
}

// --- Slow Sink ---
// Simulates a database round trip and records whether the delivery context
// was cancelled before the insert finished.
type SlowSink struct {
	MockSink
	Delay time.Duration

	mu        sync.Mutex
	Cancelled int
}

func (s *SlowSink) Insert(ctx context.Context, ev event.FatalEvent, destination string) error {
	select {
	case <-time.After(s.Delay):
	case <-ctx.Done():
		s.mu.Lock()
		s.Cancelled++
		s.mu.Unlock()
		return ctx.Err()
	}
	return s.MockSink.Insert(ctx, ev, destination)
}

// --- Slice Source ---
// Finite in-memory source. OnNext, if set, runs before each line is
// returned.
type SliceSource struct {
	SourceName string
	Lines      []string
	OnNext     func(i int)
	Err        error // returned once all lines are consumed, if set

	mu     sync.Mutex
	pos    int
	Acks   int
	Closed bool
}

func (s *SliceSource) Name() string {
	if s.SourceName == "" {
		return "memory"
	}
	return s.SourceName
}

func (s *SliceSource) Next(ctx context.Context) (source.Line, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil {
		return source.Line{}, false, nil
	}
	if s.pos >= len(s.Lines) {
		if s.Err != nil {
			return source.Line{}, false, s.Err
		}
		return source.Line{}, false, nil
	}
	if s.OnNext != nil {
		s.OnNext(s.pos)
	}
	s.pos++
	return source.Line{Text: s.Lines[s.pos-1], Num: int64(s.pos)}, true, nil
}

func (s *SliceSource) Ack() {
	s.mu.Lock()
	s.Acks++
	s.mu.Unlock()
}

func (s *SliceSource) Close() error {
	s.mu.Lock()
	s.Closed = true
	s.mu.Unlock()
	return nil
}

// --- Blocking Source ---
// Behaves like an idle tail: Lines are returned first, then Next blocks
// until the context is cancelled.
type BlockingSource struct {
	SliceSource
}

func (s *BlockingSource) Next(ctx context.Context) (source.Line, bool, error) {
	s.SliceSource.mu.Lock()
	remaining := s.pos < len(s.Lines)
	s.SliceSource.mu.Unlock()

	if remaining {
		return s.SliceSource.Next(ctx)
	}
	<-ctx.Done()
	return source.Line{}, false, nil
}
