// Package storage implements the sinks fatal events are delivered to.
package storage

import (
	"context"
	"fmt"
	"sync/atomic"

	"fatalwatch/internal/event"
	"fatalwatch/pkg/logger"
)

// Inserter is the sink contract: one event in, one independent outcome out.
type Inserter interface {
	Insert(ctx context.Context, ev event.FatalEvent, destination string) error
}

// SinkError reports a failed delivery of a single event.
type SinkError struct {
	Destination string
	EventID     string
	Err         error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("deliver event %s to %s: %v", e.EventID, e.Destination, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// Notify stores each event in Primary and then posts it to every notifier.
// Only Primary decides whether the event was delivered. A notifier failure
// is logged and counted but never returned, since the event is already
// visible in Primary by then.
type Notify struct {
	Primary   Inserter
	Notifiers []Inserter

	failures atomic.Uint64
}

func (n *Notify) Insert(ctx context.Context, ev event.FatalEvent, destination string) error {
	if err := n.Primary.Insert(ctx, ev, destination); err != nil {
		return err
	}
	for _, s := range n.Notifiers {
		if err := s.Insert(ctx, ev, destination); err != nil {
			n.failures.Add(1)
			logger.Get().Warnw("notification failed, event already stored",
				"event_id", ev.ID,
				"destination", destination,
				"error", err,
			)
		}
	}
	return nil
}

// NotifyFailures counts notifier calls that failed.
func (n *Notify) NotifyFailures() uint64 {
	return n.failures.Load()
}
