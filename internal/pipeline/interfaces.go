package pipeline

import (
	"context"

	"fatalwatch/internal/event"
)

// Sink stores one event per call. Each call is an independent transaction;
// destination is passed through untouched.
type Sink interface {
	Insert(ctx context.Context, ev event.FatalEvent, destination string) error
}

type Validator interface {
	Validate(ctx context.Context, ev event.FatalEvent) error
}
