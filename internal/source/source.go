// Package source produces raw log lines for the event pipeline.
//
// Two variants share the Source interface: a finite reader that stops at
// end of file, and a tailing reader that keeps following appended data.
package source

import (
	"context"
	"errors"
	"fmt"
)

// MaxLineBytes bounds how much of a single physical line a source keeps.
const MaxLineBytes = 1 << 20

// ErrLineTooLong is reported for lines cut at MaxLineBytes.
var ErrLineTooLong = errors.New("line exceeds maximum length")

// Line is one physical log line. Text may or may not end with "\n".
// Truncated is set when the line was longer than MaxLineBytes; Text then
// holds only the first MaxLineBytes bytes and no terminator.
type Line struct {
	Text      string
	Num       int64
	Truncated bool
}

// Source yields lines in document order.
type Source interface {
	// Next returns the next line. hasMore is false once a finite source is
	// exhausted or a tailing source was stopped or cancelled. A non-nil
	// error is a *SourceError and ends the run.
	Next(ctx context.Context) (line Line, hasMore bool, err error)

	// Name identifies the source in logs, usually the file path.
	Name() string

	Close() error
}

// Acker is implemented by sources that track how far the consumer got.
// Ack marks the most recent line returned by Next as fully handled.
type Acker interface {
	Ack()
}

// SourceError reports that a log source could not be opened or read.
type SourceError struct {
	Path string
	Op   string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
