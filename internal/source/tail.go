package source

import (
	"context"
	"sync"

	"github.com/nxadm/tail"
)

// TailOptions configures a tailing source.
type TailOptions struct {
	StartAt     string // StartAtBeginning, StartAtEnd or StartAtOffset
	Poll        bool   // poll for changes instead of inotify
	Checkpoints *Checkpoints
}

// Tailer follows a log file as it grows, reopening it after rotation.
type Tailer struct {
	path string
	t    *tail.Tail
	cp   *Checkpoints

	mu      sync.Mutex
	pending int64 // end offset of the last line handed out
	hasPend bool
}

// Tail starts following path. The file must exist when Tail is called.
func Tail(path string, opts TailOptions) (*Tailer, error) {
	cp := opts.Checkpoints
	if cp == nil {
		cp = NewCheckpoints("")
	}

	t, err := tail.TailFile(path, tail.Config{
		Location:  cp.SeekInfo(path, opts.StartAt),
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Poll:      opts.Poll,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, &SourceError{Path: path, Op: "open", Err: err}
	}
	return &Tailer{path: path, t: t, cp: cp}, nil
}

func (t *Tailer) Name() string { return t.path }

// Next blocks until a line is appended, ctx is cancelled, or the tail stops.
func (t *Tailer) Next(ctx context.Context) (Line, bool, error) {
	select {
	case <-ctx.Done():
		return Line{}, false, nil
	case l, ok := <-t.t.Lines:
		if !ok {
			if err := t.t.Err(); err != nil {
				return Line{}, false, &SourceError{Path: t.path, Op: "tail", Err: err}
			}
			return Line{}, false, nil
		}
		if l.Err != nil {
			return Line{}, false, &SourceError{Path: t.path, Op: "read", Err: l.Err}
		}

		// SeekInfo is taken after the line was consumed, so it already
		// points past the terminator.
		t.mu.Lock()
		t.pending = l.SeekInfo.Offset
		t.hasPend = true
		t.mu.Unlock()

		// tail's own MaxLineSize splits a long line into several lines, each
		// of which would be matched on its own, so the cap is applied here.
		line := Line{Text: l.Text, Num: int64(l.Num)}
		if len(line.Text) > MaxLineBytes {
			line.Text = line.Text[:MaxLineBytes]
			line.Truncated = true
		}
		return line, true, nil
	}
}

// Ack records the offset just past the last returned line.
func (t *Tailer) Ack() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hasPend {
		t.cp.Update(t.path, t.pending)
		t.hasPend = false
	}
}

// Close stops following the file and releases inotify watches.
func (t *Tailer) Close() error {
	err := t.t.Stop()
	t.t.Cleanup()
	return err
}
