package source

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
)

// Reader is a finite Source over an io.Reader.
type Reader struct {
	name   string
	r      *bufio.Reader
	closer io.Closer
	num    int64
	done   bool
}

// Open opens path for a one-shot read from start to the current end of file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &SourceError{Path: path, Op: "open", Err: err}
	}
	r := NewReader(path, f)
	r.closer = f
	return r, nil
}

// NewReader wraps r. The caller keeps ownership of r.
func NewReader(name string, r io.Reader) *Reader {
	return &Reader{name: name, r: bufio.NewReaderSize(r, 64*1024)}
}

func (r *Reader) Name() string { return r.name }

// Next returns the next line with its terminator preserved. A trailing line
// without a terminator is still returned before hasMore turns false.
func (r *Reader) Next(ctx context.Context) (Line, bool, error) {
	if r.done {
		return Line{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		return Line{}, false, nil
	}

	text, truncated, err := r.readLine()
	if err != nil && !errors.Is(err, io.EOF) {
		r.done = true
		return Line{}, false, &SourceError{Path: r.name, Op: "read", Err: err}
	}
	if errors.Is(err, io.EOF) {
		r.done = true
		if text == "" {
			return Line{}, false, nil
		}
	}

	r.num++
	return Line{Text: text, Num: r.num, Truncated: truncated}, true, nil
}

// readLine reads through the next "\n". Bytes past MaxLineBytes are
// discarded so one runaway line cannot exhaust memory; truncated reports
// whether that happened.
func (r *Reader) readLine() (string, bool, error) {
	var (
		buf       []byte
		truncated bool
	)
	for {
		chunk, err := r.r.ReadSlice('\n')
		room := MaxLineBytes - len(buf)
		if len(chunk) > room {
			buf = append(buf, chunk[:room]...)
			truncated = true
		} else {
			buf = append(buf, chunk...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return string(buf), truncated, err
	}
}

func (r *Reader) Close() error {
	r.done = true
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}
