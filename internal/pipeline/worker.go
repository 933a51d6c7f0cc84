package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"fatalwatch/internal/source"
	"fatalwatch/pkg/logger"
)

// Opener opens the source for one log path.
type Opener func(path string) (source.Source, error)

// Worker owns one log file for the lifetime of a Monitor. Events from the
// same file are delivered by this worker only, which keeps them in order.
type Worker struct {
	id      int
	path    string
	open    Opener
	sink    Sink
	opts    Options
	wg      *sync.WaitGroup
	running atomic.Bool

	err error // set before wg.Done
}

func (w *Worker) Start(ctx context.Context) {
	log := logger.Get().With("worker", w.id, "file", w.path)

	w.wg.Add(1)
	w.running.Store(true)
	go func() {
		defer w.wg.Done()
		defer w.running.Store(false)

		src, err := w.open(w.path)
		if err != nil {
			log.Errorw("cannot open log source", "error", err)
			w.err = err
			return
		}
		defer func() {
			if err := src.Close(); err != nil {
				log.Warnw("closing log source failed", "error", err)
			}
		}()

		log.Infow("worker started")
		w.err = New(src, w.sink, w.opts).Run(ctx)
		log.Infow("worker exiting", "error", w.err)
	}()
}

func (w *Worker) Path() string { return w.path }

func (w *Worker) Running() bool { return w.running.Load() }

// Err is the fatal source error that stopped the worker, if any. Only valid
// after the worker has exited.
func (w *Worker) Err() error { return w.err }
