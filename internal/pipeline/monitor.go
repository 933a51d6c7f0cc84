package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"fatalwatch/internal/config"
	"fatalwatch/internal/source"
	"fatalwatch/pkg/logger"
)

// Monitor runs one Worker per log file.
type Monitor struct {
	workers   []*Worker
	metrics   *Metrics
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	wg        sync.WaitGroup
	done      chan struct{}
}

// NewMonitor starts a worker for every path. Workers stop when their
// source is exhausted, when it fails, or on Shutdown.
func NewMonitor(paths []string, open Opener, sink Sink, opts Options) *Monitor {
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		metrics:   opts.Metrics,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}

	log := logger.Get()
	log.Infow("starting monitor",
		"files", len(paths),
		"destination", opts.Destination,
		"insert_timeout_ms", opts.InsertTimeout.Milliseconds(),
		"filter", opts.Filter.String(),
	)

	for i, path := range paths {
		w := &Worker{
			id:   i + 1,
			path: path,
			open: open,
			sink: sink,
			opts: opts,
			wg:   &m.wg,
		}
		m.workers = append(m.workers, w)
		w.Start(ctx)
	}

	go func() {
		m.wg.Wait()
		close(m.done)
	}()
	return m
}

// Wait blocks until every worker has exited and returns their fatal
// errors joined.
func (m *Monitor) Wait() error {
	<-m.done
	var errs []error
	for _, w := range m.workers {
		if err := w.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown stops all workers after their in-flight line and waits for them.
func (m *Monitor) Shutdown() error {
	log := logger.Get()
	log.Info("initiating graceful shutdown")

	m.cancel()
	err := m.Wait()

	log.Info("all workers stopped, shutdown complete")
	return err
}

// Done is closed once every worker has exited.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

func (m *Monitor) WorkerCount() int {
	return len(m.workers)
}

func (m *Monitor) ActiveWorkers() int {
	n := 0
	for _, w := range m.workers {
		if w.Running() {
			n++
		}
	}
	return n
}

func (m *Monitor) StartTime() time.Time {
	return m.startTime
}

func (m *Monitor) Context() context.Context {
	return m.ctx
}

// SourceOpener returns an Opener for cfg: a tailing source when Follow is
// set, a one-shot file reader otherwise.
func SourceOpener(cfg *config.Config, cp *source.Checkpoints) Opener {
	if !cfg.Follow {
		return func(path string) (source.Source, error) {
			r, err := source.Open(path)
			if err != nil {
				return nil, err
			}
			return r, nil
		}
	}
	return func(path string) (source.Source, error) {
		t, err := source.Tail(path, source.TailOptions{
			StartAt:     cfg.StartAt,
			Poll:        cfg.Poll,
			Checkpoints: cp,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}
