package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"fatalwatch/internal/event"
	"fatalwatch/internal/source"
	"fatalwatch/pkg/logger"
)

// Failure kinds reported for events that were not delivered.
const (
	KindTimestamp  = "timestamp"
	KindValidation = "validation"
	KindSink       = "sink"
)

// Failure describes one line whose event could not be delivered.
type Failure struct {
	Kind   string
	Source string
	Line   source.Line
	Event  event.FatalEvent // zero for timestamp failures
	Err    error
}

// Options are shared by every Pipeline a Monitor starts.
type Options struct {
	Destination   string
	InsertTimeout time.Duration

	Matcher   *event.Matcher // defaults to event.NewMatcher()
	Validator Validator      // optional
	Filter    *Filter        // optional
	Metrics   *Metrics       // defaults to a private instance

	// OnFailure, if set, is called after a failure has been logged.
	OnFailure func(Failure)
}

// Pipeline drives one source: read a line, match it, deliver the event,
// repeat. Lines are handled strictly in order and one at a time.
type Pipeline struct {
	src  source.Source
	sink Sink
	opts Options
	log  *zap.SugaredLogger
}

func New(src source.Source, sink Sink, opts Options) *Pipeline {
	if opts.Matcher == nil {
		opts.Matcher = event.NewMatcher()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	return &Pipeline{
		src:  src,
		sink: sink,
		opts: opts,
		log:  logger.Get().With("file", src.Name()),
	}
}

// Run consumes the source until it is exhausted or ctx is cancelled, which
// both return nil. Per-event failures are reported and skipped; only a
// *source.SourceError is returned.
func (p *Pipeline) Run(ctx context.Context) error {
	acker, _ := p.src.(source.Acker)

	for {
		if ctx.Err() != nil {
			p.log.Infow("pipeline stopped", "reason", "context cancelled")
			return nil
		}

		line, more, err := p.src.Next(ctx)
		if err != nil {
			p.log.Errorw("source failed", "error", err)
			return err
		}
		if !more {
			p.log.Infow("pipeline stopped", "reason", "end of input")
			return nil
		}

		p.handle(ctx, line)
		if acker != nil {
			acker.Ack()
		}
	}
}

// handle processes a single line. The delivery context is detached from
// ctx so that cancellation lets an in-flight insert finish.
func (p *Pipeline) handle(ctx context.Context, line source.Line) {
	m := p.opts.Metrics
	m.IncLinesRead()

	ev, ok, err := p.opts.Matcher.Match(line.Text)
	if !ok {
		if line.Truncated {
			p.log.Warnw("overlong line skipped", "line", line.Num, "limit_bytes", source.MaxLineBytes)
		}
		return
	}
	m.IncMatched()

	// the message would be cut short
	if line.Truncated {
		m.IncValidationErrors()
		p.report(Failure{
			Kind:   KindValidation,
			Source: p.src.Name(),
			Line:   line,
			Err:    fmt.Errorf("line %d: %w (%d bytes)", line.Num, source.ErrLineTooLong, source.MaxLineBytes),
		})
		return
	}

	if err != nil {
		m.IncTimestampErrors()
		p.report(Failure{Kind: KindTimestamp, Source: p.src.Name(), Line: line, Err: err})
		return
	}

	ev.Source = p.src.Name()
	ev.Line = line.Num
	ev = event.NewFatalEvent(ev)

	if p.opts.Validator != nil {
		if err := p.opts.Validator.Validate(ctx, ev); err != nil {
			m.IncValidationErrors()
			p.report(Failure{Kind: KindValidation, Source: p.src.Name(), Line: line, Event: ev, Err: err})
			return
		}
	}

	keep, err := p.opts.Filter.Allow(ev)
	if err != nil {
		p.log.Warnw("filter failed, delivering event", "event_id", ev.ID, "error", err)
	}
	if !keep {
		m.IncFiltered()
		p.log.Debugw("event filtered", "event_id", ev.ID, "line", line.Num)
		return
	}

	dctx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc = func() {}
	if p.opts.InsertTimeout > 0 {
		dctx, cancel = context.WithTimeout(dctx, p.opts.InsertTimeout)
	}
	start := time.Now()
	err = p.sink.Insert(dctx, ev, p.opts.Destination)
	cancel()

	if err != nil {
		m.IncSinkErrors()
		p.report(Failure{Kind: KindSink, Source: p.src.Name(), Line: line, Event: ev, Err: err})
		return
	}

	latency := time.Since(start).Milliseconds()
	m.AddLatency(latency)
	m.IncDelivered()
	p.log.Infow("fatal event delivered",
		"event_id", ev.ID,
		"line", line.Num,
		"timestamp", ev.Timestamp.Format(event.TimestampLayout),
		"latency_ms", latency,
	)
}

func (p *Pipeline) report(f Failure) {
	kv := []interface{}{
		"error_kind", f.Kind,
		"line", f.Line.Num,
		"raw", strings.TrimRight(f.Line.Text, "\r\n"),
		"error", f.Err,
	}
	if f.Event.ID != "" {
		kv = append(kv, "event_id", f.Event.ID)
	}

	if f.Kind == KindSink {
		p.log.Errorw("event delivery failed", kv...)
	} else {
		p.log.Warnw("event rejected", kv...)
	}

	if p.opts.OnFailure != nil {
		p.opts.OnFailure(f)
	}
}
