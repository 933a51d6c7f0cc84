package pipeline

import (
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"fatalwatch/internal/event"
)

// FilterEnv is what a filter expression can see.
type FilterEnv struct {
	Message   string
	Timestamp time.Time
	Source    string
	Line      int64
}

// Filter decides whether an event is delivered. An expression returning
// false suppresses the event, e.g.
//
//	not (Message startsWith "terminating connection due to administrator command")
type Filter struct {
	src     string
	program *vm.Program
}

// CompileFilter compiles src. An empty src returns a nil filter, which
// keeps every event.
func CompileFilter(src string) (*Filter, error) {
	if src == "" {
		return nil, nil
	}
	program, err := expr.Compile(src, expr.Env(FilterEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter %q: %w", src, err)
	}
	return &Filter{src: src, program: program}, nil
}

// Allow reports whether ev passes. A nil filter allows everything.
func (f *Filter) Allow(ev event.FatalEvent) (bool, error) {
	if f == nil {
		return true, nil
	}
	out, err := expr.Run(f.program, FilterEnv{
		Message:   ev.Message,
		Timestamp: ev.Timestamp,
		Source:    ev.Source,
		Line:      ev.Line,
	})
	if err != nil {
		return true, fmt.Errorf("filter %q: %w", f.src, err)
	}
	keep, _ := out.(bool)
	return keep, nil
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.src
}
