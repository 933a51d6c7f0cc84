package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"fatalwatch/internal/config"
	"fatalwatch/internal/event"
	"fatalwatch/internal/pipeline"
	"fatalwatch/pkg/logger"
)

var scanCmd = &cobra.Command{
	Use:   "scan LOG_FILE...",
	Short: "Print FATAL events from log files as JSON lines without writing to a sink",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().String("filter", "", "Only print events for which this expression is true")

	rootCmd.AddCommand(scanCmd)
}

// jsonLinesSink writes each event as one JSON document per line.
type jsonLinesSink struct {
	enc *json.Encoder
}

func newJSONLinesSink(w io.Writer) *jsonLinesSink {
	return &jsonLinesSink{enc: json.NewEncoder(w)}
}

func (s *jsonLinesSink) Insert(_ context.Context, ev event.FatalEvent, _ string) error {
	return s.enc.Encode(ev)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("filter") {
		cfg.Filter, _ = cmd.Flags().GetString("filter")
	}
	initLogger(cfg)
	defer logger.Sync()

	filter, err := pipeline.CompileFilter(cfg.Filter)
	if err != nil {
		return err
	}
	// scan never follows, whatever the environment says
	open := pipeline.SourceOpener(&config.Config{Follow: false}, nil)
	return scanFiles(cmd.Context(), args, open, newJSONLinesSink(cmd.OutOrStdout()), filter)
}

// scanFiles reads the files one after another so output keeps file order.
func scanFiles(ctx context.Context, paths []string, open pipeline.Opener, sink pipeline.Sink, filter *pipeline.Filter) error {
	if ctx == nil {
		ctx = context.Background()
	}
	metrics := pipeline.NewMetrics()
	for _, path := range paths {
		r, err := open(path)
		if err != nil {
			return err
		}
		p := pipeline.New(r, sink, pipeline.Options{Filter: filter, Metrics: metrics})
		err = p.Run(ctx)
		if cerr := r.Close(); cerr != nil {
			logger.Get().Warnw("closing log source failed", "file", path, "error", cerr)
		}
		if err != nil {
			return err
		}
	}
	logger.Get().Infow("scan finished",
		"files", len(paths),
		"lines_read", metrics.LinesRead(),
		"events", metrics.Delivered(),
		"failed", metrics.Failed(),
	)
	return nil
}
