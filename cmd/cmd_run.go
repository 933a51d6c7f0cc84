package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fatalwatch/internal/api"
	"fatalwatch/internal/config"
	"fatalwatch/internal/pipeline"
	"fatalwatch/internal/source"
	"fatalwatch/internal/storage"
	"fatalwatch/pkg/logger"
	"fatalwatch/pkg/validator"
)

const maxMessageBytes = 64 << 10

var runCmd = &cobra.Command{
	Use:   "run [LOG_FILE...]",
	Short: "Watch log files and write FATAL events to the sink",
	Long: `Reads every log file, extracts FATAL events and inserts them into the
destination table. Without --follow each file is read once; with --follow
the files are tailed until SIGINT or SIGTERM.

Positional arguments replace the configured log_paths.`,
	RunE: runRun,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Bool("follow", false, "Keep tailing files for new lines")
	f.String("start-at", source.StartAtEnd, "Where tailing starts: start, end or offset")
	f.Bool("poll", false, "Poll for file changes instead of inotify")
	f.String("checkpoint-file", "", "Persist tail offsets to this file")
	f.String("destination", "fatal_events", "Destination table")
	f.Bool("create-table", false, "Create the destination table if missing")
	f.String("driver", config.DriverPostgres, "Sink driver: postgres, mysql, sqlite or webhook")
	f.String("sqlite-path", "", "Database file for the sqlite driver")
	f.String("webhook-url", "", "Also POST every event to this URL")
	f.String("filter", "", "Only deliver events for which this expression is true")
	f.Duration("insert-timeout", 5*time.Second, "Timeout for a single insert")
	f.String("http-addr", "", "Serve health, metrics and match endpoints on this address")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if len(args) > 0 {
		cfg.LogPaths = args
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	initLogger(cfg)
	log := logger.Get()
	defer logger.Sync()

	log.Infow("loaded configuration",
		"files", cfg.LogPaths,
		"follow", cfg.Follow,
		"start_at", cfg.StartAt,
		"driver", cfg.Driver,
		"db_host", cfg.DBHost,
		"db_name", cfg.DBName,
		"destination", cfg.Destination,
		"insert_timeout_ms", cfg.InsertTimeout.Milliseconds(),
	)

	filter, err := pipeline.CompileFilter(cfg.Filter)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, closeSink, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSink(); err != nil {
			log.Warnw("closing sink", "error", err)
			return
		}
		log.Info("closed sink")
	}()

	cp := source.NewCheckpoints(cfg.CheckpointFile)
	if err := cp.Load(); err != nil {
		log.Warnw("ignoring unreadable checkpoint file", "file", cfg.CheckpointFile, "error", err)
	}
	cp.Start(cfg.CheckpointSave)
	defer func() {
		if err := cp.Stop(); err != nil {
			log.Warnw("saving checkpoints", "error", err)
		}
	}()

	m := pipeline.NewMonitor(cfg.LogPaths, pipeline.SourceOpener(cfg, cp), sink, pipeline.Options{
		Destination:   cfg.Destination,
		InsertTimeout: cfg.InsertTimeout,
		Validator:     &validator.BasicValidator{MaxMessageBytes: maxMessageBytes},
		Filter:        filter,
	})

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		mux := http.NewServeMux()
		api.NewServer(m).RegisterRoutes(mux)
		srv = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Infow("http server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("server error", "error", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down monitor...")
		err = m.Shutdown()
	case <-m.Done():
		err = m.Wait()
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			log.Errorw("server shutdown error", "error", serr)
		}
	}

	metrics := m.Metrics()
	log.Infow("monitor stopped",
		"lines_read", metrics.LinesRead(),
		"events_delivered", metrics.Delivered(),
		"events_failed", metrics.Failed(),
	)
	return err
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("follow") {
		cfg.Follow, _ = f.GetBool("follow")
	}
	if f.Changed("start-at") {
		cfg.StartAt, _ = f.GetString("start-at")
	}
	if f.Changed("poll") {
		cfg.Poll, _ = f.GetBool("poll")
	}
	if f.Changed("checkpoint-file") {
		cfg.CheckpointFile, _ = f.GetString("checkpoint-file")
	}
	if f.Changed("destination") {
		cfg.Destination, _ = f.GetString("destination")
	}
	if f.Changed("create-table") {
		cfg.CreateTable, _ = f.GetBool("create-table")
	}
	if f.Changed("driver") {
		cfg.Driver, _ = f.GetString("driver")
	}
	if f.Changed("sqlite-path") {
		cfg.SQLitePath, _ = f.GetString("sqlite-path")
	}
	if f.Changed("webhook-url") {
		cfg.WebhookURL, _ = f.GetString("webhook-url")
	}
	if f.Changed("filter") {
		cfg.Filter, _ = f.GetString("filter")
	}
	if f.Changed("insert-timeout") {
		cfg.InsertTimeout, _ = f.GetDuration("insert-timeout")
	}
	if f.Changed("http-addr") {
		cfg.HTTPAddr, _ = f.GetString("http-addr")
	}
}
