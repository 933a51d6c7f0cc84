package storage

import (
	"context"
	"fmt"

	"fatalwatch/internal/config"
	"fatalwatch/pkg/logger"
)

// Open builds the sink described by cfg. A webhook URL configured next to a
// SQL driver is notified after each stored event. The returned close
// function releases the connection pool.
func Open(ctx context.Context, cfg *config.Config) (Inserter, func() error, error) {
	noop := func() error { return nil }
	log := logger.Get()

	if cfg.Driver == config.DriverWebhook {
		return NewWebhookSink(cfg.WebhookURL, cfg.WebhookTimeout), noop, nil
	}

	pool := PoolConfig{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}

	var (
		s   *SQLSink
		err error
	)
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err = NewPostgresSink(cfg.DSN(), pool)
	case config.DriverMySQL:
		s, err = NewMySQLSink(cfg.DSN(), pool)
	case config.DriverSQLite:
		s, err = NewSQLiteSink(cfg.DSN())
	default:
		err = fmt.Errorf("unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, noop, err
	}

	// Unreachable databases are reported per event, not at startup.
	if err := s.Ping(ctx); err != nil {
		log.Warnw("sink not reachable yet", "driver", cfg.Driver, "error", err)
	}

	if cfg.CreateTable {
		if err := s.EnsureTable(ctx, cfg.Destination); err != nil {
			_ = s.Close()
			return nil, noop, err
		}
		log.Infow("destination table ready", "destination", cfg.Destination)
	}

	if cfg.WebhookURL != "" {
		return &Notify{
			Primary:   s,
			Notifiers: []Inserter{NewWebhookSink(cfg.WebhookURL, cfg.WebhookTimeout)},
		}, s.Close, nil
	}
	return s, s.Close, nil
}
