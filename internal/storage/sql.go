package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fatalwatch/internal/event"
	"fatalwatch/pkg/logger"
)

// PoolConfig tunes the long-lived connection pool shared by all inserts.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLSink stores events in a table, one transaction per event.
type SQLSink struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQL opens a pooled handle. No connection is made until first use.
func OpenSQL(d Dialect, dsn string, pool PoolConfig) (*SQLSink, error) {
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", d.Name, err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	logger.Get().Infow("sql sink initialized", "dialect", d.Name)
	return &SQLSink{db: db, dialect: d}, nil
}

func (s *SQLSink) DB() *sql.DB {
	return s.db
}

func (s *SQLSink) Dialect() Dialect {
	return s.dialect
}

func (s *SQLSink) Close() error {
	return s.db.Close()
}

// Ping checks connectivity.
func (s *SQLSink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureTable creates destination with (timestamp, message) columns if it
// does not exist.
func (s *SQLSink) EnsureTable(ctx context.Context, destination string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.createTableQuery(destination)); err != nil {
		return fmt.Errorf("create table %s: %w", destination, err)
	}
	return nil
}

// Insert writes ev into destination in its own transaction. On any failure
// the transaction is rolled back and a *SinkError is returned.
func (s *SQLSink) Insert(ctx context.Context, ev event.FatalEvent, destination string) error {
	log := logger.Get().With("component", s.dialect.Name+"_sink")

	fail := func(err error) error {
		return &SinkError{Destination: destination, EventID: ev.ID, Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		log.Errorw("begin transaction failed", "event_id", ev.ID, "error", err)
		return fail(err)
	}

	_, err = tx.ExecContext(ctx, s.dialect.insertQuery(destination), ev.Timestamp.UTC(), ev.Message)
	if err != nil {
		_ = tx.Rollback()
		log.Errorw("insert failed",
			"event_id", ev.ID,
			"destination", destination,
			"error", err,
		)
		return fail(fmt.Errorf("insert failed: %w", err))
	}

	if err := tx.Commit(); err != nil {
		log.Errorw("transaction commit failed", "event_id", ev.ID, "error", err)
		return fail(err)
	}

	log.Debugw("event stored",
		"event_id", ev.ID,
		"destination", destination,
	)
	return nil
}
