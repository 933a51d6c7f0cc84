package storage

import (
	_ "github.com/jackc/pgx/v5/stdlib"
)

// NewPostgresSink opens a pooled PostgreSQL sink through pgx's database/sql
// driver. dsn is a postgres:// URL or a keyword/value string.
func NewPostgresSink(dsn string, pool PoolConfig) (*SQLSink, error) {
	return OpenSQL(Postgres, dsn, pool)
}
