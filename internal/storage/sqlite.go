package storage

import (
	_ "modernc.org/sqlite"
)

// NewSQLiteSink opens a file-backed SQLite sink. SQLite serialises writers,
// so the pool is capped at one open connection.
func NewSQLiteSink(path string) (*SQLSink, error) {
	return OpenSQL(SQLite, path, PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1})
}
