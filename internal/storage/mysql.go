package storage

import (
	_ "github.com/go-sql-driver/mysql"
)

// NewMySQLSink opens a pooled MySQL sink. The DSN must set parseTime=true.
func NewMySQLSink(dsn string, pool PoolConfig) (*SQLSink, error) {
	return OpenSQL(MySQL, dsn, pool)
}
