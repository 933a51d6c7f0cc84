package storage

import (
	"fmt"
	"strings"
)

// Dialect captures the SQL differences between the supported databases.
type Dialect struct {
	Name        string
	Driver      string // database/sql driver name
	quote       byte
	placeholder func(n int) string
	createTable string // %s is the quoted destination
}

var (
	Postgres = Dialect{
		Name:        "postgres",
		Driver:      "pgx",
		quote:       '"',
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		createTable: `CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			"timestamp" TIMESTAMP(6) NOT NULL,
			message TEXT NOT NULL
		)`,
	}

	MySQL = Dialect{
		Name:        "mysql",
		Driver:      "mysql",
		quote:       '`',
		placeholder: func(int) string { return "?" },
		createTable: "CREATE TABLE IF NOT EXISTS %s (\n" +
			"\tid BIGINT AUTO_INCREMENT PRIMARY KEY,\n" +
			"\t`timestamp` DATETIME(6) NOT NULL,\n" +
			"\tmessage TEXT NOT NULL\n)",
	}

	SQLite = Dialect{
		Name:        "sqlite",
		Driver:      "sqlite",
		quote:       '"',
		placeholder: func(int) string { return "?" },
		createTable: `CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			"timestamp" TIMESTAMP NOT NULL,
			message TEXT NOT NULL
		)`,
	}
)

// QuoteIdent quotes a possibly schema-qualified identifier. The name is
// not otherwise checked: a destination the database rejects fails at insert.
func (d Dialect) QuoteIdent(name string) string {
	q := string(d.quote)
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = q + strings.ReplaceAll(p, q, q+q) + q
	}
	return strings.Join(parts, ".")
}

func (d Dialect) insertQuery(destination string) string {
	return fmt.Sprintf("INSERT INTO %s (%s, message) VALUES (%s, %s)",
		d.QuoteIdent(destination), d.QuoteIdent("timestamp"), d.placeholder(1), d.placeholder(2))
}

func (d Dialect) createTableQuery(destination string) string {
	return fmt.Sprintf(d.createTable, d.QuoteIdent(destination))
}
