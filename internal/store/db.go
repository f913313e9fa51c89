package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect identifies the SQL backend behind a *sql.DB.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// Open connects to the database named by databaseURL. A postgres:// or
// postgresql:// URL selects the pgx driver; anything else is treated as a
// SQLite file path. Foreign keys are enforced on SQLite so board deletes
// cascade the same way they do on Postgres.
func Open(ctx context.Context, databaseURL string) (*sql.DB, Dialect, error) {
	driver, dsn, dialect := resolveDriver(databaseURL)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, dialect, fmt.Errorf("open db: %w", err)
	}

	if dialect == Postgres {
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(20)
	} else {
		// SQLite serializes writers; a single connection avoids
		// SQLITE_BUSY under concurrent requests.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, dialect, fmt.Errorf("ping db: %w", err)
	}
	return db, dialect, nil
}

func resolveDriver(databaseURL string) (driver, dsn string, dialect Dialect) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return "pgx", databaseURL, Postgres
	}
	dsn = databaseURL
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on"
	} else {
		dsn += "&_foreign_keys=on"
	}
	return "sqlite3", dsn, SQLite
}

// rebind rewrites ? placeholders to $1..$n for Postgres. Queries throughout
// the store are written with ? so the same text runs on both backends.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
