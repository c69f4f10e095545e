package database

import (
	"context"
	"database/sql"
)

// DBTX is an interface that both sql.DB and sql.Tx implement.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
)

// Row is one stored cache entry.
type Row struct {
	ID   string
	Data []byte
	// ExpiresAt is a unix timestamp in milliseconds. Zero and negative values
	// never expire.
	ExpiresAt int64
}

// Expired reports whether the row is expired at now (unix milliseconds). It
// agrees with SelectExpired and PurgeExpired.
func (r Row) Expired(now int64) bool {
	return r.ExpiresAt > 0 && r.ExpiresAt < now
}
