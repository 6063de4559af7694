package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// validID reports whether id can be a primary key. Malformed ids can never
// match a row, so callers report them as not found.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
