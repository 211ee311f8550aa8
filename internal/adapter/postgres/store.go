package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements database.Store using PostgreSQL. Per-record atomicity
// comes from row locks: the read-then-write sequences (lazy expiry, the
// already-resolved check) run inside transactions with SELECT ... FOR UPDATE
// or as single compare-and-swap statements.
type Store struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewStore creates a Store backed by the given pool. ttl is the session
// lifetime applied at creation.
func NewStore(pool *pgxpool.Pool, ttl time.Duration) *Store {
	return &Store{pool: pool, ttl: ttl}
}

// querier abstracts pgxpool.Pool and pgx.Tx so session helpers can run both
// inside and outside transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
