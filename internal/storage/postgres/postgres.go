package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"solana-fund-dao/internal/storage"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// PoolOption tunes the pool before it connects.
type PoolOption func(*pgxpool.Config)

// WithMaxConns caps the pool size. Zero keeps the pgx default.
func WithMaxConns(n int32) PoolOption {
	return func(c *pgxpool.Config) {
		if n > 0 {
			c.MaxConns = n
		}
	}
}

// WithApplicationName tags sessions in pg_stat_activity.
func WithApplicationName(name string) PoolOption {
	return func(c *pgxpool.Config) {
		c.ConnConfig.RuntimeParams["application_name"] = name
	}
}

// WithStatementTimeout bounds every statement server side. Ledger writes are
// short, so a stuck statement points at lock contention.
func WithStatementTimeout(d time.Duration) PoolOption {
	return func(c *pgxpool.Config) {
		if d > 0 {
			c.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", d.Milliseconds())
		}
	}
}

// NewPool connects to Postgres and verifies the connection.
func NewPool(ctx context.Context, dsn string, opts ...PoolOption) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	for _, opt := range opts {
		opt(config)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Pool{Pool: pool}, nil
}

// PostgreSQL error codes the ledger maps onto storage errors.
const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrCheckViolation      = "23514"
)

// classify maps constraint violations onto storage sentinels, or returns nil.
// A failed CHECK means a write would break a balance identity of the schema.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}
	switch pgErr.Code {
	case pgErrUniqueViolation:
		return storage.ErrDuplicateKey
	case pgErrForeignKeyViolation:
		return fmt.Errorf("%w: %s", storage.ErrNotFound, pgErr.ConstraintName)
	case pgErrCheckViolation:
		return fmt.Errorf("%w: constraint %s", storage.ErrInvalidInput, pgErr.ConstraintName)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
