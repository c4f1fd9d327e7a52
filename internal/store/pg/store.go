package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nextlevelbuilder/chatrelay/internal/store"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx, letting every
// repository method run unchanged whether or not it's inside
// WithTx — the same pattern the teacher's PGTeamStore uses, just
// parameterized over the connection instead of always holding *sql.DB.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements store.Store against Postgres.
type Store struct {
	db   *sql.DB
	conn dbtx
}

var _ store.Store = (*Store)(nil)

// New wraps an already-open *sql.DB.
func New(db *sql.DB) *Store {
	return &Store{db: db, conn: db}
}

// WithTx runs fn inside a single Postgres transaction, committing on
// return and rolling back on any error (including a panic, which is
// re-raised after rollback).
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pg: begin tx: %w", err)
	}

	txStore := &Store{db: s.db, conn: sqlTx}

	defer func() {
		if p := recover(); p != nil {
			sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("pg: tx failed (%v) and rollback failed: %w", err, rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("pg: commit tx: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func genID() string {
	return uuid.NewString()
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), the signal the enqueue path treats as "already
// seen" rather than a genuine failure.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// placeholders builds "$from, $from+1, ..." for n positional params,
// used to expand a delivery_ids slice into an IN (...) clause since
// the pgx stdlib driver doesn't bind Go slices to array parameters
// the way lib/pq's pq.Array does.
func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(parts, ", ")
}
