// Package primarystore implements the relational primary store: the
// authoritative record of every quad written to a space, organized as one
// term table and one quad table per space. The index (indexclient) is
// kept in sync with this store but is never treated as a source of truth
// — a space can always be fully rebuilt by replaying this store's quads.
package primarystore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"vitalgraph.io/vgerrors"
)

var log = logrus.WithField("component", "primarystore")

// querier is the subset of pgxpool.Pool and pgx.Tx used by this package,
// so every read/write helper works identically inside or outside an
// open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, batch *pgx.Batch) pgx.BatchResults
}

// Store owns the primary store's connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New opens a pooled connection to the primary store.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, vgerrors.Wrap(vgerrors.PrimaryFailure, "opening primary store pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, vgerrors.Wrap(vgerrors.PrimaryFailure, "pinging primary store", err)
	}
	log.Info("primary store pool established")
	return &Store{pool: pool}, nil
}

// Pool exposes the underlying pool for components (lockmanager) that
// need a dedicated, non-pooled connection alongside the shared pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Exec, Query, QueryRow, and SendBatch let *Store satisfy querier
// directly, so the same StoreQuads/RemoveQuads/introspection helpers run
// either inside a caller-managed transaction (*Tx) or standalone against
// the pool (*Store).
func (s *Store) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return s.pool.Exec(ctx, sql, args...)
}

func (s *Store) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return s.pool.Query(ctx, sql, args...)
}

func (s *Store) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return s.pool.QueryRow(ctx, sql, args...)
}

func (s *Store) SendBatch(ctx context.Context, batch *pgx.Batch) pgx.BatchResults {
	return s.pool.SendBatch(ctx, batch)
}

// Tx wraps an open primary-store transaction.
type Tx struct {
	pgx.Tx
}

// Begin starts a transaction. Callers must Commit or Rollback on every
// exit path; WithTx below does this automatically for the common case.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, vgerrors.Wrap(vgerrors.PrimaryFailure, "beginning primary store transaction", err)
	}
	return &Tx{Tx: tx}, nil
}

// WithTx runs fn inside a transaction, committing on a nil return and
// rolling back otherwise (including on panic), releasing the underlying
// connection on every exit path.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) (err error) {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
				log.WithError(rbErr).Warn("rolling back primary store transaction")
			}
			return
		}
		err = tx.Commit(ctx)
	}()
	err = fn(ctx, tx)
	return err
}

// CreateSpaceSchema creates the term and quad tables for a newly
// registered space. Idempotent: safe to call if the tables already exist.
func (s *Store) CreateSpaceSchema(ctx context.Context, spaceID string) error {
	for _, stmt := range spaceTableDDL(spaceID) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return vgerrors.Wrap(vgerrors.PrimaryFailure, fmt.Sprintf("creating primary store schema for space %s", spaceID), err)
		}
	}
	return nil
}

// DropSpaceSchema drops a space's term and quad tables. Irreversible.
func (s *Store) DropSpaceSchema(ctx context.Context, spaceID string) error {
	for _, stmt := range dropSpaceTableDDL(spaceID) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return vgerrors.Wrap(vgerrors.PrimaryFailure, fmt.Sprintf("dropping primary store schema for space %s", spaceID), err)
		}
	}
	return nil
}
