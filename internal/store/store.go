// Package store is the Postgres (Supabase) backend for the BOM engine.
package store

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/clickconstruction/pipetooling/internal/takeoff"
)

//go:embed schema.sql
var schemaSQL string

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads and writes templates, prices, bids and purchase orders.
type Store struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
	log  *zap.Logger
}

// New connects to dbURL. Call Close when done.
func New(ctx context.Context, dbURL string, log *zap.Logger) (*Store, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("db url missing")
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{pool: pool, q: pool, log: log}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Migrate applies the embedded schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.q.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.log.Info("schema applied")
	return nil
}

// Reset drops every table and re-applies the schema. Development only.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.q.Exec(ctx, `
DROP TABLE IF EXISTS purchase_order_items, purchase_orders, bid_fixture_counts, bids,
  material_template_items, material_templates, material_part_prices, supply_houses, material_parts CASCADE`)
	if err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}
	s.log.Warn("all tables dropped")
	return s.Migrate(ctx)
}

// WithinTx runs fn in one transaction. Calls made on the tx store while
// already inside a transaction reuse it.
func (s *Store) WithinTx(ctx context.Context, fn func(tx takeoff.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&Store{pool: s.pool, q: tx, inTx: true, log: s.log})
	})
}
