// Package sqlite is a single-file backend for estimating offline. It mirrors
// the Postgres store's schema and behaviour.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/clickconstruction/pipetooling/internal/bom"
	"github.com/clickconstruction/pipetooling/internal/takeoff"
)

//go:embed schema.sql
var schemaSQL string

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db   *sql.DB
	q    querier
	inTx bool
	log  *zap.Logger
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path missing")
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// one writer; transactions hold the only connection
	db.SetMaxOpenConns(1)

	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{db: db, q: db, log: log}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Debug("sqlite store opened", zap.String("path", path))
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx takeoff.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Store{db: s.db, q: tx, inTx: true, log: s.log}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) CreatePart(ctx context.Context, p *bom.Part) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, err := s.q.ExecContext(ctx, `INSERT INTO material_parts (id, name) VALUES (?, ?)`, p.ID, p.Name); err != nil {
		return fmt.Errorf("insert part: %w", err)
	}
	return nil
}

func (s *Store) CreateSupplyHouse(ctx context.Context, id, name string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if _, err := s.q.ExecContext(ctx, `INSERT INTO supply_houses (id, name) VALUES (?, ?)`, id, name); err != nil {
		return "", fmt.Errorf("insert supply house: %w", err)
	}
	return id, nil
}

func (s *Store) UpsertPriceQuote(ctx context.Context, q bom.PriceQuote) error {
	_, err := s.q.ExecContext(ctx, `
INSERT INTO material_part_prices (part_id, supply_house_id, price) VALUES (?, ?, ?)
ON CONFLICT (part_id, supply_house_id) DO UPDATE SET price = excluded.price`,
		q.PartID, q.SupplySourceID, q.Price)
	if err != nil {
		return fmt.Errorf("upsert price: %w", err)
	}
	return nil
}

func (s *Store) CreateTemplate(ctx context.Context, t *bom.Template) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := s.q.ExecContext(ctx, `INSERT INTO material_templates (id, name, description) VALUES (?, ?, ?)`,
		t.ID, t.Name, t.Description)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// AddTemplateItem appends an item after checking nested references for cycles.
func (s *Store) AddTemplateItem(ctx context.Context, item *bom.TemplateItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	return s.WithinTx(ctx, func(tx takeoff.Store) error {
		ts := tx.(*Store)
		var next int
		err := ts.q.QueryRowContext(ctx, `
SELECT COALESCE((SELECT MAX(sequence_order) FROM material_template_items WHERE template_id = t.id), 0) + 1
FROM material_templates t WHERE t.id = ?`, item.TemplateID).Scan(&next)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", bom.ErrTemplateNotFound, item.TemplateID)
		}
		if err != nil {
			return fmt.Errorf("query template: %w", err)
		}
		if item.Kind == bom.ItemTemplate {
			if err := bom.CheckAcyclic(ctx, ts, item.TemplateID, item.NestedTemplateID); err != nil {
				return err
			}
		}
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		if item.SequenceOrder == 0 {
			item.SequenceOrder = next
		}
		_, err = ts.q.ExecContext(ctx, `
INSERT INTO material_template_items (id, template_id, item_type, part_id, nested_template_id, quantity, sequence_order)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.TemplateID, string(item.Kind), nullString(item.PartID), nullString(item.NestedTemplateID),
			item.Quantity, item.SequenceOrder)
		if err != nil {
			return fmt.Errorf("insert template item: %w", err)
		}
		return nil
	})
}

func (s *Store) TemplateItems(ctx context.Context, templateID string) ([]bom.TemplateItem, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT id, template_id, item_type, COALESCE(part_id, ''), COALESCE(nested_template_id, ''), quantity, sequence_order
FROM material_template_items
WHERE template_id = ?
ORDER BY sequence_order, id`, templateID)
	if err != nil {
		return nil, fmt.Errorf("query template items: %w", err)
	}
	defer rows.Close()

	var out []bom.TemplateItem
	for rows.Next() {
		var it bom.TemplateItem
		var kind string
		if err := rows.Scan(&it.ID, &it.TemplateID, &kind, &it.PartID, &it.NestedTemplateID, &it.Quantity, &it.SequenceOrder); err != nil {
			return nil, fmt.Errorf("scan template item: %w", err)
		}
		it.Kind = bom.ItemKind(kind)
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) PartsByIDs(ctx context.Context, ids []string) (map[string]bom.Part, error) {
	out := make(map[string]bom.Part, len(ids))
	for _, id := range ids {
		var p bom.Part
		err := s.q.QueryRowContext(ctx, `SELECT id, name FROM material_parts WHERE id = ?`, id).Scan(&p.ID, &p.Name)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("query part: %w", err)
		}
		out[p.ID] = p
	}
	return out, nil
}

func (s *Store) QuotesForPart(ctx context.Context, partID string) ([]bom.PriceQuote, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT part_id, supply_house_id, price FROM material_part_prices WHERE part_id = ? ORDER BY price ASC, supply_house_id`, partID)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	var out []bom.PriceQuote
	for rows.Next() {
		var q bom.PriceQuote
		if err := rows.Scan(&q.PartID, &q.SupplySourceID, &q.Price); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) CreateBid(ctx context.Context, b *takeoff.Bid) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return s.WithinTx(ctx, func(tx takeoff.Store) error {
		ts := tx.(*Store)
		if _, err := ts.q.ExecContext(ctx, `INSERT INTO bids (id, project_name) VALUES (?, ?)`, b.ID, b.ProjectName); err != nil {
			return fmt.Errorf("insert bid: %w", err)
		}
		for i, f := range b.Fixtures {
			if _, err := ts.q.ExecContext(ctx,
				`INSERT INTO bid_fixture_counts (bid_id, fixture, count, sequence_order) VALUES (?, ?, ?, ?)`,
				b.ID, f.Fixture, f.Count, i+1); err != nil {
				return fmt.Errorf("insert fixture count %q: %w", f.Fixture, err)
			}
		}
		return nil
	})
}

func (s *Store) GetBid(ctx context.Context, id string) (*takeoff.Bid, error) {
	b := takeoff.Bid{ID: id}
	err := s.q.QueryRowContext(ctx, `SELECT project_name FROM bids WHERE id = ?`, id).Scan(&b.ProjectName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", takeoff.ErrBidNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query bid: %w", err)
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT fixture, count FROM bid_fixture_counts WHERE bid_id = ? ORDER BY sequence_order, fixture`, id)
	if err != nil {
		return nil, fmt.Errorf("query fixture counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f takeoff.FixtureRow
		if err := rows.Scan(&f.Fixture, &f.Count); err != nil {
			return nil, fmt.Errorf("scan fixture count: %w", err)
		}
		b.Fixtures = append(b.Fixtures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po *bom.PurchaseOrder) error {
	if po.ID == "" {
		po.ID = uuid.NewString()
	}
	if po.Status == "" {
		po.Status = bom.StatusDraft
	}
	po.CreatedAt = time.Now().UTC().Truncate(time.Second)
	_, err := s.q.ExecContext(ctx, `INSERT INTO purchase_orders (id, name, status, created_at) VALUES (?, ?, ?, ?)`,
		po.ID, po.Name, po.Status, po.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert purchase order: %w", err)
	}
	return nil
}

func (s *Store) GetPurchaseOrder(ctx context.Context, id string) (*bom.PurchaseOrder, error) {
	var po bom.PurchaseOrder
	var created int64
	err := s.q.QueryRowContext(ctx, `SELECT id, name, status, created_at FROM purchase_orders WHERE id = ?`, id).
		Scan(&po.ID, &po.Name, &po.Status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bom.ErrPurchaseOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query purchase order: %w", err)
	}
	po.CreatedAt = time.Unix(created, 0).UTC()
	return &po, nil
}

func (s *Store) MaxSequenceOrder(ctx context.Context, purchaseOrderID string) (int, error) {
	var max int
	err := s.q.QueryRowContext(ctx, `
SELECT COALESCE((
  SELECT sequence_order FROM purchase_order_items
  WHERE purchase_order_id = po.id
  ORDER BY sequence_order DESC
  LIMIT 1
), 0)
FROM purchase_orders po
WHERE po.id = ?`, purchaseOrderID).Scan(&max)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, bom.ErrPurchaseOrderNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query max sequence: %w", err)
	}
	return max, nil
}

func (s *Store) InsertLineItem(ctx context.Context, item *bom.LineItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.CreatedAt = time.Now().UTC().Truncate(time.Second)
	_, err := s.q.ExecContext(ctx, `
INSERT INTO purchase_order_items
  (id, purchase_order_id, part_id, quantity, selected_supply_house_id, price_at_time, sequence_order, source_template_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.PurchaseOrderID, item.PartID, item.Quantity, item.SelectedSupplySourceID,
		item.PriceAtTime, item.SequenceOrder, item.SourceTemplateID, item.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert line item: %w", err)
	}
	return nil
}

func (s *Store) ListLineItems(ctx context.Context, purchaseOrderID string) ([]bom.LineItem, error) {
	if _, err := s.MaxSequenceOrder(ctx, purchaseOrderID); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, `
SELECT id, purchase_order_id, part_id, quantity, selected_supply_house_id, price_at_time,
       sequence_order, source_template_id, created_at
FROM purchase_order_items
WHERE purchase_order_id = ?
ORDER BY sequence_order, created_at`, purchaseOrderID)
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}
	defer rows.Close()

	var out []bom.LineItem
	for rows.Next() {
		var it bom.LineItem
		var supply, source sql.NullString
		var created int64
		if err := rows.Scan(&it.ID, &it.PurchaseOrderID, &it.PartID, &it.Quantity, &supply,
			&it.PriceAtTime, &it.SequenceOrder, &source, &created); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		if supply.Valid {
			it.SelectedSupplySourceID = &supply.String
		}
		if source.Valid {
			it.SourceTemplateID = &source.String
		}
		it.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, it)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
