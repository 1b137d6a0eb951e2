package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clickconstruction/pipetooling/internal/bom"
	"github.com/clickconstruction/pipetooling/internal/takeoff"
)

// CreatePart inserts a part, assigning an id when empty.
func (s *Store) CreatePart(ctx context.Context, p *bom.Part) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, err := s.q.Exec(ctx, `INSERT INTO material_parts (id, name) VALUES ($1, $2)`, p.ID, p.Name); err != nil {
		return fmt.Errorf("insert part: %w", err)
	}
	return nil
}

// CreateSupplyHouse inserts a supply house and returns its id.
func (s *Store) CreateSupplyHouse(ctx context.Context, id, name string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if _, err := s.q.Exec(ctx, `INSERT INTO supply_houses (id, name) VALUES ($1, $2)`, id, name); err != nil {
		return "", fmt.Errorf("insert supply house: %w", err)
	}
	return id, nil
}

// UpsertPriceQuote sets the supply house's price for a part.
func (s *Store) UpsertPriceQuote(ctx context.Context, q bom.PriceQuote) error {
	_, err := s.q.Exec(ctx, `
INSERT INTO material_part_prices (part_id, supply_house_id, price, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (part_id, supply_house_id) DO UPDATE
SET price = EXCLUDED.price,
    updated_at = now()
`, q.PartID, q.SupplySourceID, q.Price)
	if err != nil {
		return fmt.Errorf("upsert price: %w", err)
	}
	return nil
}

// CreateTemplate inserts a template header. Items go through AddTemplateItem.
func (s *Store) CreateTemplate(ctx context.Context, t *bom.Template) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := s.q.Exec(ctx, `INSERT INTO material_templates (id, name, description) VALUES ($1, $2, $3)`,
		t.ID, t.Name, t.Description)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// templateGraphLock is the advisory lock key held by every transaction that
// adds a nested template reference.
const templateGraphLock int64 = 0x70697065 // "pipe"

// AddTemplateItem appends an item to a template. Nested references are
// checked for cycles inside the same transaction as the insert, under an
// advisory lock so two writers cannot each add one half of a cycle.
func (s *Store) AddTemplateItem(ctx context.Context, item *bom.TemplateItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	return s.WithinTx(ctx, func(tx takeoff.Store) error {
		ts := tx.(*Store)

		if item.Kind == bom.ItemTemplate {
			if _, err := ts.q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, templateGraphLock); err != nil {
				return fmt.Errorf("lock template graph: %w", err)
			}
		}

		var next int
		err := ts.q.QueryRow(ctx, `
SELECT COALESCE((SELECT MAX(sequence_order) FROM material_template_items WHERE template_id = t.id), 0) + 1
FROM material_templates t WHERE t.id = $1 FOR UPDATE`, item.TemplateID).Scan(&next)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", bom.ErrTemplateNotFound, item.TemplateID)
		}
		if err != nil {
			return fmt.Errorf("lock template: %w", err)
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
		_, err = ts.q.Exec(ctx, `
INSERT INTO material_template_items (id, template_id, item_type, part_id, nested_template_id, quantity, sequence_order)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			item.ID, item.TemplateID, string(item.Kind), nullable(item.PartID), nullable(item.NestedTemplateID),
			item.Quantity, item.SequenceOrder)
		if err != nil {
			return fmt.Errorf("insert template item: %w", err)
		}
		return nil
	})
}

// TemplateItems loads a template's items by sequence order. Unknown
// templates yield no items.
func (s *Store) TemplateItems(ctx context.Context, templateID string) ([]bom.TemplateItem, error) {
	rows, err := s.q.Query(ctx, `
SELECT id, template_id, item_type, COALESCE(part_id, ''), COALESCE(nested_template_id, ''), quantity::float8, sequence_order
FROM material_template_items
WHERE template_id = $1
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

// PartsByIDs batch-loads parts for display.
func (s *Store) PartsByIDs(ctx context.Context, ids []string) (map[string]bom.Part, error) {
	out := make(map[string]bom.Part, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.q.Query(ctx, `SELECT id, name FROM material_parts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query parts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p bom.Part
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("scan part: %w", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// QuotesForPart returns the part's quotes, cheapest first.
func (s *Store) QuotesForPart(ctx context.Context, partID string) ([]bom.PriceQuote, error) {
	rows, err := s.q.Query(ctx, `
SELECT part_id, supply_house_id, price::float8
FROM material_part_prices
WHERE part_id = $1
ORDER BY price ASC, supply_house_id`, partID)
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

// CreateBid inserts a bid and its fixture counts.
func (s *Store) CreateBid(ctx context.Context, b *takeoff.Bid) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return s.WithinTx(ctx, func(tx takeoff.Store) error {
		ts := tx.(*Store)
		if _, err := ts.q.Exec(ctx, `INSERT INTO bids (id, project_name) VALUES ($1, $2)`, b.ID, b.ProjectName); err != nil {
			return fmt.Errorf("insert bid: %w", err)
		}
		for i, f := range b.Fixtures {
			_, err := ts.q.Exec(ctx, `
INSERT INTO bid_fixture_counts (bid_id, fixture, count, sequence_order) VALUES ($1, $2, $3, $4)`,
				b.ID, f.Fixture, f.Count, i+1)
			if err != nil {
				return fmt.Errorf("insert fixture count %q: %w", f.Fixture, err)
			}
		}
		return nil
	})
}

// GetBid loads a bid with its fixture counts in entry order.
func (s *Store) GetBid(ctx context.Context, id string) (*takeoff.Bid, error) {
	b := takeoff.Bid{ID: id}
	err := s.q.QueryRow(ctx, `SELECT project_name FROM bids WHERE id = $1`, id).Scan(&b.ProjectName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", takeoff.ErrBidNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query bid: %w", err)
	}

	rows, err := s.q.Query(ctx, `
SELECT fixture, count::float8 FROM bid_fixture_counts WHERE bid_id = $1 ORDER BY sequence_order, fixture`, id)
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

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
