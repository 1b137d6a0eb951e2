package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clickconstruction/pipetooling/internal/bom"
)

// CreatePurchaseOrder inserts po, filling ID, Status and CreatedAt.
func (s *Store) CreatePurchaseOrder(ctx context.Context, po *bom.PurchaseOrder) error {
	if po.ID == "" {
		po.ID = uuid.NewString()
	}
	if po.Status == "" {
		po.Status = bom.StatusDraft
	}
	err := s.q.QueryRow(ctx, `
INSERT INTO purchase_orders (id, name, status) VALUES ($1, $2, $3)
RETURNING created_at`, po.ID, po.Name, po.Status).Scan(&po.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert purchase order: %w", err)
	}
	return nil
}

// GetPurchaseOrder loads a purchase order. Inside a transaction the row is
// locked until commit, so concurrent takeoffs on one order take turns.
func (s *Store) GetPurchaseOrder(ctx context.Context, id string) (*bom.PurchaseOrder, error) {
	q := `SELECT id, name, status, created_at FROM purchase_orders WHERE id = $1`
	if s.inTx {
		q += ` FOR UPDATE`
	}
	var po bom.PurchaseOrder
	err := s.q.QueryRow(ctx, q, id).Scan(&po.ID, &po.Name, &po.Status, &po.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, bom.ErrPurchaseOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query purchase order: %w", err)
	}
	return &po, nil
}

// MaxSequenceOrder reads the order's highest line sequence, 0 when empty.
func (s *Store) MaxSequenceOrder(ctx context.Context, purchaseOrderID string) (int, error) {
	var max int
	err := s.q.QueryRow(ctx, `
SELECT COALESCE((
  SELECT sequence_order FROM purchase_order_items
  WHERE purchase_order_id = po.id
  ORDER BY sequence_order DESC
  LIMIT 1
), 0)
FROM purchase_orders po
WHERE po.id = $1`, purchaseOrderID).Scan(&max)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, bom.ErrPurchaseOrderNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query max sequence: %w", err)
	}
	return max, nil
}

// InsertLineItem inserts one row, filling ID and CreatedAt.
func (s *Store) InsertLineItem(ctx context.Context, item *bom.LineItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	err := s.q.QueryRow(ctx, `
INSERT INTO purchase_order_items
  (id, purchase_order_id, part_id, quantity, selected_supply_house_id, price_at_time, sequence_order, source_template_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING created_at`,
		item.ID, item.PurchaseOrderID, item.PartID, item.Quantity, item.SelectedSupplySourceID,
		item.PriceAtTime, item.SequenceOrder, item.SourceTemplateID).Scan(&item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert line item: %w", err)
	}
	return nil
}

// ListLineItems returns the order's items by ascending sequence.
func (s *Store) ListLineItems(ctx context.Context, purchaseOrderID string) ([]bom.LineItem, error) {
	if _, err := s.MaxSequenceOrder(ctx, purchaseOrderID); err != nil {
		return nil, err
	}
	rows, err := s.q.Query(ctx, `
SELECT id, purchase_order_id, part_id, quantity::float8, selected_supply_house_id, price_at_time::float8,
       sequence_order, source_template_id, created_at
FROM purchase_order_items
WHERE purchase_order_id = $1
ORDER BY sequence_order, created_at`, purchaseOrderID)
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}
	defer rows.Close()

	var out []bom.LineItem
	for rows.Next() {
		var it bom.LineItem
		if err := rows.Scan(&it.ID, &it.PurchaseOrderID, &it.PartID, &it.Quantity, &it.SelectedSupplySourceID,
			&it.PriceAtTime, &it.SequenceOrder, &it.SourceTemplateID, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
