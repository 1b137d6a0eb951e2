package bom

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Writer appends consolidated lines to a purchase order as priced line items.
type Writer struct {
	items  LineItemStore
	prices *PriceResolver
	log    *zap.Logger
}

// NewWriter returns a Writer persisting through items and pricing through
// catalogue. A nil logger is replaced with a no-op logger.
func NewWriter(items LineItemStore, catalogue PriceCatalogue, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{items: items, prices: NewPriceResolver(catalogue), log: log}
}

// WriteLines appends lines to the purchase order. New items are numbered
// max(existing sequence_order)+1, +2, ... in input order, so existing items
// keep their positions. Every item carries sourceTemplateID.
//
// Writes happen one item at a time. On the first failure WriteLines stops and
// returns the items already inserted together with a *WriteError; it does not
// remove them. Callers wanting all-or-nothing run it inside a transaction.
func (w *Writer) WriteLines(ctx context.Context, purchaseOrderID string, lines Consolidated, sourceTemplateID *string) ([]LineItem, error) {
	if len(lines) == 0 {
		return nil, nil
	}

	maxSeq, err := w.items.MaxSequenceOrder(ctx, purchaseOrderID)
	if err != nil {
		return nil, &WriteError{PurchaseOrderID: purchaseOrderID, Err: fmt.Errorf("read max sequence order: %w", err)}
	}

	inserted := make([]LineItem, 0, len(lines))
	for i, l := range lines {
		price, err := w.prices.Resolve(ctx, l.PartID)
		if err != nil {
			return inserted, &WriteError{PurchaseOrderID: purchaseOrderID, Inserted: len(inserted), Err: err}
		}
		if price.SupplySourceID == nil {
			w.log.Warn("no price quote for part, writing zero price",
				zap.String("purchase_order_id", purchaseOrderID),
				zap.String("part_id", l.PartID))
		}

		item := LineItem{
			PurchaseOrderID:        purchaseOrderID,
			PartID:                 l.PartID,
			Quantity:               l.Quantity,
			SelectedSupplySourceID: price.SupplySourceID,
			PriceAtTime:            price.Amount,
			SequenceOrder:          maxSeq + i + 1,
			SourceTemplateID:       sourceTemplateID,
		}
		if err := w.items.InsertLineItem(ctx, &item); err != nil {
			return inserted, &WriteError{
				PurchaseOrderID: purchaseOrderID,
				Inserted:        len(inserted),
				Err:             fmt.Errorf("insert part %s: %w", l.PartID, err),
			}
		}
		inserted = append(inserted, item)
	}
	return inserted, nil
}
