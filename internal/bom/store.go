package bom

import "context"

// TemplateSource loads a template's items in display order. A template that
// does not exist, or has no items, yields an empty slice and no error.
type TemplateSource interface {
	TemplateItems(ctx context.Context, templateID string) ([]TemplateItem, error)
}

// PartDirectory resolves part ids to parts for display. Unknown ids are
// omitted from the returned map.
type PartDirectory interface {
	PartsByIDs(ctx context.Context, ids []string) (map[string]Part, error)
}

// PriceCatalogue returns every quote for a part, ascending by price.
type PriceCatalogue interface {
	QuotesForPart(ctx context.Context, partID string) ([]PriceQuote, error)
}

// LineItemStore reads and appends purchase-order line items.
type LineItemStore interface {
	// MaxSequenceOrder returns the highest sequence_order on the purchase
	// order, 0 when it has no items, and ErrPurchaseOrderNotFound when the
	// purchase order does not exist.
	MaxSequenceOrder(ctx context.Context, purchaseOrderID string) (int, error)
	// InsertLineItem persists one row. It assigns ID and CreatedAt when empty.
	InsertLineItem(ctx context.Context, item *LineItem) error
}
