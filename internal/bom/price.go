package bom

import (
	"context"
	"fmt"
)

// Price is the resolved unit price for a part. SupplySourceID is nil when
// the catalogue has no quote for the part.
type Price struct {
	Amount         float64
	SupplySourceID *string
}

// PriceResolver picks the cheapest quote for a part.
type PriceResolver struct {
	catalogue PriceCatalogue
}

// NewPriceResolver returns a resolver over catalogue.
func NewPriceResolver(catalogue PriceCatalogue) *PriceResolver {
	return &PriceResolver{catalogue: catalogue}
}

// Resolve returns the minimum-price quote for partID. Ties go to the quote
// the catalogue listed first. A part without quotes resolves to a zero price
// and a nil supply source so the purchase order can still be built.
func (r *PriceResolver) Resolve(ctx context.Context, partID string) (Price, error) {
	quotes, err := r.catalogue.QuotesForPart(ctx, partID)
	if err != nil {
		return Price{}, fmt.Errorf("load quotes for part %s: %w", partID, err)
	}
	best := -1
	for i, q := range quotes {
		if best < 0 || q.Price < quotes[best].Price {
			best = i
		}
	}
	if best < 0 {
		return Price{}, nil
	}
	src := quotes[best].SupplySourceID
	return Price{Amount: quotes[best].Price, SupplySourceID: &src}, nil
}
