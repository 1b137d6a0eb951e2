package bom_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/clickconstruction/pipetooling/internal/bom"
)

// fakeStore is a minimal in-package store used by the engine tests.
type fakeStore struct {
	mu        sync.Mutex
	templates map[string][]bom.TemplateItem
	parts     map[string]bom.Part
	quotes    map[string][]bom.PriceQuote
	orders    map[string]bool
	items     []bom.LineItem

	failInsertAt int // 1-based insert call that fails; 0 never fails
	insertCalls  int
	loads        int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		templates: map[string][]bom.TemplateItem{},
		parts:     map[string]bom.Part{},
		quotes:    map[string][]bom.PriceQuote{},
		orders:    map[string]bool{},
	}
}

func (f *fakeStore) part(templateID, partID string, qty float64) {
	f.templates[templateID] = append(f.templates[templateID], bom.TemplateItem{
		ID: fmt.Sprintf("%s/%d", templateID, len(f.templates[templateID])), TemplateID: templateID,
		Kind: bom.ItemPart, PartID: partID, Quantity: qty,
	})
}

func (f *fakeStore) nest(templateID, nestedID string, qty float64) {
	f.templates[templateID] = append(f.templates[templateID], bom.TemplateItem{
		ID: fmt.Sprintf("%s/%d", templateID, len(f.templates[templateID])), TemplateID: templateID,
		Kind: bom.ItemTemplate, NestedTemplateID: nestedID, Quantity: qty,
	})
}

func (f *fakeStore) TemplateItems(_ context.Context, id string) ([]bom.TemplateItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return append([]bom.TemplateItem(nil), f.templates[id]...), nil
}

func (f *fakeStore) PartsByIDs(_ context.Context, ids []string) (map[string]bom.Part, error) {
	out := map[string]bom.Part{}
	for _, id := range ids {
		if p, ok := f.parts[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeStore) QuotesForPart(_ context.Context, partID string) ([]bom.PriceQuote, error) {
	return f.quotes[partID], nil
}

func (f *fakeStore) MaxSequenceOrder(_ context.Context, poID string) (int, error) {
	if !f.orders[poID] {
		return 0, bom.ErrPurchaseOrderNotFound
	}
	max := 0
	for _, it := range f.items {
		if it.PurchaseOrderID == poID && it.SequenceOrder > max {
			max = it.SequenceOrder
		}
	}
	return max, nil
}

var errInsertFailed = errors.New("insert failed")

func (f *fakeStore) InsertLineItem(_ context.Context, item *bom.LineItem) error {
	f.insertCalls++
	if f.failInsertAt > 0 && f.insertCalls == f.failInsertAt {
		return errInsertFailed
	}
	item.ID = fmt.Sprintf("li-%d", len(f.items)+1)
	f.items = append(f.items, *item)
	return nil
}

func (f *fakeStore) itemsFor(poID string) []bom.LineItem {
	var out []bom.LineItem
	for _, it := range f.items {
		if it.PurchaseOrderID == poID {
			out = append(out, it)
		}
	}
	return out
}

// toiletKit seeds Toilet Kit = 1 x Wax Ring + 1 x Supply Line Kit, where
// Supply Line Kit = 2 x Braided Line.
func toiletKit(f *fakeStore) {
	f.parts["wax-ring"] = bom.Part{ID: "wax-ring", Name: "Wax Ring"}
	f.parts["braided-line"] = bom.Part{ID: "braided-line", Name: "Braided Line"}
	f.part("supply-line-kit", "braided-line", 2)
	f.part("toilet-kit", "wax-ring", 1)
	f.nest("toilet-kit", "supply-line-kit", 1)
}
