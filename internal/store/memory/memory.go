// Package memory is an in-process store for tests and offline previews.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clickconstruction/pipetooling/internal/bom"
	"github.com/clickconstruction/pipetooling/internal/takeoff"
)

// Store keeps everything in maps. Writes are serialized on writeMu, which
// WithinTx holds for the whole transaction, so a rollback to the snapshot
// never discards another caller's write. Reads are not isolated: they see a
// running transaction's uncommitted state.
type Store struct {
	mu      sync.RWMutex
	writeMu sync.Mutex
	st      state

	inserts int
	// FailInsert, when set, runs before each line-item insert with the
	// 1-based insert count. A non-nil return fails that insert.
	FailInsert func(n int, item bom.LineItem) error
}

type state struct {
	parts     map[string]bom.Part
	templates map[string]bom.Template
	quotes    map[string][]bom.PriceQuote
	bids      map[string]takeoff.Bid
	orders    map[string]bom.PurchaseOrder
	items     []bom.LineItem
}

func New() *Store {
	return &Store{st: state{
		parts:     map[string]bom.Part{},
		templates: map[string]bom.Template{},
		quotes:    map[string][]bom.PriceQuote{},
		bids:      map[string]takeoff.Bid{},
		orders:    map[string]bom.PurchaseOrder{},
	}}
}

func (s state) clone() state {
	c := state{
		parts:     make(map[string]bom.Part, len(s.parts)),
		templates: make(map[string]bom.Template, len(s.templates)),
		quotes:    make(map[string][]bom.PriceQuote, len(s.quotes)),
		bids:      make(map[string]takeoff.Bid, len(s.bids)),
		orders:    make(map[string]bom.PurchaseOrder, len(s.orders)),
		items:     append([]bom.LineItem(nil), s.items...),
	}
	for k, v := range s.parts {
		c.parts[k] = v
	}
	for k, v := range s.templates {
		v.Items = append([]bom.TemplateItem(nil), v.Items...)
		c.templates[k] = v
	}
	for k, v := range s.quotes {
		c.quotes[k] = append([]bom.PriceQuote(nil), v...)
	}
	for k, v := range s.bids {
		c.bids[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	return c
}

// PutPart creates or replaces a part.
func (s *Store) PutPart(p bom.Part) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.parts[p.ID] = p
}

// PutTemplate creates or replaces a template header. Items are added with
// AddTemplateItem.
func (s *Store) PutTemplate(t bom.Template) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Items = s.st.templates[t.ID].Items
	s.st.templates[t.ID] = t
}

// AddTemplateItem appends an item, rejecting malformed items and nested
// references that would close a cycle. The cycle check and the append run
// under one write lock.
func (s *Store) AddTemplateItem(ctx context.Context, item *bom.TemplateItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	_, ok := s.st.templates[item.TemplateID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", bom.ErrTemplateNotFound, item.TemplateID)
	}
	if item.Kind == bom.ItemTemplate {
		if err := bom.CheckAcyclic(ctx, s, item.TemplateID, item.NestedTemplateID); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.st.templates[item.TemplateID]
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.SequenceOrder == 0 {
		item.SequenceOrder = len(t.Items) + 1
	}
	t.Items = append(t.Items, *item)
	s.st.templates[item.TemplateID] = t
	return nil
}

// PutQuote records a supply house price for a part, replacing any earlier
// quote from the same supply house.
func (s *Store) PutQuote(q bom.PriceQuote) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	qs := s.st.quotes[q.PartID]
	for i := range qs {
		if qs[i].SupplySourceID == q.SupplySourceID {
			qs[i] = q
			return
		}
	}
	s.st.quotes[q.PartID] = append(qs, q)
}

func (s *Store) PutBid(b takeoff.Bid) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.bids[b.ID] = b
}

func (s *Store) TemplateItems(_ context.Context, templateID string) ([]bom.TemplateItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := append([]bom.TemplateItem(nil), s.st.templates[templateID].Items...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].SequenceOrder < items[j].SequenceOrder })
	return items, nil
}

func (s *Store) PartsByIDs(_ context.Context, ids []string) (map[string]bom.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bom.Part, len(ids))
	for _, id := range ids {
		if p, ok := s.st.parts[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *Store) QuotesForPart(_ context.Context, partID string) ([]bom.PriceQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	qs := append([]bom.PriceQuote(nil), s.st.quotes[partID]...)
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Price < qs[j].Price })
	return qs, nil
}

func (s *Store) GetBid(_ context.Context, id string) (*takeoff.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.st.bids[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", takeoff.ErrBidNotFound, id)
	}
	b.Fixtures = append([]takeoff.FixtureRow(nil), b.Fixtures...)
	return &b, nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po *bom.PurchaseOrder) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.createPurchaseOrder(po)
	return nil
}

func (s *Store) createPurchaseOrder(po *bom.PurchaseOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if po.ID == "" {
		po.ID = uuid.NewString()
	}
	if po.Status == "" {
		po.Status = bom.StatusDraft
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now().UTC()
	}
	s.st.orders[po.ID] = *po
}

func (s *Store) GetPurchaseOrder(_ context.Context, id string) (*bom.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	po, ok := s.st.orders[id]
	if !ok {
		return nil, bom.ErrPurchaseOrderNotFound
	}
	return &po, nil
}

func (s *Store) MaxSequenceOrder(_ context.Context, purchaseOrderID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.st.orders[purchaseOrderID]; !ok {
		return 0, bom.ErrPurchaseOrderNotFound
	}
	max := 0
	for _, it := range s.st.items {
		if it.PurchaseOrderID == purchaseOrderID && it.SequenceOrder > max {
			max = it.SequenceOrder
		}
	}
	return max, nil
}

func (s *Store) InsertLineItem(_ context.Context, item *bom.LineItem) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.insertLineItem(item)
}

func (s *Store) insertLineItem(item *bom.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.FailInsert != nil {
		if err := s.FailInsert(s.inserts, *item); err != nil {
			return err
		}
	}
	if _, ok := s.st.orders[item.PurchaseOrderID]; !ok {
		return bom.ErrPurchaseOrderNotFound
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	s.st.items = append(s.st.items, *item)
	return nil
}

// ListLineItems returns the purchase order's items by ascending sequence.
func (s *Store) ListLineItems(_ context.Context, purchaseOrderID string) ([]bom.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.st.orders[purchaseOrderID]; !ok {
		return nil, bom.ErrPurchaseOrderNotFound
	}
	var out []bom.LineItem
	for _, it := range s.st.items {
		if it.PurchaseOrderID == purchaseOrderID {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SequenceOrder < out[j].SequenceOrder })
	return out, nil
}

// PurchaseOrderCount is used by tests asserting nothing was created.
func (s *Store) PurchaseOrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.st.orders)
}

func (s *Store) WithinTx(_ context.Context, fn func(tx takeoff.Store) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	snapshot := s.st.clone()
	s.mu.RUnlock()

	if err := fn(&txStore{s}); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// txStore is the Store handed to a WithinTx callback. Its writes skip
// writeMu, which the transaction already holds.
type txStore struct {
	*Store
}

func (t *txStore) CreatePurchaseOrder(_ context.Context, po *bom.PurchaseOrder) error {
	t.createPurchaseOrder(po)
	return nil
}

func (t *txStore) InsertLineItem(_ context.Context, item *bom.LineItem) error {
	return t.insertLineItem(item)
}

// WithinTx joins the running transaction.
func (t *txStore) WithinTx(_ context.Context, fn func(tx takeoff.Store) error) error {
	return fn(t)
}
