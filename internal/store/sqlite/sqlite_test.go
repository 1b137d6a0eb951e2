package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clickconstruction/pipetooling/internal/bom"
	"github.com/clickconstruction/pipetooling/internal/takeoff"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "pipetooling.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedToiletKit(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreatePart(ctx, &bom.Part{ID: "wax-ring", Name: "Wax Ring"}))
	require.NoError(t, s.CreatePart(ctx, &bom.Part{ID: "braided-line", Name: "Braided Line"}))
	_, err := s.CreateSupplyHouse(ctx, "hajoca", "Hajoca")
	require.NoError(t, err)
	require.NoError(t, s.UpsertPriceQuote(ctx, bom.PriceQuote{PartID: "wax-ring", SupplySourceID: "hajoca", Price: 2.5}))
	require.NoError(t, s.UpsertPriceQuote(ctx, bom.PriceQuote{PartID: "wax-ring", SupplySourceID: "hajoca", Price: 2.0}))
	require.NoError(t, s.CreateTemplate(ctx, &bom.Template{ID: "toilet-kit", Name: "Toilet Kit"}))
	require.NoError(t, s.CreateTemplate(ctx, &bom.Template{ID: "supply-line-kit", Name: "Supply Line Kit"}))
	require.NoError(t, s.AddTemplateItem(ctx, &bom.TemplateItem{TemplateID: "supply-line-kit", Kind: bom.ItemPart, PartID: "braided-line", Quantity: 2}))
	require.NoError(t, s.AddTemplateItem(ctx, &bom.TemplateItem{TemplateID: "toilet-kit", Kind: bom.ItemPart, PartID: "wax-ring", Quantity: 1}))
	require.NoError(t, s.AddTemplateItem(ctx, &bom.TemplateItem{TemplateID: "toilet-kit", Kind: bom.ItemTemplate, NestedTemplateID: "supply-line-kit", Quantity: 1}))
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestTemplateItemsInOrder(t *testing.T) {
	s := openTestStore(t)
	seedToiletKit(t, s)

	items, err := s.TemplateItems(context.Background(), "toilet-kit")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, bom.ItemPart, items[0].Kind)
	assert.Equal(t, 1, items[0].SequenceOrder)
	assert.Equal(t, "supply-line-kit", items[1].NestedTemplateID)
	assert.Equal(t, 2, items[1].SequenceOrder)
}

func TestAddTemplateItem_RejectsCycle(t *testing.T) {
	s := openTestStore(t)
	seedToiletKit(t, s)
	err := s.AddTemplateItem(context.Background(), &bom.TemplateItem{
		TemplateID: "supply-line-kit", Kind: bom.ItemTemplate, NestedTemplateID: "toilet-kit", Quantity: 1,
	})
	assert.True(t, bom.IsCyclic(err), "got %v", err)
}

func TestTakeoff_ToiletKit(t *testing.T) {
	s := openTestStore(t)
	seedToiletKit(t, s)
	ctx := context.Background()
	require.NoError(t, s.CreateBid(ctx, &takeoff.Bid{ID: "bid-1", ProjectName: "Maple St", Fixtures: []takeoff.FixtureRow{{Fixture: "Toilet", Count: 3}}}))

	bid, err := s.GetBid(ctx, "bid-1")
	require.NoError(t, err)
	res, err := takeoff.New(s).CreatePurchaseOrder(ctx, takeoff.Request{
		BidID:    bid.ID,
		Mappings: takeoffMappings(bid, "toilet-kit"),
	})
	require.NoError(t, err)

	items, err := s.ListLineItems(ctx, res.PurchaseOrder.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "wax-ring", items[0].PartID)
	assert.Equal(t, 3.0, items[0].Quantity)
	assert.Equal(t, 2.0, items[0].PriceAtTime)
	require.NotNil(t, items[0].SelectedSupplySourceID)
	assert.Equal(t, "hajoca", *items[0].SelectedSupplySourceID)
	assert.Equal(t, 6.0, items[1].Quantity)
	assert.Nil(t, items[1].SelectedSupplySourceID)
	require.NotNil(t, items[1].SourceTemplateID)
	assert.Equal(t, "toilet-kit", *items[1].SourceTemplateID)
}

func TestWithinTx_Rollback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")
	var id string
	err := s.WithinTx(ctx, func(tx takeoff.Store) error {
		po := &bom.PurchaseOrder{Name: "Doomed"}
		require.NoError(t, tx.CreatePurchaseOrder(ctx, po))
		id = po.ID
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, err = s.GetPurchaseOrder(ctx, id)
	assert.ErrorIs(t, err, bom.ErrPurchaseOrderNotFound)
}

func TestGetBid_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetBid(context.Background(), "missing")
	assert.ErrorIs(t, err, takeoff.ErrBidNotFound)
}

func takeoffMappings(bid *takeoff.Bid, templateID string) []takeoff.Mapping {
	maps := takeoff.DefaultMappings(bid.Fixtures)
	for i := range maps {
		maps[i].TemplateID = templateID
	}
	return maps
}
