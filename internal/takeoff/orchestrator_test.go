package takeoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/clickconstruction/pipetooling/internal/bom"
	"github.com/clickconstruction/pipetooling/internal/metrics"
	"github.com/clickconstruction/pipetooling/internal/store/memory"
	"github.com/clickconstruction/pipetooling/internal/takeoff"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func seed(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	for _, p := range []bom.Part{
		{ID: "wax-ring", Name: "Wax Ring"},
		{ID: "braided-line", Name: "Braided Line"},
		{ID: "p-trap", Name: "1-1/2in P-Trap"},
	} {
		s.PutPart(p)
	}
	s.PutTemplate(bom.Template{ID: "toilet-kit", Name: "Toilet Kit"})
	s.PutTemplate(bom.Template{ID: "supply-line-kit", Name: "Supply Line Kit"})
	s.PutTemplate(bom.Template{ID: "lav-kit", Name: "Lavatory Kit"})
	add := func(it bom.TemplateItem) {
		require.NoError(t, s.AddTemplateItem(ctx, &it))
	}
	add(bom.TemplateItem{TemplateID: "supply-line-kit", Kind: bom.ItemPart, PartID: "braided-line", Quantity: 2})
	add(bom.TemplateItem{TemplateID: "toilet-kit", Kind: bom.ItemPart, PartID: "wax-ring", Quantity: 1})
	add(bom.TemplateItem{TemplateID: "toilet-kit", Kind: bom.ItemTemplate, NestedTemplateID: "supply-line-kit", Quantity: 1})
	add(bom.TemplateItem{TemplateID: "lav-kit", Kind: bom.ItemPart, PartID: "p-trap", Quantity: 1})
	add(bom.TemplateItem{TemplateID: "lav-kit", Kind: bom.ItemTemplate, NestedTemplateID: "supply-line-kit", Quantity: 1})

	s.PutQuote(bom.PriceQuote{PartID: "wax-ring", SupplySourceID: "hajoca", Price: 2.00})
	s.PutQuote(bom.PriceQuote{PartID: "wax-ring", SupplySourceID: "ferguson", Price: 2.40})
	s.PutBid(takeoff.Bid{ID: "bid-1", ProjectName: "Maple St Remodel", Fixtures: []takeoff.FixtureRow{
		{Fixture: "Toilet", Count: 3},
		{Fixture: "Lavatory", Count: 2},
	}})
	return s
}

func TestRoundQuantity(t *testing.T) {
	t.Parallel()
	cases := map[float64]float64{0: 1, 0.4: 1, 0.5: 1, 1.5: 2, 2.49: 2, 7: 7, -3: 1}
	for in, want := range cases {
		assert.Equal(t, want, takeoff.RoundQuantity(in), "RoundQuantity(%v)", in)
	}
}

func TestDefaultMappings(t *testing.T) {
	t.Parallel()
	got := takeoff.DefaultMappings([]takeoff.FixtureRow{{Fixture: "Toilet", Count: 3}, {Fixture: "Tub", Count: 1}})
	assert.Equal(t, []takeoff.Mapping{{Fixture: "Toilet", Quantity: 3}, {Fixture: "Tub", Quantity: 1}}, got)
}

func TestPurchaseOrderName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Maple St Remodel - Takeoff 2026-03-14", takeoff.PurchaseOrderName(" Maple St Remodel ", fixedNow, ""))
	assert.Equal(t, "Untitled project - Takeoff 03/14/2026", takeoff.PurchaseOrderName("", fixedNow, "01/02/2006"))
}

func TestCreatePurchaseOrder_ConsolidatesAcrossTemplates(t *testing.T) {
	t.Parallel()
	s := seed(t)
	o := takeoff.New(s, takeoff.WithClock(func() time.Time { return fixedNow }))

	res, err := o.CreatePurchaseOrder(context.Background(), takeoff.Request{
		BidID: "bid-1",
		Mappings: []takeoff.Mapping{
			{Fixture: "Toilet", TemplateID: "toilet-kit", Quantity: 2.6},
			{Fixture: "Lavatory", TemplateID: "lav-kit", Quantity: 2},
			{Fixture: "Tub", Quantity: 1},
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "Maple St Remodel - Takeoff 2026-03-14", res.PurchaseOrder.Name)
	assert.Equal(t, bom.StatusDraft, res.PurchaseOrder.Status)

	// toilet 3 => wax 3, braided 6; lav 2 => p-trap 2, braided 4
	require.Len(t, res.Items, 3)
	got := map[string]float64{}
	for i, it := range res.Items {
		assert.Equal(t, i+1, it.SequenceOrder)
		assert.Nil(t, it.SourceTemplateID, "mixed templates carry no source tag")
		got[it.PartID] = it.Quantity
	}
	assert.Equal(t, map[string]float64{"wax-ring": 3, "braided-line": 10, "p-trap": 2}, got)

	assert.Equal(t, "wax-ring", res.Items[0].PartID)
	assert.Equal(t, 2.00, res.Items[0].PriceAtTime)
	require.NotNil(t, res.Items[0].SelectedSupplySourceID)
	assert.Equal(t, "hajoca", *res.Items[0].SelectedSupplySourceID)

	stored, err := s.ListLineItems(context.Background(), res.PurchaseOrder.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestCreatePurchaseOrder_SingleTemplateTagsSource(t *testing.T) {
	t.Parallel()
	s := seed(t)
	res, err := takeoff.New(s).CreatePurchaseOrder(context.Background(), takeoff.Request{
		ProjectName: "Walk-in",
		Mappings: []takeoff.Mapping{
			{Fixture: "Toilet", TemplateID: "toilet-kit", Quantity: 1},
			{Fixture: "Toilet (upstairs)", TemplateID: "toilet-kit", Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	for _, it := range res.Items {
		require.NotNil(t, it.SourceTemplateID)
		assert.Equal(t, "toilet-kit", *it.SourceTemplateID)
	}
	assert.Equal(t, 2.0, res.Items[0].Quantity)
}

func TestCreatePurchaseOrder_RequiresTemplate(t *testing.T) {
	t.Parallel()
	s := seed(t)
	_, err := takeoff.New(s).CreatePurchaseOrder(context.Background(), takeoff.Request{
		BidID:    "bid-1",
		Mappings: []takeoff.Mapping{{Fixture: "Toilet", TemplateID: "  ", Quantity: 3}},
	})
	var ve *takeoff.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.NotEmpty(t, ve.Message)
	assert.Zero(t, s.PurchaseOrderCount())
}

func TestCreatePurchaseOrder_UnknownBid(t *testing.T) {
	t.Parallel()
	s := seed(t)
	_, err := takeoff.New(s).CreatePurchaseOrder(context.Background(), takeoff.Request{
		BidID:    "nope",
		Mappings: []takeoff.Mapping{{Fixture: "Toilet", TemplateID: "toilet-kit", Quantity: 1}},
	})
	assert.ErrorIs(t, err, takeoff.ErrBidNotFound)
	assert.Zero(t, s.PurchaseOrderCount())
}

func TestCreatePurchaseOrder_DepthLimitCreatesNothing(t *testing.T) {
	t.Parallel()
	s := seed(t)
	o := takeoff.New(s, takeoff.WithMaxDepth(2))
	s.PutTemplate(bom.Template{ID: "deep1"})
	s.PutTemplate(bom.Template{ID: "deep2"})
	s.PutTemplate(bom.Template{ID: "deep3"})
	ctx := context.Background()
	require.NoError(t, s.AddTemplateItem(ctx, &bom.TemplateItem{TemplateID: "deep1", Kind: bom.ItemTemplate, NestedTemplateID: "deep2", Quantity: 1}))
	require.NoError(t, s.AddTemplateItem(ctx, &bom.TemplateItem{TemplateID: "deep2", Kind: bom.ItemTemplate, NestedTemplateID: "deep3", Quantity: 1}))

	_, err := o.CreatePurchaseOrder(ctx, takeoff.Request{
		ProjectName: "Deep",
		Mappings:    []takeoff.Mapping{{Fixture: "X", TemplateID: "deep1", Quantity: 1}},
	})
	assert.ErrorIs(t, err, bom.ErrMaxDepthExceeded)
	assert.Zero(t, s.PurchaseOrderCount())
}

func TestAddToPurchaseOrder_AppendsAfterExisting(t *testing.T) {
	t.Parallel()
	s := seed(t)
	ctx := context.Background()
	o := takeoff.New(s)

	first, err := o.CreatePurchaseOrder(ctx, takeoff.Request{
		BidID:    "bid-1",
		Mappings: []takeoff.Mapping{{Fixture: "Lavatory", TemplateID: "lav-kit", Quantity: 2}},
	})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)

	res, err := o.AddToPurchaseOrder(ctx, first.PurchaseOrder.ID, takeoff.Request{
		Mappings: []takeoff.Mapping{{Fixture: "Toilet", TemplateID: "toilet-kit", Quantity: 3}},
	})
	require.NoError(t, err)
	assert.False(t, res.Created)
	require.Len(t, res.Items, 2)
	assert.Equal(t, 3, res.Items[0].SequenceOrder)
	assert.Equal(t, 4, res.Items[1].SequenceOrder)

	// not idempotent: the same request appends again
	again, err := o.AddToPurchaseOrder(ctx, first.PurchaseOrder.ID, takeoff.Request{
		Mappings: []takeoff.Mapping{{Fixture: "Toilet", TemplateID: "toilet-kit", Quantity: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, again.Items[0].SequenceOrder)

	all, err := s.ListLineItems(ctx, first.PurchaseOrder.ID)
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestAddToPurchaseOrder_Validation(t *testing.T) {
	t.Parallel()
	s := seed(t)
	ctx := context.Background()
	o := takeoff.New(s)
	maps := []takeoff.Mapping{{Fixture: "Toilet", TemplateID: "toilet-kit", Quantity: 1}}

	_, err := o.AddToPurchaseOrder(ctx, "", takeoff.Request{Mappings: maps})
	assert.True(t, takeoff.IsValidation(err))

	_, err = o.AddToPurchaseOrder(ctx, "missing", takeoff.Request{Mappings: maps})
	assert.ErrorIs(t, err, bom.ErrPurchaseOrderNotFound)

	po := &bom.PurchaseOrder{Name: "Sent PO", Status: bom.StatusSent}
	require.NoError(t, s.CreatePurchaseOrder(ctx, po))
	_, err = o.AddToPurchaseOrder(ctx, po.ID, takeoff.Request{Mappings: maps})
	assert.True(t, takeoff.IsValidation(err))
	items, err := s.ListLineItems(ctx, po.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

var errDisk = errors.New("disk full")

func failSecondInsert(n int, _ bom.LineItem) error {
	if n == 2 {
		return errDisk
	}
	return nil
}

func TestCreatePurchaseOrder_AtomicRollsBack(t *testing.T) {
	t.Parallel()
	s := seed(t)
	s.FailInsert = failSecondInsert

	res, err := takeoff.New(s, takeoff.WithAtomicWrites(true)).CreatePurchaseOrder(context.Background(), takeoff.Request{
		BidID:    "bid-1",
		Mappings: []takeoff.Mapping{{Fixture: "Toilet", TemplateID: "toilet-kit", Quantity: 1}},
	})
	assert.ErrorIs(t, err, errDisk)
	assert.Nil(t, res)
	assert.Zero(t, s.PurchaseOrderCount())
}

func TestAddToPurchaseOrder_NonAtomicKeepsPartialWrite(t *testing.T) {
	t.Parallel()
	s := seed(t)
	ctx := context.Background()
	po := &bom.PurchaseOrder{Name: "Draft"}
	require.NoError(t, s.CreatePurchaseOrder(ctx, po))
	s.FailInsert = failSecondInsert

	res, err := takeoff.New(s, takeoff.WithAtomicWrites(false)).AddToPurchaseOrder(ctx, po.ID, takeoff.Request{
		Mappings: []takeoff.Mapping{{Fixture: "Lavatory", TemplateID: "lav-kit", Quantity: 1}},
	})
	var we *bom.WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, 1, we.Inserted)
	require.NotNil(t, res)
	assert.Len(t, res.Items, 1)

	items, err := s.ListLineItems(ctx, po.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestOrchestrator_LogsAndMetrics(t *testing.T) {
	t.Parallel()
	s := seed(t)
	core, logs := observer.New(zap.InfoLevel)
	reg := prometheus.NewRegistry()
	o := takeoff.New(s, takeoff.WithLogger(zap.New(core)), takeoff.WithMetrics(metrics.NewRecorder(reg)))

	_, err := o.CreatePurchaseOrder(context.Background(), takeoff.Request{
		BidID:    "bid-1",
		Mappings: []takeoff.Mapping{{Fixture: "Toilet", TemplateID: "toilet-kit", Quantity: 1}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessage("takeoff applied").Len())
	// braided-line has no quote
	assert.Equal(t, 1, logs.FilterMessage("no price quote for part, writing zero price").Len())

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["pipetooling_takeoff_actions_total"])
	assert.True(t, names["pipetooling_po_line_items_written_total"])
}
