package takeoff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clickconstruction/pipetooling/internal/bom"
	"github.com/clickconstruction/pipetooling/internal/metrics"
)

// ErrBidNotFound is returned by stores for unknown bid ids.
var ErrBidNotFound = errors.New("bid not found")

const (
	modeCreate = "create"
	modeAdd    = "add"
)

// Orchestrator runs takeoff actions against a Store.
type Orchestrator struct {
	store    Store
	log      *zap.Logger
	metrics  *metrics.Recorder
	maxDepth int
	atomic   bool
	layout   string
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

func WithMaxDepth(n int) Option {
	return func(o *Orchestrator) { o.maxDepth = n }
}

// WithAtomicWrites controls whether one action runs in a single store
// transaction. When off, a failed insert leaves earlier rows in place.
func WithAtomicWrites(on bool) Option {
	return func(o *Orchestrator) { o.atomic = on }
}

// WithNameLayout sets the time layout used in new purchase-order names.
func WithNameLayout(layout string) Option {
	return func(o *Orchestrator) {
		if layout != "" {
			o.layout = layout
		}
	}
}

// WithClock overrides time.Now for purchase-order naming.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New returns an Orchestrator. Writes are atomic unless disabled.
func New(store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		log:      zap.NewNop(),
		maxDepth: bom.DefaultMaxDepth,
		atomic:   true,
		layout:   DefaultNameLayout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Expander returns an expander over the orchestrator's store with the
// configured depth limit. Used by the materials preview.
func (o *Orchestrator) Expander() *bom.Expander {
	return o.expander(o.store)
}

func (o *Orchestrator) expander(src bom.TemplateSource) *bom.Expander {
	return bom.NewExpander(src, bom.WithMaxDepth(o.maxDepth), bom.WithExpanderLogger(o.log))
}

// CreatePurchaseOrder creates a draft purchase order named after the bid's
// project and the current date, then writes the consolidated lines of every
// mapping that has a template selected.
func (o *Orchestrator) CreatePurchaseOrder(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	maps := selected(req.Mappings)
	res, err := o.create(ctx, req, maps)
	o.finish(modeCreate, start, len(maps), res, err)
	return res, err
}

func (o *Orchestrator) create(ctx context.Context, req Request, maps []Mapping) (*Result, error) {
	if len(maps) == 0 {
		return nil, errNoTemplate
	}

	project := req.ProjectName
	if req.BidID != "" {
		bid, err := o.store.GetBid(ctx, req.BidID)
		if err != nil {
			return nil, fmt.Errorf("load bid %s: %w", req.BidID, err)
		}
		project = bid.ProjectName
	}

	var res *Result
	err := o.run(ctx, func(s Store) error {
		lines, source, err := o.expandAll(ctx, s, maps)
		if err != nil {
			return err
		}
		po := &bom.PurchaseOrder{
			Name:   PurchaseOrderName(project, o.now(), o.layout),
			Status: bom.StatusDraft,
		}
		if err := s.CreatePurchaseOrder(ctx, po); err != nil {
			return fmt.Errorf("create purchase order: %w", err)
		}
		res = &Result{PurchaseOrder: *po, Created: true}
		res.Items, err = bom.NewWriter(s, s, o.log).WriteLines(ctx, po.ID, lines, source)
		return err
	})
	if err != nil && o.atomic {
		return nil, err
	}
	return res, err
}

// AddToPurchaseOrder writes the consolidated lines of every selected mapping
// onto an existing draft purchase order. It is not idempotent: running the
// same request twice appends the lines twice.
func (o *Orchestrator) AddToPurchaseOrder(ctx context.Context, purchaseOrderID string, req Request) (*Result, error) {
	start := time.Now()
	maps := selected(req.Mappings)
	res, err := o.add(ctx, strings.TrimSpace(purchaseOrderID), maps)
	o.finish(modeAdd, start, len(maps), res, err)
	return res, err
}

func (o *Orchestrator) add(ctx context.Context, purchaseOrderID string, maps []Mapping) (*Result, error) {
	if purchaseOrderID == "" {
		return nil, errNoTarget
	}
	if len(maps) == 0 {
		return nil, errNoTemplate
	}

	var res *Result
	err := o.run(ctx, func(s Store) error {
		po, err := s.GetPurchaseOrder(ctx, purchaseOrderID)
		if err != nil {
			return fmt.Errorf("load purchase order %s: %w", purchaseOrderID, err)
		}
		if po.Status != bom.StatusDraft {
			return &ValidationError{Message: fmt.Sprintf(
				"Purchase order %q is %s; materials can only be added to a draft.", po.Name, po.Status)}
		}
		lines, source, err := o.expandAll(ctx, s, maps)
		if err != nil {
			return err
		}
		res = &Result{PurchaseOrder: *po}
		res.Items, err = bom.NewWriter(s, s, o.log).WriteLines(ctx, po.ID, lines, source)
		return err
	})
	if err != nil && o.atomic {
		return nil, err
	}
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, fn func(Store) error) error {
	if o.atomic {
		return o.store.WithinTx(ctx, fn)
	}
	return fn(o.store)
}

// expandAll expands every mapping at its rounded quantity, concatenates the
// results and consolidates once so parts shared across templates merge. The
// source template tag is set only when all mappings use the same template.
func (o *Orchestrator) expandAll(ctx context.Context, src bom.TemplateSource, maps []Mapping) (bom.Consolidated, *string, error) {
	exp := o.expander(src)
	var all []bom.Line
	templates := make(map[string]struct{}, len(maps))
	for _, m := range maps {
		lines, err := exp.Expand(ctx, m.TemplateID, RoundQuantity(m.Quantity))
		if err != nil {
			o.metrics.Expansion(expansionResult(err))
			return nil, nil, fmt.Errorf("expand template %s for fixture %q: %w", m.TemplateID, m.Fixture, err)
		}
		o.metrics.Expansion("ok")
		all = append(all, lines...)
		templates[m.TemplateID] = struct{}{}
	}

	var source *string
	if len(templates) == 1 {
		id := maps[0].TemplateID
		source = &id
	}
	return bom.Consolidate(all), source, nil
}

func expansionResult(err error) string {
	if bom.IsCyclic(err) || errors.Is(err, bom.ErrMaxDepthExceeded) {
		return "cycle"
	}
	return "error"
}

func (o *Orchestrator) finish(mode string, start time.Time, mappings int, res *Result, err error) {
	elapsed := time.Since(start)
	fields := []zap.Field{
		zap.String("mode", mode),
		zap.Int("mappings", mappings),
		zap.Duration("duration", elapsed),
	}
	if res != nil {
		fields = append(fields,
			zap.String("purchase_order_id", res.PurchaseOrder.ID),
			zap.Int("line_items", len(res.Items)))
		o.metrics.LineItems(len(res.Items))
	}

	switch {
	case err == nil:
		o.metrics.Takeoff(mode, "ok", elapsed)
		o.log.Info("takeoff applied", fields...)
	case IsValidation(err):
		o.metrics.Takeoff(mode, "invalid", elapsed)
		o.log.Info("takeoff rejected", append(fields, zap.Error(err))...)
	default:
		o.metrics.Takeoff(mode, "error", elapsed)
		var we *bom.WriteError
		if errors.As(err, &we) {
			fields = append(fields, zap.Int("inserted_before_failure", we.Inserted), zap.Bool("rolled_back", o.atomic))
		}
		o.log.Warn("takeoff failed", append(fields, zap.Error(err))...)
	}
}
