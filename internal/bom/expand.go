// Package bom expands material templates into flat part lists, consolidates
// them, prices them from the catalogue and appends them to purchase orders.
package bom

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// DefaultMaxDepth bounds template nesting when no limit is configured.
const DefaultMaxDepth = 32

// Expander flattens templates into part lines.
type Expander struct {
	src      TemplateSource
	maxDepth int
	log      *zap.Logger
}

// ExpanderOption configures an Expander.
type ExpanderOption func(*Expander)

// WithMaxDepth sets the nesting limit. Values below 1 are ignored.
func WithMaxDepth(n int) ExpanderOption {
	return func(e *Expander) {
		if n > 0 {
			e.maxDepth = n
		}
	}
}

// WithExpanderLogger sets the logger used for debug tracing.
func WithExpanderLogger(l *zap.Logger) ExpanderOption {
	return func(e *Expander) {
		if l != nil {
			e.log = l
		}
	}
}

// NewExpander returns an Expander reading templates from src.
func NewExpander(src TemplateSource, opts ...ExpanderOption) *Expander {
	e := &Expander{src: src, maxDepth: DefaultMaxDepth, log: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Expand flattens templateID instantiated multiplier times. Part items emit
// one line with item.Quantity*multiplier; nested-template items recurse with
// item.Quantity*multiplier as the new multiplier. Output order follows the
// depth-first walk and carries no meaning.
//
// A template revisited on the current path yields *CyclicTemplateError. The
// same template reached through separate branches is fine.
func (e *Expander) Expand(ctx context.Context, templateID string, multiplier float64) ([]Line, error) {
	if !validMultiplier(multiplier) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidMultiplier, multiplier)
	}
	var out []Line
	if err := e.expand(ctx, templateID, multiplier, nil, &out); err != nil {
		return nil, err
	}
	e.log.Debug("template expanded",
		zap.String("template_id", templateID),
		zap.Float64("multiplier", multiplier),
		zap.Int("lines", len(out)))
	return out, nil
}

func (e *Expander) expand(ctx context.Context, templateID string, multiplier float64, path []string, out *[]Line) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, seen := range path {
		if seen == templateID {
			cycle := make([]string, 0, len(path)+1)
			cycle = append(cycle, path...)
			return &CyclicTemplateError{Path: append(cycle, templateID)}
		}
	}
	if len(path) >= e.maxDepth {
		return fmt.Errorf("%w (%d) at template %s", ErrMaxDepthExceeded, e.maxDepth, templateID)
	}

	items, err := e.src.TemplateItems(ctx, templateID)
	if err != nil {
		return fmt.Errorf("load template %s: %w", templateID, err)
	}
	path = append(path, templateID)

	for _, it := range items {
		if err := it.Validate(); err != nil {
			return err
		}
		// zero or negative quantities contribute nothing
		if !(it.Quantity > 0) {
			continue
		}
		qty := it.Quantity * multiplier
		switch it.Kind {
		case ItemPart:
			*out = append(*out, Line{PartID: it.PartID, Quantity: qty})
		case ItemTemplate:
			if err := e.expand(ctx, it.NestedTemplateID, qty, path, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func validMultiplier(m float64) bool {
	return m > 0 && !math.IsInf(m, 0) && !math.IsNaN(m)
}

// CheckAcyclic reports whether nesting childID inside parentID would create a
// cycle. It returns *CyclicTemplateError naming the loop when it would.
func CheckAcyclic(ctx context.Context, src TemplateSource, parentID, childID string) error {
	if parentID == childID {
		return &CyclicTemplateError{Path: []string{parentID, childID}}
	}
	visited := make(map[string]bool)
	path, err := reaches(ctx, src, childID, parentID, visited)
	if err != nil {
		return err
	}
	if path != nil {
		return &CyclicTemplateError{Path: append([]string{parentID}, path...)}
	}
	return nil
}

// reaches walks nested references from `from` and returns the path to target,
// or nil when target is unreachable.
func reaches(ctx context.Context, src TemplateSource, from, target string, visited map[string]bool) ([]string, error) {
	if from == target {
		return []string{from}, nil
	}
	if visited[from] {
		return nil, nil
	}
	visited[from] = true

	items, err := src.TemplateItems(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", from, err)
	}
	for _, it := range items {
		if it.Kind != ItemTemplate || it.NestedTemplateID == "" {
			continue
		}
		sub, err := reaches(ctx, src, it.NestedTemplateID, target, visited)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			return append([]string{from}, sub...), nil
		}
	}
	return nil, nil
}
