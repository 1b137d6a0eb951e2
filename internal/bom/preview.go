package bom

import (
	"context"
	"fmt"
)

// PreviewLine is a consolidated line with the part's display name.
type PreviewLine struct {
	PartID   string  `json:"part_id"`
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
}

// Preview expands and consolidates templateID at quantity without writing
// anything. Parts missing from the directory are shown by id.
func Preview(ctx context.Context, exp *Expander, parts PartDirectory, templateID string, quantity float64) ([]PreviewLine, error) {
	lines, err := exp.Expand(ctx, templateID, quantity)
	if err != nil {
		return nil, err
	}
	merged := Consolidate(lines)
	if len(merged) == 0 {
		return []PreviewLine{}, nil
	}

	byID, err := parts.PartsByIDs(ctx, merged.PartIDs())
	if err != nil {
		return nil, fmt.Errorf("load parts: %w", err)
	}
	out := make([]PreviewLine, 0, len(merged))
	for _, l := range merged {
		name := l.PartID
		if p, ok := byID[l.PartID]; ok && p.Name != "" {
			name = p.Name
		}
		out = append(out, PreviewLine{PartID: l.PartID, Name: name, Quantity: l.Quantity})
	}
	return out, nil
}
