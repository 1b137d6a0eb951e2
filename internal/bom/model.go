package bom

import (
	"fmt"
	"time"
)

// ItemKind tags a template item as a part reference or a nested-template reference.
type ItemKind string

const (
	ItemPart     ItemKind = "part"
	ItemTemplate ItemKind = "template"
)

// Template is a named recipe of parts and nested templates. It has no quantity
// of its own; callers instantiate it with a multiplier.
type Template struct {
	ID          string
	Name        string
	Description string
	Items       []TemplateItem
}

// TemplateItem belongs to exactly one template. Exactly one of PartID and
// NestedTemplateID is set, matching Kind.
type TemplateItem struct {
	ID               string
	TemplateID       string
	Kind             ItemKind
	PartID           string
	NestedTemplateID string
	Quantity         float64
	SequenceOrder    int
}

// Validate checks the one-of invariant between Kind, PartID and NestedTemplateID.
func (it TemplateItem) Validate() error {
	switch it.Kind {
	case ItemPart:
		if it.PartID == "" || it.NestedTemplateID != "" {
			return fmt.Errorf("%w: item %q is a part reference but part_id=%q nested_template_id=%q",
				ErrMalformedItem, it.ID, it.PartID, it.NestedTemplateID)
		}
	case ItemTemplate:
		if it.NestedTemplateID == "" || it.PartID != "" {
			return fmt.Errorf("%w: item %q is a template reference but part_id=%q nested_template_id=%q",
				ErrMalformedItem, it.ID, it.PartID, it.NestedTemplateID)
		}
	default:
		return fmt.Errorf("%w: item %q has unknown kind %q", ErrMalformedItem, it.ID, it.Kind)
	}
	return nil
}

// Part is a catalogue part. Immutable from the engine's point of view.
type Part struct {
	ID   string
	Name string
}

// PriceQuote is one supply house's price for a part.
type PriceQuote struct {
	PartID         string
	SupplySourceID string
	Price          float64
}

// Line is one (part, quantity) pair. The Expander produces them and the
// Consolidator merges them; neither is persisted.
type Line struct {
	PartID   string  `json:"part_id"`
	Quantity float64 `json:"quantity"`
}

// PurchaseOrder statuses. Only drafts accept takeoff lines.
const (
	StatusDraft = "draft"
	StatusSent  = "sent"
)

// PurchaseOrder is the target of the Line-Item Writer.
type PurchaseOrder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// LineItem is one priced, quantified part on a purchase order. SequenceOrder
// is assigned at insertion and never renumbered. SourceTemplateID is a
// provenance tag for display only.
type LineItem struct {
	ID                     string    `json:"id"`
	PurchaseOrderID        string    `json:"purchase_order_id"`
	PartID                 string    `json:"part_id"`
	Quantity               float64   `json:"quantity"`
	SelectedSupplySourceID *string   `json:"selected_supply_source_id"`
	PriceAtTime            float64   `json:"price_at_time"`
	SequenceOrder          int       `json:"sequence_order"`
	SourceTemplateID       *string   `json:"source_template_id"`
	CreatedAt              time.Time `json:"created_at"`
}
