// Package takeoff turns a bid's fixture tally into purchase-order lines by
// mapping fixtures to material templates and driving the bom pipeline.
package takeoff

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/clickconstruction/pipetooling/internal/bom"
)

// FixtureRow is one counted fixture on a bid.
type FixtureRow struct {
	Fixture string  `json:"fixture"`
	Count   float64 `json:"count"`
}

// Bid is the part of a bid the takeoff needs.
type Bid struct {
	ID          string       `json:"id"`
	ProjectName string       `json:"project_name"`
	Fixtures    []FixtureRow `json:"fixtures"`
}

// Mapping pairs a fixture with a template and a quantity. Quantity starts at
// the fixture's count but is edited independently afterwards.
type Mapping struct {
	Fixture    string  `json:"fixture"`
	TemplateID string  `json:"template_id"`
	Quantity   float64 `json:"quantity"`
}

// Request is one takeoff action. ProjectName is used for naming a new
// purchase order when BidID is empty.
type Request struct {
	BidID       string    `json:"bid_id"`
	ProjectName string    `json:"project_name,omitempty"`
	Mappings    []Mapping `json:"mappings"`
}

// Result is what a takeoff action wrote.
type Result struct {
	PurchaseOrder bom.PurchaseOrder `json:"purchase_order"`
	Items         []bom.LineItem    `json:"items"`
	Created       bool              `json:"created"`
}

// Store is everything the orchestrator reads and writes.
type Store interface {
	bom.TemplateSource
	bom.PriceCatalogue
	bom.LineItemStore

	GetBid(ctx context.Context, id string) (*Bid, error)
	CreatePurchaseOrder(ctx context.Context, po *bom.PurchaseOrder) error
	// GetPurchaseOrder returns bom.ErrPurchaseOrderNotFound for unknown ids.
	GetPurchaseOrder(ctx context.Context, id string) (*bom.PurchaseOrder, error)
	// WithinTx runs fn against a Store bound to one transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// DefaultMappings seeds one mapping per fixture row with quantity equal to
// the count and no template selected.
func DefaultMappings(rows []FixtureRow) []Mapping {
	out := make([]Mapping, 0, len(rows))
	for _, r := range rows {
		out = append(out, Mapping{Fixture: r.Fixture, Quantity: r.Count})
	}
	return out
}

// RoundQuantity is max(1, round(q)). Non-finite input rounds to 1.
func RoundQuantity(q float64) float64 {
	r := math.Round(q)
	if math.IsNaN(r) || math.IsInf(r, 0) || r < 1 {
		return 1
	}
	return r
}

// DefaultNameLayout is the date layout used in generated purchase-order names.
const DefaultNameLayout = "2006-01-02"

// PurchaseOrderName builds "<project> - Takeoff <date>".
func PurchaseOrderName(project string, now time.Time, layout string) string {
	project = strings.TrimSpace(project)
	if project == "" {
		project = "Untitled project"
	}
	if layout == "" {
		layout = DefaultNameLayout
	}
	return project + " - Takeoff " + now.Format(layout)
}

func selected(mappings []Mapping) []Mapping {
	var out []Mapping
	for _, m := range mappings {
		m.TemplateID = strings.TrimSpace(m.TemplateID)
		if m.TemplateID != "" {
			out = append(out, m)
		}
	}
	return out
}
