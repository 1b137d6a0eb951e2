// Package commands implements the control panel's operations.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/clickconstruction/pipetooling/internal/bom"
	"github.com/clickconstruction/pipetooling/internal/export"
	"github.com/clickconstruction/pipetooling/internal/store"
)

// DBURL picks DEV_SUPABASE_URL or PROD_SUPABASE_URL.
func DBURL(isProd bool) (string, error) {
	key := "DEV_SUPABASE_URL"
	if isProd {
		key = "PROD_SUPABASE_URL"
	}
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", fmt.Errorf("%s not set", key)
	}
	return v, nil
}

func RunMigrationsUp(ctx context.Context, isProd bool, log *zap.Logger) error {
	dbURL, err := DBURL(isProd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	s, err := store.New(ctx, dbURL, log)
	if err != nil {
		return err
	}
	defer s.Close()

	log.Info("running DB migrations", zap.Bool("prod", isProd))
	return s.Migrate(ctx)
}

// ResetDBDev drops every table in the dev database and re-applies the schema.
func ResetDBDev(ctx context.Context, log *zap.Logger) error {
	dbURL, err := DBURL(false)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	s, err := store.New(ctx, dbURL, log)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Reset(ctx)
}

// TemplateReader is what the preview needs.
type TemplateReader interface {
	bom.TemplateSource
	bom.PartDirectory
}

// PreviewTemplate prints the consolidated parts for templateID at quantity.
func PreviewTemplate(ctx context.Context, w io.Writer, src TemplateReader, templateID string, quantity float64, maxDepth int) error {
	lines, err := bom.Preview(ctx, bom.NewExpander(src, bom.WithMaxDepth(maxDepth)), src, templateID, quantity)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		fmt.Fprintf(w, "template %s has no parts\n", templateID)
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PART ID\tNAME\tQUANTITY")
	for _, l := range lines {
		fmt.Fprintf(tw, "%s\t%s\t%g\n", l.PartID, l.Name, l.Quantity)
	}
	return tw.Flush()
}

// OrderReader is what printing and exporting a purchase order need.
type OrderReader interface {
	bom.PartDirectory
	GetPurchaseOrder(ctx context.Context, id string) (*bom.PurchaseOrder, error)
	ListLineItems(ctx context.Context, purchaseOrderID string) ([]bom.LineItem, error)
}

// PrintPurchaseOrder writes the order header and its lines in sequence order.
func PrintPurchaseOrder(ctx context.Context, w io.Writer, src OrderReader, id string) error {
	po, items, parts, err := loadOrder(ctx, src, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s (%s) status=%s\n", po.Name, po.ID, po.Status)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tPART\tQTY\tSUPPLY HOUSE\tPRICE")
	var total float64
	for _, it := range items {
		name := it.PartID
		if p, ok := parts[it.PartID]; ok {
			name = p.Name
		}
		supply := "-"
		if it.SelectedSupplySourceID != nil {
			supply = *it.SelectedSupplySourceID
		}
		total += it.Quantity * it.PriceAtTime
		fmt.Fprintf(tw, "%d\t%s\t%g\t%s\t%.2f\n", it.SequenceOrder, name, it.Quantity, supply, it.PriceAtTime)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "total: %.2f\n", total)
	return nil
}

// ExportPurchaseOrder writes the order as xlsx into dir and returns the path.
func ExportPurchaseOrder(ctx context.Context, src OrderReader, id, dir string) (string, error) {
	po, items, parts, err := loadOrder(ctx, src, id)
	if err != nil {
		return "", err
	}
	f, name, err := export.PurchaseOrderXLSX(*po, items, parts)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(dir, name)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return path, nil
}

func loadOrder(ctx context.Context, src OrderReader, id string) (*bom.PurchaseOrder, []bom.LineItem, map[string]bom.Part, error) {
	po, err := src.GetPurchaseOrder(ctx, id)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load purchase order %s: %w", id, err)
	}
	items, err := src.ListLineItems(ctx, id)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list line items: %w", err)
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.PartID)
	}
	parts, err := src.PartsByIDs(ctx, ids)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load parts: %w", err)
	}
	return po, items, parts, nil
}
