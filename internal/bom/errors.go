package bom

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidMultiplier is returned when an expansion multiplier is not a
	// finite number greater than zero.
	ErrInvalidMultiplier = errors.New("multiplier must be a positive number")
	// ErrMaxDepthExceeded is returned when template nesting is deeper than the
	// expander's configured limit.
	ErrMaxDepthExceeded = errors.New("template nesting exceeds max depth")
	// ErrMalformedItem is returned for template items that break the
	// part/nested-template one-of invariant.
	ErrMalformedItem = errors.New("malformed template item")
	// ErrPurchaseOrderNotFound is returned by stores when the target purchase
	// order does not exist.
	ErrPurchaseOrderNotFound = errors.New("purchase order not found")
	// ErrTemplateNotFound is returned by template writes that reference a
	// missing template. Expansion treats a missing template as empty instead.
	ErrTemplateNotFound = errors.New("template not found")
)

// CyclicTemplateError reports a template that nests itself, directly or
// through other templates. Path lists the template ids from the outermost
// template down to the repeated one.
type CyclicTemplateError struct {
	Path []string
}

func (e *CyclicTemplateError) Error() string {
	return "cyclic template reference: " + strings.Join(e.Path, " -> ")
}

// WriteError reports a line-item write that stopped part way. Inserted line
// items stay persisted unless the caller ran the write inside a transaction.
type WriteError struct {
	PurchaseOrderID string
	Inserted        int
	Err             error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write line items to purchase order %s (inserted %d before failure): %v",
		e.PurchaseOrderID, e.Inserted, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsCyclic reports whether err is, or wraps, a *CyclicTemplateError.
func IsCyclic(err error) bool {
	var ce *CyclicTemplateError
	return errors.As(err, &ce)
}
