package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clickconstruction/pipetooling/internal/bom"
	"github.com/clickconstruction/pipetooling/internal/export"
)

func (h *Handler) previewTemplate(w http.ResponseWriter, r *http.Request) {
	qty := 1.0
	if v := r.URL.Query().Get("quantity"); v != "" {
		q, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "quantity must be a number"})
			return
		}
		qty = q
	}
	lines, err := bom.Preview(r.Context(), h.takeoff.Expander(), h.store, chi.URLParam(r, "id"), qty)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lines)
}

type lineItemsResponse struct {
	PurchaseOrder bom.PurchaseOrder `json:"purchase_order"`
	Items         []bom.LineItem    `json:"items"`
}

func (h *Handler) listLineItems(w http.ResponseWriter, r *http.Request) {
	po, items, ok := h.loadPurchaseOrder(w, r)
	if !ok {
		return
	}
	if items == nil {
		items = []bom.LineItem{}
	}
	writeJSON(w, http.StatusOK, lineItemsResponse{PurchaseOrder: *po, Items: items})
}

func (h *Handler) exportPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	po, items, ok := h.loadPurchaseOrder(w, r)
	if !ok {
		return
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.PartID)
	}
	parts, err := h.store.PartsByIDs(r.Context(), ids)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	f, filename, err := export.PurchaseOrderXLSX(*po, items, parts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", contentDisposition(filename))
	if err := f.Write(w); err != nil {
		h.log.Warn("write xlsx", zap.Error(err))
	}
}

func (h *Handler) loadPurchaseOrder(w http.ResponseWriter, r *http.Request) (*bom.PurchaseOrder, []bom.LineItem, bool) {
	id := chi.URLParam(r, "id")
	po, err := h.store.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return nil, nil, false
	}
	items, err := h.store.ListLineItems(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return nil, nil, false
	}
	return po, items, true
}

// contentDisposition names an attachment with an ASCII fallback and the
// RFC 5987 UTF-8 form for clients that understand it.
func contentDisposition(filename string) string {
	var ascii, encoded strings.Builder
	for _, r := range filename {
		switch {
		case r == '"', r == '\\', r < 0x20, r > 0x7e:
			ascii.WriteByte('_')
		default:
			ascii.WriteRune(r)
		}
	}
	for _, b := range []byte(filename) {
		if isAttrChar(b) {
			encoded.WriteByte(b)
		} else {
			fmt.Fprintf(&encoded, "%%%02X", b)
		}
	}
	return fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", ascii.String(), encoded.String())
}

func isAttrChar(b byte) bool {
	switch {
	case 'a' <= b && b <= 'z', 'A' <= b && b <= 'Z', '0' <= b && b <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", b) >= 0
}
