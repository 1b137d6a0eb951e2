package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/clickconstruction/pipetooling/internal/bom"
	mid "github.com/clickconstruction/pipetooling/internal/middleware"
	"github.com/clickconstruction/pipetooling/internal/takeoff"
	authpkg "github.com/clickconstruction/pipetooling/pkg/auth"
)

// Store is what the routes read beyond the orchestrator's own needs.
type Store interface {
	takeoff.Store
	bom.PartDirectory
	ListLineItems(ctx context.Context, purchaseOrderID string) ([]bom.LineItem, error)
}

// Handler groups dependencies for route handlers.
type Handler struct {
	auth    authpkg.Authenticator
	store   Store
	takeoff *takeoff.Orchestrator
	log     *zap.Logger
}

// NewRouter wires the JSON API. gatherer backs /metrics.
func NewRouter(a authpkg.Authenticator, st Store, tk *takeoff.Orchestrator, gatherer prometheus.Gatherer, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{auth: a, store: st, takeoff: tk, log: log}
	r := chi.NewRouter()

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mid.RequireAuth(h.auth))

		r.Get("/templates/{id}/preview", h.previewTemplate)

		r.Post("/takeoff/purchase-orders", h.createPurchaseOrder)
		r.Post("/takeoff/purchase-orders/{id}/items", h.addToPurchaseOrder)

		r.Get("/purchase-orders/{id}/items", h.listLineItems)
		r.Get("/purchase-orders/{id}/export.xlsx", h.exportPurchaseOrder)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error           string         `json:"error"`
	Inserted        *int           `json:"inserted,omitempty"`
	PurchaseOrderID string         `json:"purchase_order_id,omitempty"`
	Items           []bom.LineItem `json:"items,omitempty"`
}

// writeError maps engine errors to statuses. Store failures are logged and
// reported generically.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *takeoff.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: ve.Message})
	case errors.Is(err, bom.ErrPurchaseOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "purchase order not found"})
	case errors.Is(err, takeoff.ErrBidNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "bid not found"})
	case errors.Is(err, bom.ErrTemplateNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "template not found"})
	case bom.IsCyclic(err), errors.Is(err, bom.ErrMaxDepthExceeded), errors.Is(err, bom.ErrMalformedItem):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, bom.ErrInvalidMultiplier):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		h.log.Error("request failed", zap.String("path", r.URL.Path),
			zap.String("user_id", mid.UserID(r.Context())), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "store error"})
	}
}
