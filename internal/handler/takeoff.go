package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clickconstruction/pipetooling/internal/bom"
	mid "github.com/clickconstruction/pipetooling/internal/middleware"
	"github.com/clickconstruction/pipetooling/internal/takeoff"
)

const maxBody = 1 << 20

func decodeRequest(w http.ResponseWriter, r *http.Request) (takeoff.Request, bool) {
	var req takeoff.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return req, false
	}
	return req, true
}

func (h *Handler) createPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	res, err := h.takeoff.CreatePurchaseOrder(r.Context(), req)
	if err != nil {
		h.writeTakeoffError(w, r, res, err)
		return
	}
	h.log.Debug("purchase order created from takeoff",
		zap.String("user_id", mid.UserID(r.Context())),
		zap.String("purchase_order_id", res.PurchaseOrder.ID))
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) addToPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	res, err := h.takeoff.AddToPurchaseOrder(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeTakeoffError(w, r, res, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeTakeoffError reports a write that stopped part way with the purchase
// order and the lines that stayed persisted. res is nil when the action rolled
// back, and the error is reported like any other.
func (h *Handler) writeTakeoffError(w http.ResponseWriter, r *http.Request, res *takeoff.Result, err error) {
	var we *bom.WriteError
	if res == nil || !errors.As(err, &we) {
		h.writeError(w, r, err)
		return
	}
	h.log.Error("partial purchase order write", zap.String("path", r.URL.Path),
		zap.String("user_id", mid.UserID(r.Context())),
		zap.String("purchase_order_id", res.PurchaseOrder.ID), zap.Error(err))
	n := we.Inserted
	writeJSON(w, http.StatusInternalServerError, errorBody{
		Error:           "store error",
		Inserted:        &n,
		PurchaseOrderID: res.PurchaseOrder.ID,
		Items:           res.Items,
	})
}
