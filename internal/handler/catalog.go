package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-desk/internal/domain/coupon"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("List products", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "product catalog unavailable")
		return
	}
	writeJSON(w, http.StatusOK, toProductDTOs(products))
}

func (h *Handler) getConnectivity(w http.ResponseWriter, r *http.Request) {
	pending, err := h.orders.Pending(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := connectivityDTO{
		Online:  h.connectivity.Online(),
		Pending: len(pending),
	}
	if err := h.connectivity.LastError(); err != nil && !resp.Online {
		resp.LastError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.coupons.Validate(r.Context(), req.Code)
	switch {
	case err == nil:
	case errors.Is(err, coupon.ErrInvalidOrUsed), errors.Is(err, coupon.ErrEmptyCode):
		writeDomainError(w, r, err)
		return
	default:
		zctx.From(r.Context()).Warn("Validate coupon", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "remote store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, toCouponDTO(*c))
}

func (h *Handler) usedCoupons(w http.ResponseWriter, r *http.Request) {
	used, err := h.coupons.ListUsed(r.Context())
	if err != nil {
		zctx.From(r.Context()).Warn("List used coupons", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "remote store unavailable")
		return
	}

	out := make([]couponDTO, len(used))
	for i, c := range used {
		out[i] = toCouponDTO(c)
	}
	writeJSON(w, http.StatusOK, out)
}
