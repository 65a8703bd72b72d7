package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/order-desk/internal/domain/order"
)

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	agent, _ := AgentFromContext(r.Context())

	var req orderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.orders.Submit(r.Context(), agent, req.draft())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, placeOrderResponse{
		Order:  toOrderDTO(*o),
		Queued: order.IsPlaceholder(o.ID),
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") != "" {
		if err := h.orders.RefreshOrders(r.Context()); err != nil {
			zctx.From(r.Context()).Warn("Refresh orders", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "remote store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, toOrderDTOs(h.orders.Orders()))
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.orders.Pending(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTOs(pending))
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.orders.Reconcile(r.Context())

	var partial *order.PartialSyncError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toSyncResponse(res))
	case errors.As(err, &partial):
		writeJSON(w, http.StatusMultiStatus, toSyncResponse(res))
	default:
		writeDomainError(w, r, err)
	}
}

func (h *Handler) ordersBetween(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseBound(q.Get("from"), false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseBound(q.Get("to"), true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		writeError(w, http.StatusBadRequest, "from must not be after to")
		return
	}

	orders, err := h.orders.OrdersBetween(r.Context(), from, to)
	if err != nil {
		zctx.From(r.Context()).Warn("Orders report", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "remote store unavailable")
		return
	}

	revenue, discount := decimal.Zero, decimal.Zero
	for _, o := range orders {
		revenue = revenue.Add(o.TotalAmount)
		discount = discount.Add(o.DiscountAmount)
	}
	writeJSON(w, http.StatusOK, reportResponse{
		Orders:   toOrderDTOs(orders),
		Count:    len(orders),
		Revenue:  amount(revenue),
		Discount: amount(discount),
	})
}

// parseBound accepts RFC 3339 timestamps and plain dates. A plain date used
// as an upper bound covers the whole day.
func parseBound(v string, upper bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, errors.Errorf("invalid date %q", v)
	}
	if upper {
		d = d.Add(24*time.Hour - time.Nanosecond)
	}
	return d, nil
}
