package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-desk/internal/domain/coupon"
	"github.com/xenking/order-desk/internal/domain/order"
)

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: status, Message: message})
}

// writeDomainError maps domain errors to responses. Unknown errors are
// logged and reported as 500 without details.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		missing     *order.MissingFieldError
		badQuantity *order.InvalidQuantityError
		notFound    *order.ProductNotFoundError
		persistence *order.PersistenceError
	)
	switch {
	case errors.As(err, &missing):
		writeError(w, http.StatusBadRequest, missing.Error())
	case errors.Is(err, order.ErrEmptyItems), errors.Is(err, coupon.ErrEmptyCode):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &badQuantity):
		writeError(w, http.StatusUnprocessableEntity, badQuantity.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusUnprocessableEntity, notFound.Error())
	case errors.Is(err, coupon.ErrInvalidOrUsed):
		writeError(w, http.StatusUnprocessableEntity, "invalid or used coupon")
	case errors.Is(err, order.ErrRemoteUnavailable):
		writeError(w, http.StatusServiceUnavailable, "remote store unavailable")
	case errors.As(err, &persistence):
		zctx.From(r.Context()).Error("Local persistence failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "order could not be saved")
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
