package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrEmptyItems is returned for a draft without line items.
	ErrEmptyItems = errors.New("items required")
	// ErrMissingCustomer is matched by every MissingFieldError.
	ErrMissingCustomer = errors.New("customer details required")
	// ErrRemoteUnavailable marks a remote store failure. Submissions absorb
	// it by queueing; it is only returned by operations that need the remote
	// store, such as a manual reconcile while offline.
	ErrRemoteUnavailable = errors.New("remote store unavailable")
)

// MissingFieldError indicates a required customer field is blank.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingCustomer
}

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// PersistenceError indicates the local durable store could not save or read
// the pending-order queue. An order that fails this way was not recorded
// anywhere.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("local persistence failed: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// PartialSyncError reports a reconcile pass in which some pending orders
// could not be inserted. Failed orders remain queued.
type PartialSyncError struct {
	Synced []Synced
	Failed []string
}

func (e *PartialSyncError) Error() string {
	return fmt.Sprintf("synced %d pending orders, %d retained for retry",
		len(e.Synced), len(e.Failed))
}
