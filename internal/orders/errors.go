package orders

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrStaleStatus: the conditional status update lost a race.
	ErrStaleStatus = errors.New("order status changed concurrently")
	// ErrDuplicateOrderNo: generated order number collided, caller retries.
	ErrDuplicateOrderNo = errors.New("order number already taken")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProductUnavailableError: catalog says the product is missing or inactive.
type ProductUnavailableError struct {
	ProductID string
	Reason    string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s unavailable: %s", e.ProductID, e.Reason)
}

type InvalidTransitionError struct {
	From    Status
	Trigger Trigger
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot apply %s to order in status %s", e.Trigger, e.From)
}
