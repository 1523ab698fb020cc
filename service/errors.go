package service

import (
	"errors"
	"fmt"

	"exsim/domain/orderbook"
)

var (
	ErrStopped         = errors.New("service: stopped")
	ErrUnknownSecurity = errors.New("service: unknown security")
	// ErrBackpressure means the pools refused the order; retry later.
	ErrBackpressure = errors.New("service: out of order capacity")
)

// CancelRejectedError is returned when a cancel found nothing to cancel.
type CancelRejectedError struct {
	OrderID int64
	Reason  orderbook.CancelRejectReason
}

func (e *CancelRejectedError) Error() string {
	return fmt.Sprintf("cancel %d rejected: %s", e.OrderID, e.Reason)
}

type ReduceRejectedError struct {
	OrderID int64
	Reason  orderbook.ReduceRejectReason
}

func (e *ReduceRejectedError) Error() string {
	return fmt.Sprintf("reduce %d rejected: %s", e.OrderID, e.Reason)
}
