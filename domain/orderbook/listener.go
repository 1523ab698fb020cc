package orderbook

// OrderListener receives every state transition of an Order, synchronously,
// before the call that caused it returns. Implementations must not retain
// the *Order past OnOrderTerminated: the book recycles it right after.
type OrderListener interface {
	OnOrderAccepted(time int64, o *Order)
	OnOrderRested(time int64, o *Order, restSize, price int64)
	OnOrderRejected(time int64, o *Order, reason RejectReason)
	OnOrderReduced(time int64, o *Order, newTotalSize int64)
	OnOrderCanceled(time int64, o *Order, reason CancelReason)
	OnOrderExecuted(time int64, o *Order, side ExecuteSide, size, price, executionID, matchID int64)
	OnOrderTerminated(time int64, o *Order)
}

// OrderBookListener sees the events of every order of a book plus the
// reject events of cancel and reduce requests that never reached an order.
type OrderBookListener interface {
	OrderListener
	OnCancelRejected(time int64, orderID int64, reason CancelRejectReason)
	OnReduceRejected(time int64, orderID int64, reason ReduceRejectReason)
}

// OrderBookAdapter implements OrderBookListener with no-ops so callers can
// embed it and override only what they need.
type OrderBookAdapter struct{}

func (OrderBookAdapter) OnOrderAccepted(int64, *Order)                                          {}
func (OrderBookAdapter) OnOrderRested(int64, *Order, int64, int64)                              {}
func (OrderBookAdapter) OnOrderRejected(int64, *Order, RejectReason)                            {}
func (OrderBookAdapter) OnOrderReduced(int64, *Order, int64)                                    {}
func (OrderBookAdapter) OnOrderCanceled(int64, *Order, CancelReason)                            {}
func (OrderBookAdapter) OnOrderExecuted(int64, *Order, ExecuteSide, int64, int64, int64, int64) {}
func (OrderBookAdapter) OnOrderTerminated(int64, *Order)                                        {}
func (OrderBookAdapter) OnCancelRejected(int64, int64, CancelRejectReason)                      {}
func (OrderBookAdapter) OnReduceRejected(int64, int64, ReduceRejectReason)                      {}

var _ OrderBookListener = OrderBookAdapter{}
