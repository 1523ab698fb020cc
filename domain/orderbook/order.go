package orderbook

import (
	"strconv"
	"strings"
)

const (
	// EmptyClientOrderID stands in for an absent client order id.
	EmptyClientOrderID = "NULL"

	ClientOrderIDMaxLength = 64

	// Unset marks a timestamp whose transition has not happened.
	Unset int64 = -1
)

// Order is one working order. Instances are pooled and reset by Init; the
// next/prev links belong to whichever PriceLevel currently holds the order.
//
// Invariant: OriginalSize == OpenSize + CanceledSize + ExecutedSize.
type Order struct {
	id            int64
	clientID      int64
	clientOrderID string
	security      string

	side Side
	typ  Type
	tif  TimeInForce

	originalSize int64
	totalSize    int64
	executedSize int64
	price        int64

	acceptTime  int64
	restTime    int64
	reduceTime  int64
	executeTime int64
	cancelTime  int64
	rejectTime  int64

	resting bool
	live    bool

	// Set by protocol adapters while a cancel or replace is in flight;
	// the book never reads them.
	pendingCancel bool
	pendingSize   int64

	// Notification slots, called in this order: observers (most recently
	// added first), the price level, the book. The level may unlink the
	// order before the book deletes the emptied level.
	observers []OrderListener
	level     *PriceLevel
	book      OrderListener

	next *Order
	prev *Order
}

// Init resets every field to a fresh new-order state.
func (o *Order) Init(
	clientID int64,
	clientOrderID string,
	exchangeOrderID int64,
	security string,
	side Side,
	size int64,
	price int64,
	typ Type,
	tif TimeInForce,
) {
	if clientOrderID == "" {
		clientOrderID = EmptyClientOrderID
	} else if len(clientOrderID) > ClientOrderIDMaxLength {
		clientOrderID = clientOrderID[:ClientOrderIDMaxLength]
	}

	o.id = exchangeOrderID
	o.clientID = clientID
	o.clientOrderID = clientOrderID
	o.security = security
	o.side = side
	o.typ = typ
	o.tif = tif
	o.originalSize = size
	o.totalSize = size
	o.executedSize = 0
	if typ == Market {
		price = 0
	}
	o.price = price

	o.acceptTime = Unset
	o.restTime = Unset
	o.reduceTime = Unset
	o.executeTime = Unset
	o.cancelTime = Unset
	o.rejectTime = Unset

	o.resting = false
	o.live = true
	o.pendingCancel = false
	o.pendingSize = Unset

	o.clearListeners()
	o.next = nil
	o.prev = nil
}

// AddListener registers a per-order observer. Observers run before the
// level and book slots, most recently added first.
func (o *Order) AddListener(l OrderListener) {
	o.observers = append(o.observers, l)
}

func (o *Order) setBook(l OrderListener) { o.book = l }

func (o *Order) clearListeners() {
	for i := range o.observers {
		o.observers[i] = nil
	}
	o.observers = o.observers[:0]
	o.level = nil
	o.book = nil
}

func (o *Order) terminate() {
	o.live = false
	o.resting = false
	o.clearListeners()
}

// ---- accessors ----

func (o *Order) ID() int64              { return o.id }
func (o *Order) ExchangeOrderID() int64 { return o.id }
func (o *Order) ClientID() int64        { return o.clientID }
func (o *Order) ClientOrderID() string  { return o.clientOrderID }
func (o *Order) Security() string       { return o.security }
func (o *Order) Side() Side             { return o.side }
func (o *Order) OtherSide() Side        { return o.side.Other() }
func (o *Order) Type() Type             { return o.typ }
func (o *Order) TimeInForce() TimeInForce {
	return o.tif
}
func (o *Order) Price() int64        { return o.price }
func (o *Order) OriginalSize() int64 { return o.originalSize }
func (o *Order) TotalSize() int64    { return o.totalSize }
func (o *Order) ExecutedSize() int64 { return o.executedSize }
func (o *Order) OpenSize() int64     { return o.totalSize - o.executedSize }

// CanceledSize is whatever is neither open nor executed.
func (o *Order) CanceledSize() int64 {
	return o.originalSize - o.OpenSize() - o.executedSize
}

func (o *Order) IsTerminal() bool { return o.OpenSize() == 0 }
func (o *Order) IsAccepted() bool { return o.id > 0 }
func (o *Order) IsResting() bool  { return o.resting }
func (o *Order) IsLimit() bool    { return o.typ == Limit }
func (o *Order) IsMarket() bool   { return o.typ == Market }
func (o *Order) IsIOC() bool      { return o.tif == IOC }
func (o *Order) IsDay() bool      { return o.tif == DAY }
func (o *Order) IsGTC() bool      { return o.tif == GTC }

func (o *Order) SetPendingCancel()      { o.pendingCancel = true }
func (o *Order) IsPendingCancel() bool  { return o.pendingCancel }
func (o *Order) SetPendingSize(n int64) { o.pendingSize = n }
func (o *Order) PendingSize() int64     { return o.pendingSize }

// PriceLevel is the level the order rests in, nil when not resting.
func (o *Order) PriceLevel() *PriceLevel { return o.level }

func (o *Order) AcceptTime() int64  { return o.acceptTime }
func (o *Order) RestTime() int64    { return o.restTime }
func (o *Order) ReduceTime() int64  { return o.reduceTime }
func (o *Order) ExecuteTime() int64 { return o.executeTime }
func (o *Order) CancelTime() int64  { return o.cancelTime }
func (o *Order) RejectTime() int64  { return o.rejectTime }

// ---- lifecycle ----

func (o *Order) Accept(time, id int64) {
	if !o.live {
		contractViolation("accept", o)
		return
	}
	o.id = id
	o.acceptTime = time

	for i := len(o.observers) - 1; i >= 0; i-- {
		o.observers[i].OnOrderAccepted(time, o)
	}
	if o.book != nil {
		o.book.OnOrderAccepted(time, o)
	}
}

func (o *Order) Rest(time int64) {
	if !o.live || o.IsTerminal() {
		contractViolation("rest", o)
		return
	}
	o.resting = true
	o.restTime = time

	open, price := o.OpenSize(), o.price
	for i := len(o.observers) - 1; i >= 0; i-- {
		o.observers[i].OnOrderRested(time, o, open, price)
	}
	if o.book != nil {
		o.book.OnOrderRested(time, o, open, price)
	}
}

// Reject zeroes total and executed size, so a rejected order never had
// anything open. Only reachable before Accept.
func (o *Order) Reject(time int64, reason RejectReason) {
	if !o.live {
		contractViolation("reject", o)
		return
	}
	if o.IsAccepted() || o.executedSize != 0 {
		contractViolation("reject after accept", o)
	}
	o.totalSize = 0
	o.executedSize = 0
	o.rejectTime = time

	for i := len(o.observers) - 1; i >= 0; i-- {
		o.observers[i].OnOrderRejected(time, o, reason)
	}
	if o.book != nil {
		o.book.OnOrderRejected(time, o, reason)
	}
	o.terminate()
}

// ReduceTo shrinks the total size. A target at or below the executed size
// cancels the order; a target above the current total is clamped to it.
func (o *Order) ReduceTo(time, newTotalSize int64) {
	if !o.live {
		contractViolation("reduce", o)
		return
	}
	if newTotalSize <= o.executedSize {
		o.Cancel(time, CancelUser)
		return
	}
	if newTotalSize > o.totalSize {
		newTotalSize = o.totalSize
	}
	o.setTotal(time, newTotalSize)
}

// CancelSize cancels sizeToCancel of the open size. Canceling the whole
// open size or more is a full cancel.
func (o *Order) CancelSize(time, sizeToCancel int64, reason CancelReason) {
	if !o.live || sizeToCancel <= 0 {
		contractViolation("cancel size", o)
		return
	}
	if sizeToCancel >= o.OpenSize() {
		o.Cancel(time, reason)
		return
	}
	o.setTotal(time, o.totalSize-sizeToCancel)
}

func (o *Order) setTotal(time, newTotalSize int64) {
	delta := newTotalSize - o.totalSize
	o.totalSize = newTotalSize
	o.reduceTime = time

	for i := len(o.observers) - 1; i >= 0; i-- {
		o.observers[i].OnOrderReduced(time, o, newTotalSize)
	}
	if o.level != nil {
		o.level.openSizeChanged(delta)
	}
	if o.book != nil {
		o.book.OnOrderReduced(time, o, newTotalSize)
	}
}

// Cancel cancels everything still open and terminates the order.
func (o *Order) Cancel(time int64, reason CancelReason) {
	if !o.live {
		contractViolation("cancel", o)
		return
	}
	delta := -o.OpenSize()
	o.totalSize = o.executedSize
	o.cancelTime = time

	for i := len(o.observers) - 1; i >= 0; i-- {
		o.observers[i].OnOrderCanceled(time, o, reason)
	}
	if o.level != nil {
		o.level.openSizeChanged(delta)
	}
	if o.book != nil {
		o.book.OnOrderCanceled(time, o, reason)
	}
	o.fireTerminated(time)
}

// Execute fills up to sizeToExecute (clamped to the open size) at
// priceExecuted and terminates the order once nothing is left open.
func (o *Order) Execute(time int64, side ExecuteSide, sizeToExecute, priceExecuted, executionID, matchID int64) {
	if !o.live {
		contractViolation("execute", o)
		return
	}
	if open := o.OpenSize(); sizeToExecute > open {
		sizeToExecute = open
	}
	o.executedSize += sizeToExecute
	o.executeTime = time

	for i := len(o.observers) - 1; i >= 0; i-- {
		o.observers[i].OnOrderExecuted(time, o, side, sizeToExecute, priceExecuted, executionID, matchID)
	}
	if o.level != nil {
		o.level.openSizeChanged(-sizeToExecute)
	}
	if o.book != nil {
		o.book.OnOrderExecuted(time, o, side, sizeToExecute, priceExecuted, executionID, matchID)
	}
	if o.IsTerminal() {
		o.fireTerminated(time)
	}
}

func (o *Order) fireTerminated(time int64) {
	for i := len(o.observers) - 1; i >= 0; i-- {
		o.observers[i].OnOrderTerminated(time, o)
	}
	if o.level != nil {
		o.level.unlink(o)
	}
	if o.book != nil {
		o.book.OnOrderTerminated(time, o)
	}
	o.terminate()
}

// String is for logs and debugging only; it allocates.
func (o *Order) String() string {
	if o == nil {
		return "Order[nil]"
	}
	var sb strings.Builder
	sb.Grow(192)
	sb.WriteString("Order[id=")
	sb.WriteString(strconv.FormatInt(o.id, 10))
	sb.WriteString(", clientId=")
	sb.WriteString(strconv.FormatInt(o.clientID, 10))
	sb.WriteString(", clientOrderId=")
	sb.WriteString(o.clientOrderID)
	sb.WriteString(", side=")
	sb.WriteString(o.side.String())
	sb.WriteString(", security=")
	sb.WriteString(o.security)
	sb.WriteString(", originalSize=")
	sb.WriteString(strconv.FormatInt(o.originalSize, 10))
	sb.WriteString(", openSize=")
	sb.WriteString(strconv.FormatInt(o.OpenSize(), 10))
	sb.WriteString(", executedSize=")
	sb.WriteString(strconv.FormatInt(o.executedSize, 10))
	sb.WriteString(", canceledSize=")
	sb.WriteString(strconv.FormatInt(o.CanceledSize(), 10))
	if o.typ != Market {
		sb.WriteString(", price=")
		sb.WriteString(strconv.FormatInt(o.price, 10))
	}
	sb.WriteString(", type=")
	sb.WriteString(o.typ.String())
	if o.typ != Market {
		sb.WriteString(", tif=")
		sb.WriteString(o.tif.String())
	}
	sb.WriteByte(']')
	return sb.String()
}
