package orderbook

import "fmt"

type event struct {
	Kind    string
	OrderID int64
	Side    ExecuteSide
	Size    int64
	Price   int64
	ExecID  int64
	MatchID int64
	Reason  string
}

// recorder logs every callback it gets, as an order or a book listener.
type recorder struct {
	name   string
	log    *[]string
	events []event
}

func (r *recorder) add(e event) {
	r.events = append(r.events, e)
	if r.log != nil {
		*r.log = append(*r.log, fmt.Sprintf("%s:%s", r.name, e.Kind))
	}
}

func (r *recorder) OnOrderAccepted(_ int64, o *Order) {
	r.add(event{Kind: "accepted", OrderID: o.ID()})
}

func (r *recorder) OnOrderRested(_ int64, o *Order, restSize, price int64) {
	r.add(event{Kind: "rested", OrderID: o.ID(), Size: restSize, Price: price})
}

func (r *recorder) OnOrderRejected(_ int64, o *Order, reason RejectReason) {
	r.add(event{Kind: "rejected", OrderID: o.ID(), Reason: reason.String()})
}

func (r *recorder) OnOrderReduced(_ int64, o *Order, newTotalSize int64) {
	r.add(event{Kind: "reduced", OrderID: o.ID(), Size: newTotalSize})
}

func (r *recorder) OnOrderCanceled(_ int64, o *Order, reason CancelReason) {
	r.add(event{Kind: "canceled", OrderID: o.ID(), Reason: reason.String()})
}

func (r *recorder) OnOrderExecuted(_ int64, o *Order, side ExecuteSide, size, price, executionID, matchID int64) {
	r.add(event{Kind: "executed", OrderID: o.ID(), Side: side, Size: size, Price: price, ExecID: executionID, MatchID: matchID})
}

func (r *recorder) OnOrderTerminated(_ int64, o *Order) {
	r.add(event{Kind: "terminated", OrderID: o.ID()})
}

func (r *recorder) OnCancelRejected(_ int64, orderID int64, reason CancelRejectReason) {
	r.add(event{Kind: "cancel_rejected", OrderID: orderID, Reason: reason.String()})
}

func (r *recorder) OnReduceRejected(_ int64, orderID int64, reason ReduceRejectReason) {
	r.add(event{Kind: "reduce_rejected", OrderID: orderID, Reason: reason.String()})
}

func (r *recorder) reset() { r.events = r.events[:0] }

func (r *recorder) kinds() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = fmt.Sprintf("%s#%d", e.Kind, e.OrderID)
	}
	return out
}

func (r *recorder) only(kind string) []event {
	var out []event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fixedClock struct{ now int64 }

func (c *fixedClock) NanoEpoch() int64 { return c.now }

// stackPool reuses the most recently released object first, so tests
// can observe recycling deterministically.
type stackPool[T any] struct {
	free []*T
	made int
	max  int
}

func (p *stackPool[T]) Get() *T {
	if n := len(p.free); n > 0 {
		v := p.free[n-1]
		p.free = p.free[:n-1]
		return v
	}
	if p.max > 0 && p.made >= p.max {
		return nil
	}
	p.made++
	return new(T)
}

func (p *stackPool[T]) Release(v *T) { p.free = append(p.free, v) }

func newTestBook() (*OrderBook, *recorder, *fixedClock) {
	clock := &fixedClock{now: 1000}
	b := NewOrderBook("AAPL", Options{Clock: clock})
	rec := &recorder{name: "book"}
	b.AddListener(rec)
	return b, rec, clock
}

// sizesBalance reports whether original == open + canceled + executed.
func sizesBalance(o *Order) bool {
	return o.OriginalSize() == o.OpenSize()+o.CanceledSize()+o.ExecutedSize()
}
