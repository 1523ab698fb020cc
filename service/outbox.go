package service

import (
	"github.com/sirupsen/logrus"

	"exsim/domain/orderbook"
	"exsim/events"
	exitwal "exsim/infra/wal/exit"
)

// outboxListener turns the book events of one intent into outbox entries.
// Events are buffered while the intent runs and written in one batch by
// flush, so an intent's events land together or not at all.
type outboxListener struct {
	session  string
	security string
	out      *exitwal.ExitWAL
	log      logrus.FieldLogger

	muted     bool
	intentSeq uint64
	pending   []events.Event
	entries   []exitwal.Entry
}

func newOutboxListener(session, security string, out *exitwal.ExitWAL, log logrus.FieldLogger) *outboxListener {
	return &outboxListener{
		session:  session,
		security: security,
		out:      out,
		log:      log,
	}
}

func (l *outboxListener) begin(seq uint64) {
	l.intentSeq = seq
	l.pending = l.pending[:0]
}

func (l *outboxListener) event(t events.Type, time int64, o *orderbook.Order) *events.Event {
	if l.muted {
		return nil
	}
	l.pending = append(l.pending, events.Event{
		Session:   l.session,
		IntentSeq: l.intentSeq,
		Type:      t,
		Time:      time,
		Security:  l.security,
	})
	e := &l.pending[len(l.pending)-1]
	if o != nil {
		e.OrderID = o.ID()
		e.ClientID = o.ClientID()
		e.ClientOrderID = o.ClientOrderID()
		e.Side = o.Side().String()
	}
	return e
}

// flush writes the pending events to the outbox. It returns how many
// were written.
func (l *outboxListener) flush() (int, error) {
	if l.muted || len(l.pending) == 0 || l.out == nil {
		l.pending = l.pending[:0]
		return 0, nil
	}
	l.entries = l.entries[:0]
	key := []byte(l.security)
	for _, e := range l.pending {
		payload, err := events.Marshal(e)
		if err != nil {
			l.log.WithError(err).WithField("type", e.Type).Error("marshal event")
			continue
		}
		l.entries = append(l.entries, exitwal.Entry{Key: key, Payload: payload})
	}
	n := len(l.entries)
	l.pending = l.pending[:0]
	if n == 0 {
		return 0, nil
	}
	if _, err := l.out.AppendBatch(l.entries); err != nil {
		return 0, err
	}
	return n, nil
}

func (l *outboxListener) OnOrderAccepted(time int64, o *orderbook.Order) {
	if e := l.event(events.Accepted, time, o); e != nil {
		e.Size = o.OriginalSize()
		e.Price = o.Price()
	}
}

func (l *outboxListener) OnOrderRested(time int64, o *orderbook.Order, restSize, price int64) {
	if e := l.event(events.Rested, time, o); e != nil {
		e.Size = restSize
		e.Price = price
	}
}

func (l *outboxListener) OnOrderRejected(time int64, o *orderbook.Order, reason orderbook.RejectReason) {
	if e := l.event(events.Rejected, time, o); e != nil {
		e.Reason = reason.String()
	}
}

func (l *outboxListener) OnOrderReduced(time int64, o *orderbook.Order, newTotalSize int64) {
	if e := l.event(events.Reduced, time, o); e != nil {
		e.Size = newTotalSize
	}
}

func (l *outboxListener) OnOrderCanceled(time int64, o *orderbook.Order, reason orderbook.CancelReason) {
	if e := l.event(events.Canceled, time, o); e != nil {
		e.Size = o.CanceledSize()
		e.Reason = reason.String()
	}
}

func (l *outboxListener) OnOrderExecuted(time int64, o *orderbook.Order, side orderbook.ExecuteSide, size, price, executionID, matchID int64) {
	if e := l.event(events.Executed, time, o); e != nil {
		e.Size = size
		e.Price = price
		e.ExecuteSide = side.String()
		e.ExecutionID = executionID
		e.MatchID = matchID
	}
}

func (l *outboxListener) OnOrderTerminated(time int64, o *orderbook.Order) {
	l.event(events.Terminated, time, o)
}

func (l *outboxListener) OnCancelRejected(time int64, orderID int64, reason orderbook.CancelRejectReason) {
	if e := l.event(events.CancelRejected, time, nil); e != nil {
		e.OrderID = orderID
		e.Reason = reason.String()
	}
}

func (l *outboxListener) OnReduceRejected(time int64, orderID int64, reason orderbook.ReduceRejectReason) {
	if e := l.event(events.ReduceRejected, time, nil); e != nil {
		e.OrderID = orderID
		e.Reason = reason.String()
	}
}

var _ orderbook.OrderBookListener = (*outboxListener)(nil)
