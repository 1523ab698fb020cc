package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"exsim/domain/orderbook"
	"exsim/infra/sequence"
	entrywal "exsim/infra/wal/entry"
	exitwal "exsim/infra/wal/exit"
	"exsim/snapshot"
)

type BookConfig struct {
	Security string
	TickSize int64
	LotSize  int64
}

// Deps are shared by every book of the process.
type Deps struct {
	WAL      *entrywal.WAL
	Outbox   *exitwal.ExitWAL
	Orders   orderbook.Pool[orderbook.Order]
	Levels   orderbook.Pool[orderbook.PriceLevel]
	OrderIDs *sequence.Sequencer
	Session  string
	Log      logrus.FieldLogger
	// QueueSize bounds the commands waiting for the worker.
	QueueSize int
	// Listeners are added to the book after the outbox listener.
	Listeners []orderbook.OrderBookListener
}

type PlaceRequest struct {
	ClientID      int64
	ClientOrderID string
	Side          orderbook.Side
	Type          orderbook.Type
	TimeInForce   orderbook.TimeInForce
	Size          int64
	Price         int64
}

// BookStatus is a point-in-time summary of one book.
type BookStatus struct {
	Security   string
	State      orderbook.State
	Halted     bool
	OrderCount int
	BestBid    int64
	BestAsk    int64
	IntentSeq  uint64
}

/*
OrderService is the only write path into one order book.

The book is single-writer, so every call, reads included, runs as a
command on the service's worker goroutine. Mutations are journaled to
the entry WAL first, applied second, and their events land in the
outbox last.
*/
type OrderService struct {
	security string
	book     *orderbook.OrderBook
	clock    *intentClock
	wal      *entrywal.WAL
	orderIDs *sequence.Sequencer
	outbox   *outboxListener
	rejects  *rejectCapture
	log      logrus.FieldLogger

	// worker-owned
	intentSeq uint64
	buf       []byte

	cmds     chan func()
	quit     chan struct{}
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

func NewOrderService(bc BookConfig, d Deps) *OrderService {
	if d.QueueSize <= 0 {
		d.QueueSize = 1024
	}
	if d.OrderIDs == nil {
		d.OrderIDs = sequence.New(0)
	}
	log := d.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("security", bc.Security)

	clock := &intentClock{}
	book := orderbook.NewOrderBook(bc.Security, orderbook.Options{
		Clock:    clock,
		Orders:   d.Orders,
		Levels:   d.Levels,
		OrderIDs: d.OrderIDs,
		TickSize: bc.TickSize,
		LotSize:  bc.LotSize,
	})

	s := &OrderService{
		security: bc.Security,
		book:     book,
		clock:    clock,
		wal:      d.WAL,
		orderIDs: d.OrderIDs,
		outbox:   newOutboxListener(d.Session, bc.Security, d.Outbox, log),
		rejects:  &rejectCapture{},
		log:      log,
		cmds:     make(chan func(), d.QueueSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	book.AddListener(s.outbox)
	book.AddListener(s.rejects)
	for _, l := range d.Listeners {
		book.AddListener(l)
	}
	return s
}

func (s *OrderService) Security() string { return s.security }

// ------------------------------------------------
// WORKER
// ------------------------------------------------

// Start launches the worker. Recovery must be done before.
func (s *OrderService) Start() {
	s.started = true
	go s.run()
	s.log.Info("book worker started")
}

// Stop ends the worker after the command it is running, if any. Queued
// commands fail with ErrStopped.
func (s *OrderService) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		if !s.started {
			close(s.done)
		}
	})
	<-s.done
}

func (s *OrderService) Done() <-chan struct{} { return s.done }

func (s *OrderService) run() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			s.log.Info("book worker stopped")
			return
		case cmd := <-s.cmds:
			cmd()
		}
	}
}

// do runs fn on the worker and waits for it. When ctx ends first, fn may
// still run later; its results are simply not read.
func (s *OrderService) do(ctx context.Context, fn func()) error {
	reply := make(chan struct{})
	cmd := func() {
		fn()
		close(reply)
	}

	select {
	case <-s.quit:
		return ErrStopped
	default:
	}

	select {
	case s.cmds <- cmd:
	case <-s.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-reply:
		return nil
	case <-s.done:
		select {
		case <-reply:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ------------------------------------------------
// INTENTS
// ------------------------------------------------

type outcome struct {
	report orderbook.Report
	ok     bool
	count  int
}

// submit journals an intent and applies it. Worker only.
func (s *OrderService) submit(t entrywal.RecordType, in entrywal.Intent) (outcome, error) {
	ts := s.clock.next()
	s.buf = entrywal.AppendIntent(s.buf[:0], in)
	seq, err := s.wal.Append(t, ts, s.buf)
	if err != nil {
		return outcome{}, fmt.Errorf("journal %s: %w", t, err)
	}

	out := s.apply(t, seq, ts, in)

	if _, err := s.outbox.flush(); err != nil {
		s.log.WithError(err).WithField("intent_seq", seq).Error("outbox write failed, events dropped")
	}
	return out, nil
}

// apply runs one journaled intent against the book. It is the only place
// the book is mutated, live or on replay.
func (s *OrderService) apply(t entrywal.RecordType, seq uint64, ts int64, in entrywal.Intent) outcome {
	s.clock.now = ts
	s.intentSeq = seq
	s.outbox.begin(seq)
	s.rejects.reset()

	var out outcome
	switch t {
	case entrywal.RecordNewOrder:
		// Keeps ids of rejected orders from being handed out again after
		// a replay.
		s.orderIDs.AdvanceTo(uint64(in.OrderID))
		out.report = s.book.NewOrder(orderbook.NewOrderRequest{
			ClientID:        in.ClientID,
			ClientOrderID:   in.ClientOrderID,
			ExchangeOrderID: in.OrderID,
			Security:        in.Security,
			Side:            orderbook.Side(in.Side),
			Size:            in.Size,
			Price:           in.Price,
			Type:            orderbook.Type(in.Type),
			TimeInForce:     orderbook.TimeInForce(in.TimeInForce),
		})
	case entrywal.RecordCancel:
		out.ok = s.book.CancelSize(in.OrderID, in.Size)
	case entrywal.RecordReduce:
		out.ok = s.book.Reduce(in.OrderID, in.Size)
	case entrywal.RecordPurge:
		out.count = s.book.Purge()
	case entrywal.RecordExpireDay:
		out.count = s.book.ExpireDay()
	case entrywal.RecordHalt:
		s.book.Halt()
	case entrywal.RecordResume:
		s.book.Resume()
	}
	return out
}

// PlaceOrder enters a new order. The exchange order id is drawn before the
// intent is journaled so a replay hands out the same one.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceRequest) (orderbook.Report, error) {
	var (
		rep orderbook.Report
		err error
	)
	derr := s.do(ctx, func() {
		in := entrywal.Intent{
			Security:      s.security,
			OrderID:       int64(s.orderIDs.Next()),
			ClientID:      req.ClientID,
			ClientOrderID: req.ClientOrderID,
			Side:          uint8(req.Side),
			Type:          uint8(req.Type),
			TimeInForce:   uint8(req.TimeInForce),
			Size:          req.Size,
			Price:         req.Price,
		}
		var out outcome
		if out, err = s.submit(entrywal.RecordNewOrder, in); err != nil {
			return
		}
		rep = out.report
		if rep.Status == orderbook.StatusNoResources {
			s.void(in)
			err = ErrBackpressure
		}
	})
	if derr != nil {
		return orderbook.Report{}, derr
	}
	return rep, err
}

// void journals that a NewOrder did not happen, so replay skips it even
// if the pools would take it then.
func (s *OrderService) void(in entrywal.Intent) {
	s.buf = entrywal.AppendIntent(s.buf[:0], entrywal.Intent{Security: in.Security, OrderID: in.OrderID})
	seq, err := s.wal.Append(entrywal.RecordVoid, s.clock.next(), s.buf)
	if err != nil {
		s.log.WithError(err).WithField("order_id", in.OrderID).Error("journal void")
		return
	}
	s.intentSeq = seq
}

// CancelOrder cancels size of an order's open size; size <= 0 cancels it
// all.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, size int64) error {
	var err error
	derr := s.do(ctx, func() {
		var out outcome
		out, err = s.submit(entrywal.RecordCancel, entrywal.Intent{Security: s.security, OrderID: orderID, Size: size})
		if err == nil && !out.ok {
			err = &CancelRejectedError{OrderID: orderID, Reason: s.rejects.cancel}
		}
	})
	if derr != nil {
		return derr
	}
	return err
}

// ReduceOrder sets an order's total size to newTotalSize.
func (s *OrderService) ReduceOrder(ctx context.Context, orderID, newTotalSize int64) error {
	var err error
	derr := s.do(ctx, func() {
		var out outcome
		out, err = s.submit(entrywal.RecordReduce, entrywal.Intent{Security: s.security, OrderID: orderID, Size: newTotalSize})
		if err == nil && !out.ok {
			err = &ReduceRejectedError{OrderID: orderID, Reason: s.rejects.reduce}
		}
	})
	if derr != nil {
		return derr
	}
	return err
}

func (s *OrderService) bulk(ctx context.Context, t entrywal.RecordType) (int, error) {
	var (
		n   int
		err error
	)
	derr := s.do(ctx, func() {
		var out outcome
		out, err = s.submit(t, entrywal.Intent{Security: s.security})
		n = out.count
	})
	if derr != nil {
		return 0, derr
	}
	return n, err
}

// Purge cancels every resting order.
func (s *OrderService) Purge(ctx context.Context) (int, error) {
	return s.bulk(ctx, entrywal.RecordPurge)
}

// ExpireDay cancels every resting DAY order.
func (s *OrderService) ExpireDay(ctx context.Context) (int, error) {
	return s.bulk(ctx, entrywal.RecordExpireDay)
}

func (s *OrderService) Halt(ctx context.Context) error {
	_, err := s.bulk(ctx, entrywal.RecordHalt)
	return err
}

func (s *OrderService) Resume(ctx context.Context) error {
	_, err := s.bulk(ctx, entrywal.RecordResume)
	return err
}

// ------------------------------------------------
// QUERIES
// ------------------------------------------------

func (s *OrderService) Depth(ctx context.Context, limit int) (bids, asks []orderbook.LevelView, err error) {
	err = s.do(ctx, func() {
		bids = s.book.Depth(orderbook.Buy, limit)
		asks = s.book.Depth(orderbook.Sell, limit)
	})
	return bids, asks, err
}

// Lookup finds a live order by exchange id.
func (s *OrderService) Lookup(ctx context.Context, orderID int64) (orderbook.RestingOrder, bool, error) {
	var (
		r  orderbook.RestingOrder
		ok bool
	)
	err := s.do(ctx, func() {
		r, ok = s.book.Lookup(orderID)
	})
	return r, ok, err
}

// LookupClient finds a live order by the client's own id.
func (s *OrderService) LookupClient(ctx context.Context, clientID int64, clientOrderID string) (orderbook.RestingOrder, bool, error) {
	var (
		r  orderbook.RestingOrder
		ok bool
	)
	err := s.do(ctx, func() {
		if o := s.book.OrderByClientID(clientID, clientOrderID); o != nil {
			r, ok = s.book.Lookup(o.ID())
		}
	})
	return r, ok, err
}

func (s *OrderService) Status(ctx context.Context) (BookStatus, error) {
	var st BookStatus
	err := s.do(ctx, func() {
		st = BookStatus{
			Security:   s.security,
			State:      s.book.State(),
			Halted:     s.book.IsHalted(),
			OrderCount: s.book.OrderCount(),
			IntentSeq:  s.intentSeq,
		}
		if lvl := s.book.BestBid(); lvl != nil {
			st.BestBid = lvl.Price()
		}
		if lvl := s.book.BestAsk(); lvl != nil {
			st.BestAsk = lvl.Price()
		}
	})
	return st, err
}

// Snapshot captures the book as of the last intent it applied.
func (s *OrderService) Snapshot(ctx context.Context) (snapshot.BookState, error) {
	var bs snapshot.BookState
	err := s.do(ctx, func() {
		bs = s.capture()
	})
	return bs, err
}

func (s *OrderService) capture() snapshot.BookState {
	exec, match := s.book.Sequences()
	return snapshot.BookState{
		Security:    s.security,
		IntentSeq:   s.intentSeq,
		ExecutionID: exec,
		MatchID:     match,
		Halted:      s.book.IsHalted(),
		Orders:      s.book.RestingOrders(),
	}
}

// restore loads a snapshotted book. Only before Start.
func (s *OrderService) restore(bs snapshot.BookState) (int, error) {
	n := 0
	for _, r := range bs.Orders {
		if !s.book.Restore(r) {
			return n, fmt.Errorf("restore order %d of %s", r.ID, s.security)
		}
		n++
	}
	s.book.RestoreSequences(bs.ExecutionID, bs.MatchID)
	if bs.Halted {
		s.book.Halt()
	}
	s.intentSeq = bs.IntentSeq
	return n, nil
}

// rejectCapture keeps the reason of the last cancel or reduce reject so
// the caller can be told why.
type rejectCapture struct {
	orderbook.OrderBookAdapter
	cancel orderbook.CancelRejectReason
	reduce orderbook.ReduceRejectReason
}

func (r *rejectCapture) reset() {
	r.cancel = 0
	r.reduce = 0
}

func (r *rejectCapture) OnCancelRejected(_ int64, _ int64, reason orderbook.CancelRejectReason) {
	r.cancel = reason
}

func (r *rejectCapture) OnReduceRejected(_ int64, _ int64, reason orderbook.ReduceRejectReason) {
	r.reduce = reason
}
