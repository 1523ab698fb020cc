package orderbook

import (
	"exsim/infra/memory"
	"exsim/infra/sequence"
)

const (
	retireRingSize  = 1024
	maxSymbolLength = 32
)

// Pool hands out and takes back recycled objects. Get returns nil when the
// pool refuses to hand out more.
type Pool[T any] interface {
	Get() *T
	Release(*T)
}

// Options configures a book. Zero values get sensible defaults: a wall
// clock, unbounded private pools, a private order-id sequencer and a tick
// and lot size of 1.
type Options struct {
	Clock    Timestamper
	Orders   Pool[Order]
	Levels   Pool[PriceLevel]
	OrderIDs *sequence.Sequencer
	TickSize int64
	LotSize  int64
}

// Status is the outcome of NewOrder.
type Status uint8

const (
	StatusRejected Status = iota + 1
	StatusResting
	StatusFilled
	StatusCanceled
	StatusNoResources
)

func (s Status) String() string {
	switch s {
	case StatusRejected:
		return "REJECTED"
	case StatusResting:
		return "RESTING"
	case StatusFilled:
		return "FILLED"
	case StatusCanceled:
		return "CANCELED"
	case StatusNoResources:
		return "NO_RESOURCES"
	}
	return "UNKNOWN"
}

// Report is the state of a new order when NewOrder returns. The order
// itself may already be back in the pool by then.
type Report struct {
	OrderID      int64
	Status       Status
	RejectReason RejectReason
	ExecutedSize int64
	OpenSize     int64
	CanceledSize int64
}

type NewOrderRequest struct {
	ClientID      int64
	ClientOrderID string
	// ExchangeOrderID pins the id, as on replay. Zero takes the next one.
	ExchangeOrderID int64
	Security        string
	Side            Side
	Size            int64
	Price           int64
	Type            Type
	TimeInForce     TimeInForce
	// Listeners are attached to the order before it is validated.
	Listeners []OrderListener
}

// RestingOrder is a resting order as stored in a snapshot.
type RestingOrder struct {
	ID            int64
	ClientID      int64
	ClientOrderID string
	Side          Side
	TimeInForce   TimeInForce
	Price         int64
	OriginalSize  int64
	TotalSize     int64
	ExecutedSize  int64
	AcceptTime    int64
	RestTime      int64
	ReduceTime    int64
	ExecuteTime   int64
}

type LevelView struct {
	Price    int64
	OpenSize int64
	Orders   int
}

type State uint8

const (
	StateEmpty State = iota
	StateOneSided
	StateNormal
	StateLocked
	StateCrossed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StateOneSided:
		return "ONE_SIDED"
	case StateNormal:
		return "NORMAL"
	case StateLocked:
		return "LOCKED"
	case StateCrossed:
		return "CROSSED"
	}
	return "UNKNOWN"
}

type clientKey struct {
	clientID      int64
	clientOrderID string
}

// OrderBook matches orders of one security by price, then time.
// It is single-writer: every method must be called from the same goroutine.
type OrderBook struct {
	security string
	tick     int64
	lot      int64
	halted   bool

	bids *RBTree
	asks *RBTree

	orders   map[int64]*Order
	byClient map[clientKey]*Order

	listeners []OrderBookListener
	slot      *bookSlot

	clock    Timestamper
	orderIDs *sequence.Sequencer
	execIDs  *sequence.Sequencer
	matchIDs *sequence.Sequencer

	orderPool Pool[Order]
	levelPool Pool[PriceLevel]
	spare     *PriceLevel

	// Terminated orders and emptied levels wait here until no Order
	// method is on the stack any more, then go back to their pools.
	retiredOrders  *memory.RetireRing[Order]
	retiredLevels  *memory.RetireRing[PriceLevel]
	overflowOrders []*Order
	overflowLevels []*PriceLevel
}

func NewOrderBook(security string, opts Options) *OrderBook {
	if opts.Clock == nil {
		opts.Clock = NewSystemTimestamper()
	}
	if opts.Orders == nil {
		opts.Orders = memory.NewPool(0, 0, func() *Order { return new(Order) })
	}
	if opts.Levels == nil {
		opts.Levels = memory.NewPool(0, 0, func() *PriceLevel { return new(PriceLevel) })
	}
	if opts.OrderIDs == nil {
		opts.OrderIDs = sequence.New(0)
	}
	if opts.TickSize <= 0 {
		opts.TickSize = 1
	}
	if opts.LotSize <= 0 {
		opts.LotSize = 1
	}

	b := &OrderBook{
		security:      security,
		tick:          opts.TickSize,
		lot:           opts.LotSize,
		bids:          NewRBTree(),
		asks:          NewRBTree(),
		orders:        make(map[int64]*Order),
		byClient:      make(map[clientKey]*Order),
		clock:         opts.Clock,
		orderIDs:      opts.OrderIDs,
		execIDs:       sequence.New(0),
		matchIDs:      sequence.New(0),
		orderPool:     opts.Orders,
		levelPool:     opts.Levels,
		retiredOrders: memory.NewRetireRing[Order](retireRingSize),
		retiredLevels: memory.NewRetireRing[PriceLevel](retireRingSize),
	}
	b.slot = &bookSlot{b: b}
	return b
}

func (b *OrderBook) Security() string { return b.security }
func (b *OrderBook) TickSize() int64  { return b.tick }
func (b *OrderBook) LotSize() int64   { return b.lot }
func (b *OrderBook) OrderCount() int  { return len(b.orders) }
func (b *OrderBook) IsHalted() bool   { return b.halted }

func (b *OrderBook) AddListener(l OrderBookListener) {
	b.listeners = append(b.listeners, l)
}

func (b *OrderBook) RemoveListener(l OrderBookListener) {
	for i, x := range b.listeners {
		if x == l {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}

// Halt makes new orders reject with TRADING_HALTED. Cancels and reduces
// still go through.
func (b *OrderBook) Halt()   { b.halted = true }
func (b *OrderBook) Resume() { b.halted = false }

// ---- order entry ----

func (b *OrderBook) CreateLimit(clientID int64, clientOrderID string, side Side, size, price int64, tif TimeInForce) Report {
	return b.NewOrder(NewOrderRequest{
		ClientID:      clientID,
		ClientOrderID: clientOrderID,
		Security:      b.security,
		Side:          side,
		Size:          size,
		Price:         price,
		Type:          Limit,
		TimeInForce:   tif,
	})
}

func (b *OrderBook) CreateMarket(clientID int64, clientOrderID string, side Side, size int64) Report {
	return b.NewOrder(NewOrderRequest{
		ClientID:      clientID,
		ClientOrderID: clientOrderID,
		Security:      b.security,
		Side:          side,
		Size:          size,
		Type:          Market,
		TimeInForce:   IOC,
	})
}

// NewOrder validates, accepts, matches and then rests or cancels the
// remainder of one incoming order. Every resulting event has been
// delivered to the listeners by the time it returns.
func (b *OrderBook) NewOrder(req NewOrderRequest) Report {
	defer b.reclaim()

	o := b.orderPool.Get()
	if o == nil {
		return Report{Status: StatusNoResources}
	}
	time := b.clock.NanoEpoch()
	o.Init(req.ClientID, req.ClientOrderID, 0, req.Security, req.Side, req.Size, req.Price, req.Type, req.TimeInForce)
	o.setBook(b.slot)
	for _, l := range req.Listeners {
		o.AddListener(l)
	}

	if reason := b.validate(o, req.ExchangeOrderID); reason != 0 {
		o.Reject(time, reason)
		return Report{Status: StatusRejected, RejectReason: reason}
	}

	if o.typ == Limit && o.tif != IOC && b.spare == nil {
		if b.spare = b.levelPool.Get(); b.spare == nil {
			o.clearListeners()
			b.orderPool.Release(o)
			return Report{Status: StatusNoResources}
		}
	}

	id := req.ExchangeOrderID
	if id == 0 {
		id = int64(b.orderIDs.Next())
	} else {
		b.orderIDs.AdvanceTo(uint64(id))
	}
	o.Accept(time, id)

	b.match(time, o)

	if o.OpenSize() > 0 {
		if o.typ == Market || o.tif == IOC {
			o.Cancel(time, CancelNoLiquidity)
		} else {
			b.rest(time, o)
		}
	}
	return reportOf(o)
}

func reportOf(o *Order) Report {
	r := Report{
		OrderID:      o.id,
		ExecutedSize: o.executedSize,
		OpenSize:     o.OpenSize(),
		CanceledSize: o.CanceledSize(),
	}
	switch {
	case o.resting:
		r.Status = StatusResting
	case o.executedSize == o.originalSize:
		r.Status = StatusFilled
	default:
		r.Status = StatusCanceled
	}
	return r
}

func (b *OrderBook) validate(o *Order, exchangeOrderID int64) RejectReason {
	switch {
	case o.security == "":
		return RejectMissingField
	case !validSymbol(o.security):
		return RejectBadSymbol
	case o.security != b.security:
		return RejectUnknownSymbol
	case !o.side.Valid():
		return RejectBadSide
	case !o.typ.Valid():
		return RejectBadType
	case !o.tif.Valid():
		return RejectBadTIF
	case b.halted:
		return RejectTradingHalted
	case o.originalSize <= 0:
		return RejectBadSize
	case o.originalSize%b.lot != 0:
		return RejectBadLot
	case o.typ == Limit && (o.price <= 0 || o.price%b.tick != 0):
		return RejectBadPrice
	case exchangeOrderID < 0:
		return RejectMissingField
	}
	if exchangeOrderID != 0 {
		if _, ok := b.orders[exchangeOrderID]; ok {
			return RejectDuplicateExchangeOrderID
		}
	}
	if o.clientOrderID != EmptyClientOrderID {
		if _, ok := b.byClient[clientKey{o.clientID, o.clientOrderID}]; ok {
			return RejectDuplicateClientOrderID
		}
	}
	return 0
}

func validSymbol(s string) bool {
	if len(s) > maxSymbolLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '.', c == '-', c == '_', c == '/':
		default:
			return false
		}
	}
	return true
}

// ---- matching ----

// match fills the taker against the opposite side, best price first and
// oldest order first within a price. Fills happen at the maker's price;
// each fill executes the maker, then the taker, under one match id.
func (b *OrderBook) match(time int64, taker *Order) {
	for taker.OpenSize() > 0 {
		// The taker is still open here, so everything retired so far is
		// off the stack.
		b.reclaim()

		lvl := b.best(taker.side.Other())
		if lvl == nil {
			return
		}
		if taker.typ == Limit && taker.side.IsOutside(taker.price, lvl.price) {
			return
		}

		maker := lvl.head
		size := min(taker.OpenSize(), maker.OpenSize())
		price := lvl.price
		matchID := int64(b.matchIDs.Next())

		maker.Execute(time, Maker, size, price, int64(b.execIDs.Next()), matchID)
		taker.Execute(time, Taker, size, price, int64(b.execIDs.Next()), matchID)
	}
}

func (b *OrderBook) rest(time int64, o *Order) {
	tree := b.tree(o.side)
	lvl := tree.FindLevel(o.price)
	if lvl == nil {
		lvl = b.spare
		b.spare = nil
		lvl.Init(o.side, o.price)
		tree.InsertLevel(lvl)
	}
	lvl.Add(o)
	o.Rest(time)
}

// ---- cancel / reduce ----

func (b *OrderBook) Cancel(orderID int64) bool {
	return b.CancelSize(orderID, 0)
}

// CancelSize cancels size of a live order's open size. size <= 0, or
// anything at or above the open size, cancels the order outright.
func (b *OrderBook) CancelSize(orderID, size int64) bool {
	defer b.reclaim()
	time := b.clock.NanoEpoch()

	o, ok := b.orders[orderID]
	if !ok {
		for _, l := range b.listeners {
			l.OnCancelRejected(time, orderID, CancelRejectNotFound)
		}
		return false
	}
	if size <= 0 {
		o.Cancel(time, CancelUser)
	} else {
		o.CancelSize(time, size, CancelUser)
	}
	return true
}

// Reduce sets a live order's total size to newTotalSize, which must be
// positive and below the current total.
func (b *OrderBook) Reduce(orderID, newTotalSize int64) bool {
	defer b.reclaim()
	time := b.clock.NanoEpoch()

	o := b.orders[orderID]
	var reason ReduceRejectReason
	switch {
	case o == nil:
		reason = ReduceRejectNotFound
	case newTotalSize < 0:
		reason = ReduceRejectNegative
	case newTotalSize == 0:
		reason = ReduceRejectZero
	case newTotalSize > o.totalSize:
		reason = ReduceRejectIncrease
	case newTotalSize == o.totalSize:
		reason = ReduceRejectSuperfluous
	}
	if reason != 0 {
		for _, l := range b.listeners {
			l.OnReduceRejected(time, orderID, reason)
		}
		return false
	}
	o.ReduceTo(time, newTotalSize)
	return true
}

// Purge cancels every resting order with PURGED and returns how many.
func (b *OrderBook) Purge() int {
	defer b.reclaim()
	time := b.clock.NanoEpoch()

	n := 0
	for _, tree := range [...]*RBTree{b.bids, b.asks} {
		for lvl := tree.MinLevel(); lvl != nil; lvl = tree.MinLevel() {
			lvl.head.Cancel(time, CancelPurged)
			n++
			b.reclaim()
		}
	}
	return n
}

// ExpireDay cancels every resting DAY order with EXPIRED.
func (b *OrderBook) ExpireDay() int {
	defer b.reclaim()
	time := b.clock.NanoEpoch()

	n := 0
	expire := func(lvl *PriceLevel) bool {
		for o := lvl.head; o != nil; {
			next := o.next
			if o.tif == DAY {
				o.Cancel(time, CancelExpired)
				n++
			}
			o = next
		}
		return true
	}
	b.bids.ForEachAscending(expire)
	b.asks.ForEachAscending(expire)
	return n
}

// ---- queries ----

// Order returns the live order with the given exchange id. The pointer is
// only valid until the next call that mutates the book.
func (b *OrderBook) Order(orderID int64) *Order {
	return b.orders[orderID]
}

func (b *OrderBook) OrderByClientID(clientID int64, clientOrderID string) *Order {
	if len(clientOrderID) > ClientOrderIDMaxLength {
		clientOrderID = clientOrderID[:ClientOrderIDMaxLength]
	}
	return b.byClient[clientKey{clientID, clientOrderID}]
}

func (b *OrderBook) BestBid() *PriceLevel { return b.bids.MaxLevel() }
func (b *OrderBook) BestAsk() *PriceLevel { return b.asks.MinLevel() }

// Spread is best ask minus best bid; ok is false unless both sides exist.
func (b *OrderBook) Spread() (spread int64, ok bool) {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == nil || ask == nil {
		return 0, false
	}
	return ask.price - bid.price, true
}

func (b *OrderBook) State() State {
	bid, ask := b.BestBid(), b.BestAsk()
	switch {
	case bid == nil && ask == nil:
		return StateEmpty
	case bid == nil || ask == nil:
		return StateOneSided
	case bid.price < ask.price:
		return StateNormal
	case bid.price == ask.price:
		return StateLocked
	default:
		return StateCrossed
	}
}

// Depth lists up to limit levels of one side, best first. limit <= 0
// lists all.
func (b *OrderBook) Depth(side Side, limit int) []LevelView {
	tree := b.tree(side)
	n := tree.Size()
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]LevelView, 0, n)
	add := func(lvl *PriceLevel) bool {
		out = append(out, LevelView{Price: lvl.price, OpenSize: lvl.openSize, Orders: lvl.orderCount})
		return len(out) < n
	}
	if n == 0 {
		return out
	}
	if side == Buy {
		tree.ForEachDescending(add)
	} else {
		tree.ForEachAscending(add)
	}
	return out
}

// ForEachOrder visits resting orders, bids best first then asks best
// first, oldest first within a level. fn must not modify the book.
func (b *OrderBook) ForEachOrder(fn func(*Order) bool) {
	stop := false
	visit := func(lvl *PriceLevel) bool {
		for o := lvl.head; o != nil; o = o.next {
			if !fn(o) {
				stop = true
				return false
			}
		}
		return true
	}
	b.bids.ForEachDescending(visit)
	if stop {
		return
	}
	b.asks.ForEachAscending(visit)
}

// ---- snapshots ----

// RestingOrders exports the book in an order Restore can replay to
// rebuild identical queues.
func (b *OrderBook) RestingOrders() []RestingOrder {
	out := make([]RestingOrder, 0, len(b.orders))
	b.ForEachOrder(func(o *Order) bool {
		out = append(out, restingOf(o))
		return true
	})
	return out
}

// Lookup copies out the live order with the given exchange id.
func (b *OrderBook) Lookup(orderID int64) (RestingOrder, bool) {
	o, ok := b.orders[orderID]
	if !ok {
		return RestingOrder{}, false
	}
	return restingOf(o), true
}

func restingOf(o *Order) RestingOrder {
	return RestingOrder{
		ID:            o.id,
		ClientID:      o.clientID,
		ClientOrderID: o.clientOrderID,
		Side:          o.side,
		TimeInForce:   o.tif,
		Price:         o.price,
		OriginalSize:  o.originalSize,
		TotalSize:     o.totalSize,
		ExecutedSize:  o.executedSize,
		AcceptTime:    o.acceptTime,
		RestTime:      o.restTime,
		ReduceTime:    o.reduceTime,
		ExecuteTime:   o.executeTime,
	}
}

// Restore puts a resting order straight into the book without events. It
// reports false if the record is unusable or the pools are exhausted.
func (b *OrderBook) Restore(r RestingOrder) bool {
	if r.ID <= 0 || !r.Side.Valid() || !r.TimeInForce.Valid() || r.TimeInForce == IOC ||
		r.Price <= 0 || r.TotalSize-r.ExecutedSize <= 0 || r.TotalSize > r.OriginalSize {
		return false
	}
	if _, dup := b.orders[r.ID]; dup {
		return false
	}

	tree := b.tree(r.Side)
	lvl := tree.FindLevel(r.Price)
	if lvl == nil {
		if lvl = b.levelPool.Get(); lvl == nil {
			return false
		}
		lvl.Init(r.Side, r.Price)
		tree.InsertLevel(lvl)
	}
	o := b.orderPool.Get()
	if o == nil {
		if lvl.orderCount == 0 {
			tree.DeleteLevel(lvl)
			b.levelPool.Release(lvl)
		}
		return false
	}

	o.Init(r.ClientID, r.ClientOrderID, r.ID, b.security, r.Side, r.OriginalSize, r.Price, Limit, r.TimeInForce)
	o.totalSize = r.TotalSize
	o.executedSize = r.ExecutedSize
	o.acceptTime = r.AcceptTime
	o.restTime = r.RestTime
	o.reduceTime = r.ReduceTime
	o.executeTime = r.ExecuteTime
	o.resting = true
	o.setBook(b.slot)

	b.orders[o.id] = o
	if o.clientOrderID != EmptyClientOrderID {
		b.byClient[clientKey{o.clientID, o.clientOrderID}] = o
	}
	lvl.Add(o)
	b.orderIDs.AdvanceTo(uint64(r.ID))
	return true
}

// Sequences returns the last execution and match ids handed out.
func (b *OrderBook) Sequences() (executionID, matchID int64) {
	return int64(b.execIDs.Current()), int64(b.matchIDs.Current())
}

func (b *OrderBook) RestoreSequences(executionID, matchID int64) {
	b.execIDs.Reset(uint64(executionID))
	b.matchIDs.Reset(uint64(matchID))
}

// ---- internals ----

func (b *OrderBook) tree(side Side) *RBTree {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

// best is the most aggressive level of side: highest bid, lowest ask.
func (b *OrderBook) best(side Side) *PriceLevel {
	if side == Buy {
		return b.bids.MaxLevel()
	}
	return b.asks.MinLevel()
}

func (b *OrderBook) retireOrder(o *Order) {
	if !b.retiredOrders.Enqueue(o) {
		b.overflowOrders = append(b.overflowOrders, o)
	}
}

func (b *OrderBook) retireLevel(l *PriceLevel) {
	if !b.retiredLevels.Enqueue(l) {
		b.overflowLevels = append(b.overflowLevels, l)
	}
}

func (b *OrderBook) reclaim() {
	for o := b.retiredOrders.Dequeue(); o != nil; o = b.retiredOrders.Dequeue() {
		b.orderPool.Release(o)
	}
	for l := b.retiredLevels.Dequeue(); l != nil; l = b.retiredLevels.Dequeue() {
		b.levelPool.Release(l)
	}
	if len(b.overflowOrders) > 0 {
		for i, o := range b.overflowOrders {
			b.orderPool.Release(o)
			b.overflowOrders[i] = nil
		}
		b.overflowOrders = b.overflowOrders[:0]
	}
	if len(b.overflowLevels) > 0 {
		for i, l := range b.overflowLevels {
			b.levelPool.Release(l)
			b.overflowLevels[i] = nil
		}
		b.overflowLevels = b.overflowLevels[:0]
	}
}

// bookSlot is the book's own listener on each of its orders. It keeps
// the indexes in step, then fans the event out to the book listeners.
type bookSlot struct {
	b *OrderBook
}

func (s *bookSlot) OnOrderAccepted(time int64, o *Order) {
	b := s.b
	b.orders[o.id] = o
	if o.clientOrderID != EmptyClientOrderID {
		b.byClient[clientKey{o.clientID, o.clientOrderID}] = o
	}
	for _, l := range b.listeners {
		l.OnOrderAccepted(time, o)
	}
}

func (s *bookSlot) OnOrderRested(time int64, o *Order, restSize, price int64) {
	for _, l := range s.b.listeners {
		l.OnOrderRested(time, o, restSize, price)
	}
}

func (s *bookSlot) OnOrderRejected(time int64, o *Order, reason RejectReason) {
	b := s.b
	for _, l := range b.listeners {
		l.OnOrderRejected(time, o, reason)
	}
	b.retireOrder(o)
}

func (s *bookSlot) OnOrderReduced(time int64, o *Order, newTotalSize int64) {
	for _, l := range s.b.listeners {
		l.OnOrderReduced(time, o, newTotalSize)
	}
}

func (s *bookSlot) OnOrderCanceled(time int64, o *Order, reason CancelReason) {
	for _, l := range s.b.listeners {
		l.OnOrderCanceled(time, o, reason)
	}
}

func (s *bookSlot) OnOrderExecuted(time int64, o *Order, side ExecuteSide, size, price, executionID, matchID int64) {
	for _, l := range s.b.listeners {
		l.OnOrderExecuted(time, o, side, size, price, executionID, matchID)
	}
}

func (s *bookSlot) OnOrderTerminated(time int64, o *Order) {
	b := s.b
	if lvl := o.level; lvl != nil && lvl.IsEmpty() {
		b.tree(lvl.side).DeleteLevel(lvl)
		b.retireLevel(lvl)
	}
	delete(b.orders, o.id)
	if o.clientOrderID != EmptyClientOrderID {
		key := clientKey{o.clientID, o.clientOrderID}
		if b.byClient[key] == o {
			delete(b.byClient, key)
		}
	}
	for _, l := range b.listeners {
		l.OnOrderTerminated(time, o)
	}
	b.retireOrder(o)
}
