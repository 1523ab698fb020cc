package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketOrderSweepsFIFO(t *testing.T) {
	b, rec, _ := newTestBook()

	a := b.CreateLimit(1, "A", Sell, 10, 100, GTC)
	bb := b.CreateLimit(1, "B", Sell, 5, 100, GTC)
	require.Equal(t, StatusResting, a.Status)
	require.Equal(t, StatusResting, bb.Status)
	rec.reset()

	r := b.CreateMarket(2, "M", Buy, 12)
	assert.Equal(t, StatusFilled, r.Status)
	assert.Equal(t, int64(12), r.ExecutedSize)

	taker := r.OrderID
	assert.Equal(t, []string{
		"accepted#3",
		"executed#1", "terminated#1", "executed#3",
		"executed#2", "executed#3", "terminated#3",
	}, rec.kinds())

	fills := rec.only("executed")
	require.Len(t, fills, 4)
	assert.Equal(t, event{Kind: "executed", OrderID: a.OrderID, Side: Maker, Size: 10, Price: 100, ExecID: 1, MatchID: 1}, fills[0])
	assert.Equal(t, event{Kind: "executed", OrderID: taker, Side: Taker, Size: 10, Price: 100, ExecID: 2, MatchID: 1}, fills[1])
	assert.Equal(t, event{Kind: "executed", OrderID: bb.OrderID, Side: Maker, Size: 2, Price: 100, ExecID: 3, MatchID: 2}, fills[2])
	assert.Equal(t, event{Kind: "executed", OrderID: taker, Side: Taker, Size: 2, Price: 100, ExecID: 4, MatchID: 2}, fills[3])

	assert.Nil(t, b.Order(a.OrderID))
	rest := b.Order(bb.OrderID)
	require.NotNil(t, rest)
	assert.Equal(t, int64(3), rest.OpenSize())
	assert.Equal(t, int64(3), b.BestAsk().OpenSize())
}

func TestTimePrioritySurvivesPartialCancel(t *testing.T) {
	b, rec, _ := newTestBook()
	a := b.CreateLimit(1, "A", Buy, 5, 50, GTC)
	bb := b.CreateLimit(1, "B", Buy, 5, 50, GTC)
	c := b.CreateLimit(1, "C", Buy, 5, 50, GTC)

	require.True(t, b.CancelSize(bb.OrderID, 2))
	rec.reset()

	r := b.CreateLimit(2, "S", Sell, 13, 50, GTC)
	assert.Equal(t, StatusFilled, r.Status)

	var makers []int64
	for _, e := range rec.only("executed") {
		if e.Side == Maker {
			makers = append(makers, e.OrderID)
		}
	}
	assert.Equal(t, []int64{a.OrderID, bb.OrderID, c.OrderID}, makers)
	assert.Equal(t, StateEmpty, b.State())
}

func TestPartialFillKeepsQueuePosition(t *testing.T) {
	b, _, _ := newTestBook()
	a := b.CreateLimit(1, "A", Sell, 10, 100, GTC)
	bb := b.CreateLimit(1, "B", Sell, 10, 100, GTC)

	b.CreateLimit(2, "x", Buy, 4, 100, IOC)
	require.Same(t, b.Order(a.OrderID), b.BestAsk().Head())
	assert.Equal(t, int64(6), b.BestAsk().Head().OpenSize())
	assert.Equal(t, bb.OrderID, b.BestAsk().Head().Next().ID())
}

func TestPricePriority(t *testing.T) {
	b, rec, _ := newTestBook()
	low := b.CreateLimit(1, "low", Buy, 5, 99, GTC)
	high := b.CreateLimit(1, "high", Buy, 5, 101, GTC)
	rec.reset()

	b.CreateLimit(2, "s", Sell, 5, 98, GTC)
	fills := rec.only("executed")
	require.Len(t, fills, 2)
	assert.Equal(t, high.OrderID, fills[0].OrderID)
	assert.Equal(t, int64(101), fills[0].Price, "fills at the resting price")
	assert.NotNil(t, b.Order(low.OrderID))
	assert.Equal(t, int64(99), b.BestBid().Price())
}

func TestLimitDoesNotTradeThroughItsPrice(t *testing.T) {
	b, _, _ := newTestBook()
	b.CreateLimit(1, "a", Sell, 5, 101, GTC)
	r := b.CreateLimit(2, "b", Buy, 5, 100, GTC)

	assert.Equal(t, StatusResting, r.Status)
	assert.Equal(t, int64(0), r.ExecutedSize)
	spread, ok := b.Spread()
	require.True(t, ok)
	assert.Equal(t, int64(1), spread)
	assert.Equal(t, StateNormal, b.State())
}

func TestIOCRemainderIsCanceled(t *testing.T) {
	b, rec, _ := newTestBook()
	b.CreateLimit(1, "a", Sell, 60, 100, GTC)
	rec.reset()

	r := b.CreateLimit(2, "ioc", Buy, 100, 100, IOC)
	assert.Equal(t, StatusCanceled, r.Status)
	assert.Equal(t, int64(60), r.ExecutedSize)
	assert.Equal(t, int64(40), r.CanceledSize)
	assert.Equal(t, int64(0), r.OpenSize)

	cancels := rec.only("canceled")
	require.Len(t, cancels, 1)
	assert.Equal(t, r.OrderID, cancels[0].OrderID)
	assert.Equal(t, "NO_LIQUIDITY", cancels[0].Reason)
	assert.Empty(t, rec.only("rested"))
	assert.Nil(t, b.BestBid())
}

func TestMarketOrderOnEmptyBook(t *testing.T) {
	b, rec, _ := newTestBook()
	r := b.CreateMarket(1, "m", Sell, 10)
	assert.Equal(t, StatusCanceled, r.Status)
	assert.Equal(t, []string{"accepted#1", "canceled#1", "terminated#1"}, rec.kinds())
	assert.Equal(t, StateEmpty, b.State())
}

func TestNewOrderValidation(t *testing.T) {
	base := NewOrderRequest{
		ClientID: 1, Security: "AAPL", Side: Buy, Size: 100, Price: 1000,
		Type: Limit, TimeInForce: GTC,
	}
	cases := []struct {
		name   string
		mutate func(*NewOrderRequest)
		want   RejectReason
	}{
		{"missing security", func(r *NewOrderRequest) { r.Security = "" }, RejectMissingField},
		{"bad symbol", func(r *NewOrderRequest) { r.Security = "AA PL" }, RejectBadSymbol},
		{"unknown symbol", func(r *NewOrderRequest) { r.Security = "MSFT" }, RejectUnknownSymbol},
		{"bad side", func(r *NewOrderRequest) { r.Side = 0 }, RejectBadSide},
		{"bad type", func(r *NewOrderRequest) { r.Type = 9 }, RejectBadType},
		{"bad tif", func(r *NewOrderRequest) { r.TimeInForce = 0 }, RejectBadTIF},
		{"zero size", func(r *NewOrderRequest) { r.Size = 0 }, RejectBadSize},
		{"negative size", func(r *NewOrderRequest) { r.Size = -5 }, RejectBadSize},
		{"bad lot", func(r *NewOrderRequest) { r.Size = 150 }, RejectBadLot},
		{"zero price", func(r *NewOrderRequest) { r.Price = 0 }, RejectBadPrice},
		{"off tick", func(r *NewOrderRequest) { r.Price = 1003 }, RejectBadPrice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewOrderBook("AAPL", Options{TickSize: 5, LotSize: 100})
			rec := &recorder{}
			b.AddListener(rec)

			req := base
			tc.mutate(&req)
			r := b.NewOrder(req)
			assert.Equal(t, StatusRejected, r.Status)
			assert.Equal(t, tc.want, r.RejectReason)
			require.Len(t, rec.events, 1)
			assert.Equal(t, tc.want.String(), rec.events[0].Reason)
			assert.Equal(t, 0, b.OrderCount())
		})
	}
}

func TestDuplicateIDsRejected(t *testing.T) {
	b, _, _ := newTestBook()
	first := b.CreateLimit(1, "dup", Buy, 5, 10, GTC)
	require.Equal(t, StatusResting, first.Status)

	r := b.CreateLimit(1, "dup", Buy, 5, 10, GTC)
	assert.Equal(t, RejectDuplicateClientOrderID, r.RejectReason)

	other := b.CreateLimit(2, "dup", Buy, 5, 10, GTC)
	assert.Equal(t, StatusResting, other.Status, "client order ids are scoped per client")

	r = b.NewOrder(NewOrderRequest{
		ClientID: 3, ExchangeOrderID: first.OrderID, Security: "AAPL",
		Side: Sell, Size: 1, Price: 20, Type: Limit, TimeInForce: GTC,
	})
	assert.Equal(t, RejectDuplicateExchangeOrderID, r.RejectReason)

	require.True(t, b.Cancel(first.OrderID))
	again := b.CreateLimit(1, "dup", Buy, 5, 10, GTC)
	assert.Equal(t, StatusResting, again.Status, "ids free up once the order is gone")
	assert.Equal(t, again.OrderID, b.OrderByClientID(1, "dup").ID())
}

func TestPinnedExchangeOrderIDAdvancesSequence(t *testing.T) {
	b, _, _ := newTestBook()
	r := b.NewOrder(NewOrderRequest{
		ClientID: 1, ExchangeOrderID: 40, Security: "AAPL",
		Side: Buy, Size: 1, Price: 10, Type: Limit, TimeInForce: GTC,
	})
	require.Equal(t, int64(40), r.OrderID)
	next := b.CreateLimit(1, "", Buy, 1, 10, GTC)
	assert.Equal(t, int64(41), next.OrderID)
}

func TestCancel(t *testing.T) {
	b, rec, _ := newTestBook()
	r := b.CreateLimit(1, "a", Sell, 10, 100, DAY)
	rec.reset()

	assert.False(t, b.Cancel(999))
	assert.Equal(t, []event{{Kind: "cancel_rejected", OrderID: 999, Reason: "NOT_FOUND"}}, rec.events)
	rec.reset()

	assert.True(t, b.CancelSize(r.OrderID, 4))
	assert.Equal(t, []string{"reduced#1"}, rec.kinds())
	assert.Equal(t, int64(6), b.BestAsk().OpenSize())
	rec.reset()

	assert.True(t, b.CancelSize(r.OrderID, 6))
	assert.Equal(t, []string{"canceled#1", "terminated#1"}, rec.kinds())
	assert.Nil(t, b.BestAsk(), "emptied level is removed")
	assert.False(t, b.Cancel(r.OrderID))
}

func TestReduce(t *testing.T) {
	b, rec, _ := newTestBook()
	r := b.CreateLimit(1, "a", Buy, 10, 100, GTC)
	id := r.OrderID

	cases := []struct {
		id   int64
		size int64
		want string
	}{
		{999, 5, "NOT_FOUND"},
		{id, -1, "NEGATIVE"},
		{id, 0, "ZERO"},
		{id, 11, "INCREASE"},
		{id, 10, "SUPERFLUOUS"},
	}
	for _, tc := range cases {
		rec.reset()
		assert.False(t, b.Reduce(tc.id, tc.size))
		require.Len(t, rec.events, 1)
		assert.Equal(t, "reduce_rejected", rec.events[0].Kind)
		assert.Equal(t, tc.want, rec.events[0].Reason)
	}

	rec.reset()
	require.True(t, b.Reduce(id, 7))
	assert.Equal(t, []event{{Kind: "reduced", OrderID: id, Size: 7}}, rec.events)
	assert.Equal(t, int64(7), b.BestBid().OpenSize())

	b.CreateLimit(2, "s", Sell, 3, 100, IOC)
	rec.reset()
	require.True(t, b.Reduce(id, 3), "reduce to executed size cancels")
	assert.Equal(t, []string{"canceled#1", "terminated#1"}, rec.kinds())
	assert.Nil(t, b.BestBid())
}

func TestHaltRejectsNewOrdersOnly(t *testing.T) {
	b, _, _ := newTestBook()
	r := b.CreateLimit(1, "a", Buy, 10, 100, GTC)
	b.Halt()
	require.True(t, b.IsHalted())

	rej := b.CreateLimit(1, "b", Buy, 10, 100, GTC)
	assert.Equal(t, RejectTradingHalted, rej.RejectReason)
	assert.True(t, b.Reduce(r.OrderID, 5))
	assert.True(t, b.Cancel(r.OrderID))

	b.Resume()
	assert.Equal(t, StatusResting, b.CreateLimit(1, "c", Buy, 10, 100, GTC).Status)
}

func TestPurgeAndExpireDay(t *testing.T) {
	b, rec, _ := newTestBook()
	b.CreateLimit(1, "d1", Buy, 1, 10, DAY)
	gtc := b.CreateLimit(1, "g1", Buy, 1, 10, GTC)
	b.CreateLimit(1, "d2", Buy, 1, 9, DAY)
	b.CreateLimit(1, "d3", Sell, 1, 20, DAY)
	ask := b.CreateLimit(1, "g2", Sell, 1, 21, GTC)
	rec.reset()

	assert.Equal(t, 3, b.ExpireDay())
	for _, e := range rec.only("canceled") {
		assert.Equal(t, "EXPIRED", e.Reason)
	}
	assert.Equal(t, 2, b.OrderCount())
	assert.Equal(t, []LevelView{{Price: 10, OpenSize: 1, Orders: 1}}, b.Depth(Buy, 0))
	assert.Equal(t, []LevelView{{Price: 21, OpenSize: 1, Orders: 1}}, b.Depth(Sell, 0))
	assert.NotNil(t, b.Order(gtc.OrderID))
	assert.NotNil(t, b.Order(ask.OrderID))

	rec.reset()
	assert.Equal(t, 2, b.Purge())
	for _, e := range rec.only("canceled") {
		assert.Equal(t, "PURGED", e.Reason)
	}
	assert.Equal(t, StateEmpty, b.State())
	assert.Equal(t, 0, b.OrderCount())
}

func TestDepthAndForEachOrder(t *testing.T) {
	b, _, _ := newTestBook()
	b.CreateLimit(1, "", Buy, 1, 98, GTC)
	b.CreateLimit(1, "", Buy, 2, 99, GTC)
	b.CreateLimit(1, "", Buy, 3, 99, GTC)
	b.CreateLimit(1, "", Sell, 4, 101, GTC)
	b.CreateLimit(1, "", Sell, 5, 102, GTC)

	assert.Equal(t, []LevelView{{Price: 99, OpenSize: 5, Orders: 2}}, b.Depth(Buy, 1))
	assert.Equal(t, []LevelView{{101, 4, 1}, {102, 5, 1}}, b.Depth(Sell, 5))

	var ids []int64
	b.ForEachOrder(func(o *Order) bool {
		ids = append(ids, o.ID())
		return true
	})
	assert.Equal(t, []int64{2, 3, 1, 4, 5}, ids)
}

func TestRestoreRebuildsQueues(t *testing.T) {
	src, _, _ := newTestBook()
	src.CreateLimit(1, "a", Buy, 10, 99, GTC)
	src.CreateLimit(2, "b", Buy, 10, 99, DAY)
	src.CreateLimit(3, "c", Sell, 10, 101, GTC)
	src.CreateLimit(4, "d", Sell, 4, 99, IOC)
	execID, matchID := src.Sequences()

	dst, rec, _ := newTestBook()
	for _, r := range src.RestingOrders() {
		require.True(t, dst.Restore(r))
	}
	dst.RestoreSequences(execID, matchID)

	assert.Empty(t, rec.events, "restore fires no events")
	assert.Equal(t, src.Depth(Buy, 0), dst.Depth(Buy, 0))
	assert.Equal(t, src.Depth(Sell, 0), dst.Depth(Sell, 0))
	assert.Equal(t, src.RestingOrders(), dst.RestingOrders())
	assert.Equal(t, int64(6), dst.Order(1).OpenSize())
	assert.NotNil(t, dst.OrderByClientID(2, "b"))

	r := dst.CreateMarket(5, "m", Sell, 8)
	assert.Equal(t, int64(8), r.ExecutedSize)
	assert.Equal(t, int64(4), r.OrderID, "order ids continue after the restored ones")
	fills := rec.only("executed")
	require.NotEmpty(t, fills)
	assert.Equal(t, int64(1), fills[0].OrderID)
	assert.Equal(t, execID+1, fills[0].ExecID)
	assert.Equal(t, matchID+1, fills[0].MatchID)

	assert.False(t, dst.Restore(RestingOrder{ID: 2, Side: Buy, TimeInForce: GTC, Price: 1, OriginalSize: 1, TotalSize: 1}))
}

func TestPoolExhaustionIsBackpressure(t *testing.T) {
	orders := &stackPool[Order]{max: 1}
	b := NewOrderBook("AAPL", Options{Orders: orders})
	rec := &recorder{}
	b.AddListener(rec)

	require.Equal(t, StatusResting, b.CreateLimit(1, "", Buy, 1, 10, GTC).Status)
	r := b.CreateLimit(1, "", Buy, 1, 10, GTC)
	assert.Equal(t, StatusNoResources, r.Status)
	assert.Len(t, rec.events, 2, "nothing fired for the refused order")

	levels := &stackPool[PriceLevel]{max: 1}
	b = NewOrderBook("AAPL", Options{Levels: levels})
	require.Equal(t, StatusResting, b.CreateLimit(1, "", Buy, 1, 10, GTC).Status)
	assert.Equal(t, StatusNoResources, b.CreateLimit(1, "", Buy, 1, 11, GTC).Status)
	m := b.CreateMarket(2, "", Sell, 5)
	assert.Equal(t, StatusCanceled, m.Status, "market orders need no level")
	assert.Equal(t, int64(1), m.ExecutedSize)
}

func TestRecycledOrderStartsClean(t *testing.T) {
	orders := &stackPool[Order]{}
	levels := &stackPool[PriceLevel]{}
	b := NewOrderBook("AAPL", Options{Orders: orders, Levels: levels})

	b.CreateLimit(1, "a", Sell, 5, 100, GTC)
	b.CreateLimit(1, "b", Sell, 5, 100, GTC)
	b.CreateLimit(2, "c", Buy, 5, 100, GTC)
	require.Len(t, orders.free, 2, "maker and taker are back in the pool")
	require.Empty(t, levels.free, "level still holds b")

	o := orders.Get()
	o.Init(9, "", 0, "AAPL", Buy, 3, 100, Limit, GTC)
	assert.Equal(t, int64(0), o.ExecutedSize())
	assert.Equal(t, int64(0), o.CanceledSize())
	assert.Equal(t, int64(3), o.OpenSize())
	assert.Nil(t, o.PriceLevel())
	assert.Nil(t, o.Next())
	assert.Nil(t, o.prev)
	assert.Empty(t, o.observers)
	assert.Nil(t, o.book)
	orders.Release(o)

	b.Purge()
	assert.Len(t, levels.free, 1, "emptied level goes back too")
}

func BenchmarkMatchTopOfBook(b *testing.B) {
	book := NewOrderBook("AAPL", Options{Clock: &fixedClock{now: 1}})
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		book.CreateLimit(1, "", Sell, 10, 100, GTC)
		book.CreateLimit(2, "", Buy, 10, 100, GTC)
	}
}

func BenchmarkRestAndCancel(b *testing.B) {
	book := NewOrderBook("AAPL", Options{Clock: &fixedClock{now: 1}})
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r := book.CreateLimit(1, "", Buy, 10, int64(100+i%64), GTC)
		book.Cancel(r.OrderID)
	}
}
