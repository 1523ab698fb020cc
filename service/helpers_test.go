package service

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"exsim/domain/orderbook"
	"exsim/events"
	"exsim/infra/memory"
	"exsim/infra/sequence"
	entrywal "exsim/infra/wal/entry"
	exitwal "exsim/infra/wal/exit"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// venue is one process worth of services over a set of directories that
// outlive it.
type venue struct {
	t        testing.TB
	dir      string
	wal      *entrywal.WAL
	outbox   *exitwal.ExitWAL
	orderIDs *sequence.Sequencer
	reg      *Registry
	closed   bool
}

func openVenue(t testing.TB, dir string, maxOrders int64, securities ...string) *venue {
	t.Helper()
	w, err := entrywal.Open(entrywal.Config{Dir: filepath.Join(dir, "wal"), SegmentSize: 1 << 20})
	require.NoError(t, err)
	out, err := exitwal.Open(filepath.Join(dir, "outbox"), exitwal.Options{NoSync: true})
	require.NoError(t, err)

	v := &venue{t: t, dir: dir, wal: w, outbox: out, orderIDs: sequence.New(0), reg: NewRegistry()}
	deps := Deps{
		WAL:      w,
		Outbox:   out,
		Orders:   memory.NewPool(maxOrders, 0, func() *orderbook.Order { return new(orderbook.Order) }),
		Levels:   memory.NewPool(0, 0, func() *orderbook.PriceLevel { return new(orderbook.PriceLevel) }),
		OrderIDs: v.orderIDs,
		Session:  events.NewSession(),
		Log:      quietLogger(),
	}
	for _, sec := range securities {
		require.NoError(t, v.reg.Add(NewOrderService(BookConfig{Security: sec, TickSize: 1, LotSize: 1}, deps)))
	}
	t.Cleanup(v.close)
	return v
}

func (v *venue) recoverAndStart() RecoverStats {
	v.t.Helper()
	stats, err := Recover(v.reg, v.orderIDs, filepath.Join(v.dir, "snapshots"), filepath.Join(v.dir, "wal"), quietLogger())
	require.NoError(v.t, err)
	v.reg.StartAll()
	return stats
}

func (v *venue) close() {
	if v.closed {
		return
	}
	v.closed = true
	v.reg.StopAll()
	_ = v.wal.Close()
	_ = v.outbox.Close()
}

func (v *venue) book(sec string) *OrderService {
	s, err := v.reg.Get(sec)
	require.NoError(v.t, err)
	return s
}

func (v *venue) outboxEvents() []events.Event {
	v.t.Helper()
	var out []events.Event
	err := v.outbox.ScanByState(func(rec exitwal.ExitRecord) error {
		e, err := events.Unmarshal(rec.Payload)
		if err != nil {
			return err
		}
		out = append(out, e)
		return nil
	}, exitwal.StateNew)
	require.NoError(v.t, err)
	return out
}

func limit(side orderbook.Side, size, price int64) PlaceRequest {
	return PlaceRequest{
		ClientID:    1,
		Side:        side,
		Type:        orderbook.Limit,
		TimeInForce: orderbook.GTC,
		Size:        size,
		Price:       price,
	}
}

func place(t *testing.T, s *OrderService, req PlaceRequest) orderbook.Report {
	t.Helper()
	rep, err := s.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	return rep
}
