package grpcserver

import (
	"context"
	"io"
	"net"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"exsim/domain/orderbook"
	"exsim/infra/memory"
	"exsim/infra/sequence"
	entrywal "exsim/infra/wal/entry"
	exitwal "exsim/infra/wal/exit"
	"exsim/service"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	dir := t.TempDir()
	w, err := entrywal.Open(entrywal.Config{Dir: filepath.Join(dir, "wal"), SegmentSize: 1 << 20})
	require.NoError(t, err)
	out, err := exitwal.Open(filepath.Join(dir, "outbox"), exitwal.Options{NoSync: true})
	require.NoError(t, err)

	reg := service.NewRegistry()
	deps := service.Deps{
		WAL:      w,
		Outbox:   out,
		Orders:   memory.NewPool(0, 0, func() *orderbook.Order { return new(orderbook.Order) }),
		Levels:   memory.NewPool(0, 0, func() *orderbook.PriceLevel { return new(orderbook.PriceLevel) }),
		OrderIDs: sequence.New(0),
		Log:      log,
	}
	require.NoError(t, reg.Add(service.NewOrderService(service.BookConfig{Security: "BTC-USD", TickSize: 50, LotSize: 1}, deps)))
	reg.StartAll()

	lis := bufconn.Listen(1 << 20)
	g := NewGRPCServer(NewServer(reg, 2, log))
	go func() { _ = g.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		g.Stop()
		reg.StopAll()
		_ = w.Close()
		_ = out.Close()
	})
	return NewClient(conn)
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func field(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func TestPlaceMatchAndDepth(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	resp, err := c.PlaceOrder(ctx, mustStruct(t, map[string]any{
		"security": "BTC-USD", "client_id": "7", "client_order_id": "a1",
		"side": "SELL", "size": 3, "price": "100.50",
	}))
	require.NoError(t, err)
	assert.Equal(t, "RESTING", field(resp, "status"))
	assert.Equal(t, "1", field(resp, "order_id"))

	resp, err = c.PlaceOrder(ctx, mustStruct(t, map[string]any{
		"security": "BTC-USD", "client_id": 8, "side": "B", "type": "MARKET", "size": "1",
	}))
	require.NoError(t, err)
	assert.Equal(t, "FILLED", field(resp, "status"))
	assert.Equal(t, "1", field(resp, "executed_size"))

	depth, err := c.GetDepth(ctx, mustStruct(t, map[string]any{"security": "BTC-USD"}))
	require.NoError(t, err)
	asks := depth.GetFields()["asks"].GetListValue().GetValues()
	require.Len(t, asks, 1)
	lvl := asks[0].GetStructValue()
	assert.Equal(t, "100.5", field(lvl, "price"))
	assert.Equal(t, "2", field(lvl, "size"))
	assert.Empty(t, depth.GetFields()["bids"].GetListValue().GetValues())

	order, err := c.GetOrder(ctx, mustStruct(t, map[string]any{
		"security": "BTC-USD", "client_id": "7", "client_order_id": "a1",
	}))
	require.NoError(t, err)
	assert.Equal(t, "1", field(order, "order_id"))
	assert.Equal(t, "2", field(order, "open_size"))
	assert.Equal(t, "SELL", field(order, "side"))
}

func TestDomainRejectIsNotAnError(t *testing.T) {
	c := newTestClient(t)
	// 100.25 is 10025 ticks, off the 50 tick grid.
	resp, err := c.PlaceOrder(context.Background(), mustStruct(t, map[string]any{
		"security": "BTC-USD", "side": "BUY", "size": 1, "price": "100.25",
	}))
	require.NoError(t, err)
	assert.Equal(t, "REJECTED", field(resp, "status"))
	assert.Equal(t, orderbook.RejectBadPrice.String(), field(resp, "reject_reason"))
}

func TestStatusCodes(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		code codes.Code
	}{
		{"unknown security", func() error {
			_, err := c.PlaceOrder(ctx, mustStruct(t, map[string]any{"security": "ETH-USD", "side": "BUY", "size": 1, "price": "1"}))
			return err
		}, codes.NotFound},
		{"missing security", func() error {
			_, err := c.GetDepth(ctx, mustStruct(t, map[string]any{}))
			return err
		}, codes.InvalidArgument},
		{"bad side", func() error {
			_, err := c.PlaceOrder(ctx, mustStruct(t, map[string]any{"security": "BTC-USD", "side": "LONG", "size": 1}))
			return err
		}, codes.InvalidArgument},
		{"too many decimals", func() error {
			_, err := c.PlaceOrder(ctx, mustStruct(t, map[string]any{"security": "BTC-USD", "side": "BUY", "size": 1, "price": "1.005"}))
			return err
		}, codes.InvalidArgument},
		{"fractional size", func() error {
			_, err := c.PlaceOrder(ctx, mustStruct(t, map[string]any{"security": "BTC-USD", "side": "BUY", "size": 1.5, "price": "1"}))
			return err
		}, codes.InvalidArgument},
		{"cancel unknown", func() error {
			_, err := c.CancelOrder(ctx, mustStruct(t, map[string]any{"security": "BTC-USD", "order_id": "99"}))
			return err
		}, codes.NotFound},
		{"reduce unknown", func() error {
			_, err := c.ReduceOrder(ctx, mustStruct(t, map[string]any{"security": "BTC-USD", "order_id": "99", "total_size": 1}))
			return err
		}, codes.FailedPrecondition},
		{"get unknown", func() error {
			_, err := c.GetOrder(ctx, mustStruct(t, map[string]any{"security": "BTC-USD", "order_id": "99"}))
			return err
		}, codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestCancelAndReduce(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.PlaceOrder(ctx, mustStruct(t, map[string]any{
		"security": "BTC-USD", "side": "BUY", "size": 10, "price": "99", "time_in_force": "DAY",
	}))
	require.NoError(t, err)

	_, err = c.ReduceOrder(ctx, mustStruct(t, map[string]any{"security": "BTC-USD", "order_id": 1, "total_size": 6}))
	require.NoError(t, err)
	_, err = c.CancelOrder(ctx, mustStruct(t, map[string]any{"security": "BTC-USD", "order_id": 1, "size": 2}))
	require.NoError(t, err)

	order, err := c.GetOrder(ctx, mustStruct(t, map[string]any{"security": "BTC-USD", "order_id": 1}))
	require.NoError(t, err)
	assert.Equal(t, "4", field(order, "total_size"))
	assert.Equal(t, "DAY", field(order, "time_in_force"))
	assert.Equal(t, "99", field(order, "price"))

	_, err = c.CancelOrder(ctx, mustStruct(t, map[string]any{"security": "BTC-USD", "order_id": 1}))
	require.NoError(t, err)
	_, err = c.GetOrder(ctx, mustStruct(t, map[string]any{"security": "BTC-USD", "order_id": 1}))
	assert.Equal(t, codes.NotFound, status.Code(err))
}
