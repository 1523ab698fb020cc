package grpcserver

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"exsim/domain/orderbook"
	"exsim/service"
)

// Server adapts the book services to gRPC. Prices on the wire are decimal
// strings; the books see integers with PriceScale implied decimals.
type Server struct {
	reg   *service.Registry
	scale int32
	log   logrus.FieldLogger
}

func NewServer(reg *service.Registry, priceScale int32, log logrus.FieldLogger) *Server {
	return &Server{reg: reg, scale: priceScale, log: log.WithField("component", "grpc")}
}

// NewGRPCServer builds a grpc.Server with s registered and request
// logging installed.
func NewGRPCServer(s *Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(s.logRequests))
	g := grpc.NewServer(opts...)
	RegisterOrderServiceServer(g, s)
	return g
}

func (s *Server) logRequests(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	entry := s.log.WithFields(logrus.Fields{
		"method":   info.FullMethod,
		"code":     status.Code(err).String(),
		"duration": time.Since(start),
	})
	if err != nil && status.Code(err) == codes.Internal {
		entry.WithError(err).Error("request failed")
	} else {
		entry.Debug("request")
	}
	return resp, err
}

func (s *Server) book(in *structpb.Struct) (*service.OrderService, error) {
	sec := stringField(in, "security")
	if sec == "" {
		return nil, status.Error(codes.InvalidArgument, "security is required")
	}
	svc, err := s.reg.Get(sec)
	if err != nil {
		return nil, toStatus(err)
	}
	return svc, nil
}

// -------------------- Commands --------------------

// PlaceOrder takes security, client_id, client_order_id, side, type,
// time_in_force, size and price. Domain rejects are answered with
// status REJECTED, not a gRPC error.
func (s *Server) PlaceOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	svc, err := s.book(in)
	if err != nil {
		return nil, err
	}

	side, ok := parseSide(stringField(in, "side"))
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unknown side %q", stringField(in, "side"))
	}
	typ, ok := parseType(stringField(in, "type"))
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unknown type %q", stringField(in, "type"))
	}
	tif, ok := parseTIF(stringField(in, "time_in_force"))
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unknown time_in_force %q", stringField(in, "time_in_force"))
	}
	if typ == orderbook.Market {
		tif = orderbook.IOC
	}
	clientID, err := int64Field(in, "client_id")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	size, err := int64Field(in, "size")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	price, err := toTicks(in, "price", s.scale)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	rep, err := svc.PlaceOrder(ctx, service.PlaceRequest{
		ClientID:      clientID,
		ClientOrderID: stringField(in, "client_order_id"),
		Side:          side,
		Type:          typ,
		TimeInForce:   tif,
		Size:          size,
		Price:         price,
	})
	if err != nil {
		return nil, toStatus(err)
	}

	fields := map[string]*structpb.Value{
		"order_id":      int64Value(rep.OrderID),
		"status":        structpb.NewStringValue(rep.Status.String()),
		"executed_size": int64Value(rep.ExecutedSize),
		"open_size":     int64Value(rep.OpenSize),
		"canceled_size": int64Value(rep.CanceledSize),
	}
	if rep.Status == orderbook.StatusRejected {
		fields["reject_reason"] = structpb.NewStringValue(rep.RejectReason.String())
	}
	return &structpb.Struct{Fields: fields}, nil
}

// CancelOrder takes security, order_id and an optional size; no size
// cancels the whole order.
func (s *Server) CancelOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	svc, err := s.book(in)
	if err != nil {
		return nil, err
	}
	id, err := int64Field(in, "order_id")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	size, err := int64Field(in, "size")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := svc.CancelOrder(ctx, id, size); err != nil {
		return nil, toStatus(err)
	}
	return okStruct(), nil
}

// ReduceOrder takes security, order_id and total_size.
func (s *Server) ReduceOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	svc, err := s.book(in)
	if err != nil {
		return nil, err
	}
	id, err := int64Field(in, "order_id")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	total, err := int64Field(in, "total_size")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := svc.ReduceOrder(ctx, id, total); err != nil {
		return nil, toStatus(err)
	}
	return okStruct(), nil
}

// -------------------- Queries --------------------

// GetOrder takes security and either order_id or client_id plus
// client_order_id.
func (s *Server) GetOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	svc, err := s.book(in)
	if err != nil {
		return nil, err
	}
	id, err := int64Field(in, "order_id")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	var (
		r     orderbook.RestingOrder
		found bool
	)
	if id != 0 {
		r, found, err = svc.Lookup(ctx, id)
	} else {
		clientID, cerr := int64Field(in, "client_id")
		if cerr != nil {
			return nil, status.Error(codes.InvalidArgument, cerr.Error())
		}
		r, found, err = svc.LookupClient(ctx, clientID, stringField(in, "client_order_id"))
	}
	if err != nil {
		return nil, toStatus(err)
	}
	if !found {
		return nil, status.Error(codes.NotFound, "order not found")
	}
	return s.orderStruct(svc.Security(), r), nil
}

func (s *Server) orderStruct(security string, r orderbook.RestingOrder) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"security":        structpb.NewStringValue(security),
		"order_id":        int64Value(r.ID),
		"client_id":       int64Value(r.ClientID),
		"client_order_id": structpb.NewStringValue(r.ClientOrderID),
		"side":            structpb.NewStringValue(r.Side.String()),
		"time_in_force":   structpb.NewStringValue(r.TimeInForce.String()),
		"price":           structpb.NewStringValue(fromTicks(r.Price, s.scale)),
		"original_size":   int64Value(r.OriginalSize),
		"total_size":      int64Value(r.TotalSize),
		"executed_size":   int64Value(r.ExecutedSize),
		"open_size":       int64Value(r.TotalSize - r.ExecutedSize),
		"accept_time":     int64Value(r.AcceptTime),
	}}
}

// GetDepth takes security and an optional levels limit.
func (s *Server) GetDepth(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	svc, err := s.book(in)
	if err != nil {
		return nil, err
	}
	limit, err := int64Field(in, "levels")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	bids, asks, err := svc.Depth(ctx, int(limit))
	if err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"security": structpb.NewStringValue(svc.Security()),
		"bids":     s.levels(bids),
		"asks":     s.levels(asks),
	}}, nil
}

func (s *Server) levels(views []orderbook.LevelView) *structpb.Value {
	out := make([]*structpb.Value, 0, len(views))
	for _, v := range views {
		out = append(out, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"price":  structpb.NewStringValue(fromTicks(v.Price, s.scale)),
			"size":   int64Value(v.OpenSize),
			"orders": structpb.NewNumberValue(float64(v.Orders)),
		}}))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: out})
}

// -------------------- Errors --------------------

func okStruct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"status": structpb.NewStringValue("ok"),
	}}
}

func toStatus(err error) error {
	var (
		cre *service.CancelRejectedError
		rre *service.ReduceRejectedError
	)
	switch {
	case errors.Is(err, service.ErrUnknownSecurity):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrBackpressure):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, service.ErrStopped):
		return status.Error(codes.Unavailable, err.Error())
	case errors.As(err, &cre):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &rre):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, err.Error())
}
