// Package events is the outbound form of book events: what the outbox
// stores and the broadcaster publishes.
package events

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const Version = 1

type Type string

const (
	Accepted       Type = "order.accepted"
	Rested         Type = "order.rested"
	Rejected       Type = "order.rejected"
	Reduced        Type = "order.reduced"
	Canceled       Type = "order.canceled"
	Executed       Type = "order.executed"
	Terminated     Type = "order.terminated"
	CancelRejected Type = "cancel.rejected"
	ReduceRejected Type = "reduce.rejected"
)

// Event is one book event. Fields that do not apply to its Type are zero.
type Event struct {
	Session       string
	IntentSeq     uint64
	Type          Type
	Time          int64
	Security      string
	OrderID       int64
	ClientID      int64
	ClientOrderID string
	Side          string
	Size          int64
	Price         int64
	ExecuteSide   string
	ExecutionID   int64
	MatchID       int64
	Reason        string
}

// NewSession names one run of the process; every event it emits carries it.
func NewSession() string {
	return uuid.NewString()
}

// Marshal encodes e as a protobuf Struct. 64-bit integers are strings, as
// in the proto3 JSON mapping, so no consumer loses precision.
func Marshal(e Event) ([]byte, error) {
	fields := map[string]*structpb.Value{
		"v":        structpb.NewNumberValue(Version),
		"session":  structpb.NewStringValue(e.Session),
		"intent":   structpb.NewStringValue(strconv.FormatUint(e.IntentSeq, 10)),
		"type":     structpb.NewStringValue(string(e.Type)),
		"time":     int64Value(e.Time),
		"security": structpb.NewStringValue(e.Security),
		"order_id": int64Value(e.OrderID),
	}
	if e.ClientID != 0 {
		fields["client_id"] = int64Value(e.ClientID)
	}
	putString(fields, "client_order_id", e.ClientOrderID)
	putString(fields, "side", e.Side)
	if e.Size != 0 {
		fields["size"] = int64Value(e.Size)
	}
	if e.Price != 0 {
		fields["price"] = int64Value(e.Price)
	}
	putString(fields, "execute_side", e.ExecuteSide)
	if e.ExecutionID != 0 {
		fields["execution_id"] = int64Value(e.ExecutionID)
		fields["match_id"] = int64Value(e.MatchID)
	}
	putString(fields, "reason", e.Reason)

	b, err := proto.Marshal(&structpb.Struct{Fields: fields})
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return b, nil
}

func Unmarshal(b []byte) (Event, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	f := s.GetFields()
	if v := f["v"].GetNumberValue(); v != Version {
		return Event{}, fmt.Errorf("unmarshal event: unsupported version %v", v)
	}

	var e Event
	var err error
	e.Session = f["session"].GetStringValue()
	e.Type = Type(f["type"].GetStringValue())
	e.Security = f["security"].GetStringValue()
	e.ClientOrderID = f["client_order_id"].GetStringValue()
	e.Side = f["side"].GetStringValue()
	e.ExecuteSide = f["execute_side"].GetStringValue()
	e.Reason = f["reason"].GetStringValue()

	if s := f["intent"].GetStringValue(); s != "" {
		if e.IntentSeq, err = strconv.ParseUint(s, 10, 64); err != nil {
			return Event{}, fmt.Errorf("unmarshal event intent: %w", err)
		}
	}
	for name, dst := range map[string]*int64{
		"time":         &e.Time,
		"order_id":     &e.OrderID,
		"client_id":    &e.ClientID,
		"size":         &e.Size,
		"price":        &e.Price,
		"execution_id": &e.ExecutionID,
		"match_id":     &e.MatchID,
	} {
		v, ok := f[name]
		if !ok {
			continue
		}
		if *dst, err = strconv.ParseInt(v.GetStringValue(), 10, 64); err != nil {
			return Event{}, fmt.Errorf("unmarshal event %s: %w", name, err)
		}
	}
	return e, nil
}

func int64Value(v int64) *structpb.Value {
	return structpb.NewStringValue(strconv.FormatInt(v, 10))
}

func putString(fields map[string]*structpb.Value, name, v string) {
	if v != "" {
		fields[name] = structpb.NewStringValue(v)
	}
}
