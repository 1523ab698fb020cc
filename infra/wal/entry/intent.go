package entry

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Intent is the payload of a Record: what was asked of a book, before the
// book decided anything. Enum fields carry the domain's numeric values.
type Intent struct {
	Security      string
	OrderID       int64
	ClientID      int64
	ClientOrderID string
	Side          uint8
	Type          uint8
	TimeInForce   uint8
	// Size is the order size, the size to cancel or the new total,
	// depending on the record type.
	Size  int64
	Price int64
}

const (
	fieldSecurity protowire.Number = iota + 1
	fieldOrderID
	fieldClientID
	fieldClientOrderID
	fieldSide
	fieldType
	fieldTimeInForce
	fieldSize
	fieldPrice
)

// AppendIntent encodes in in protobuf wire format. Zero fields are
// omitted, as proto3 would.
func AppendIntent(b []byte, in Intent) []byte {
	if in.Security != "" {
		b = protowire.AppendTag(b, fieldSecurity, protowire.BytesType)
		b = protowire.AppendString(b, in.Security)
	}
	b = appendSint(b, fieldOrderID, in.OrderID)
	b = appendSint(b, fieldClientID, in.ClientID)
	if in.ClientOrderID != "" {
		b = protowire.AppendTag(b, fieldClientOrderID, protowire.BytesType)
		b = protowire.AppendString(b, in.ClientOrderID)
	}
	b = appendUint(b, fieldSide, uint64(in.Side))
	b = appendUint(b, fieldType, uint64(in.Type))
	b = appendUint(b, fieldTimeInForce, uint64(in.TimeInForce))
	b = appendSint(b, fieldSize, in.Size)
	b = appendSint(b, fieldPrice, in.Price)
	return b
}

func appendSint(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// DecodeIntent parses a payload written by AppendIntent. Unknown fields
// are skipped.
func DecodeIntent(b []byte) (Intent, error) {
	var in Intent
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Intent{}, fmt.Errorf("decode intent tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && (num == fieldSecurity || num == fieldClientOrderID):
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return Intent{}, fmt.Errorf("decode intent field %d: %w", num, protowire.ParseError(n))
			}
			if num == fieldSecurity {
				in.Security = s
			} else {
				in.ClientOrderID = s
			}
			b = b[n:]

		case typ == protowire.VarintType && num >= fieldOrderID && num <= fieldPrice:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Intent{}, fmt.Errorf("decode intent field %d: %w", num, protowire.ParseError(n))
			}
			switch num {
			case fieldOrderID:
				in.OrderID = protowire.DecodeZigZag(v)
			case fieldClientID:
				in.ClientID = protowire.DecodeZigZag(v)
			case fieldSide:
				in.Side = uint8(v)
			case fieldType:
				in.Type = uint8(v)
			case fieldTimeInForce:
				in.TimeInForce = uint8(v)
			case fieldSize:
				in.Size = protowire.DecodeZigZag(v)
			case fieldPrice:
				in.Price = protowire.DecodeZigZag(v)
			}
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Intent{}, fmt.Errorf("skip intent field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return in, nil
}
