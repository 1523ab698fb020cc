package grpcserver

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"exsim/domain/orderbook"
)

// -------------------- Fields --------------------

func stringField(in *structpb.Struct, key string) string {
	v, ok := in.GetFields()[key]
	if !ok {
		return ""
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
	}
	return ""
}

// int64Field accepts a decimal string or a whole JSON number. Missing
// fields read as zero.
func int64Field(in *structpb.Struct, key string) (int64, error) {
	v, ok := in.GetFields()[key]
	if !ok {
		return 0, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		if k.StringValue == "" {
			return 0, nil
		}
		n, err := strconv.ParseInt(k.StringValue, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return n, nil
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
			return 0, fmt.Errorf("%s: %v is not a whole number", key, f)
		}
		return int64(f), nil
	case *structpb.Value_NullValue:
		return 0, nil
	}
	return 0, fmt.Errorf("%s: unsupported value", key)
}

func int64Value(v int64) *structpb.Value {
	return structpb.NewStringValue(strconv.FormatInt(v, 10))
}

// -------------------- Prices --------------------

// toTicks turns a decimal price into the book's integer price with scale
// implied decimals. Digits beyond the scale are an error, not rounding.
func toTicks(in *structpb.Struct, key string, scale int32) (int64, error) {
	s := stringField(in, key)
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	shifted := d.Shift(scale)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%s: %s has more than %d decimals", key, s, scale)
	}
	if shifted.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || shifted.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, fmt.Errorf("%s: %s out of range", key, s)
	}
	return shifted.IntPart(), nil
}

func fromTicks(price int64, scale int32) string {
	return decimal.New(price, -scale).String()
}

// -------------------- Enums --------------------

type code interface {
	comparable
	Char() byte
	FixCode() string
	String() string
}

// parseCode matches a name, a one-letter code or a FIX code. Empty reads
// as def.
func parseCode[T code](s string, def T, all ...T) (T, bool) {
	if s == "" {
		return def, true
	}
	for _, v := range all {
		if strings.EqualFold(s, v.String()) {
			return v, true
		}
	}
	for _, v := range all {
		if len(s) == 1 && s[0] == v.Char() {
			return v, true
		}
		if s == v.FixCode() {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func parseSide(s string) (orderbook.Side, bool) {
	return parseCode(s, 0, orderbook.Buy, orderbook.Sell)
}

func parseType(s string) (orderbook.Type, bool) {
	return parseCode(s, orderbook.Limit, orderbook.Limit, orderbook.Market)
}

func parseTIF(s string) (orderbook.TimeInForce, bool) {
	return parseCode(s, orderbook.GTC, orderbook.GTC, orderbook.IOC, orderbook.DAY)
}
