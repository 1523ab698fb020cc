package orderbook

import "fmt"

// codeTable is the reverse lookup for one closed set of wire codes.
// Tables are built once from init; a duplicate code is a build defect
// and aborts startup.
type codeTable[T comparable] struct {
	name   string
	byChar map[byte]T
	byFix  map[string]T
}

func newCodeTable[T comparable](name string) *codeTable[T] {
	return &codeTable[T]{
		name:   name,
		byChar: make(map[byte]T),
		byFix:  make(map[string]T),
	}
}

func (t *codeTable[T]) register(v T, c byte, fix string) {
	if prev, ok := t.byChar[c]; ok {
		panic(fmt.Sprintf("orderbook: duplicate %s char code %q (%v, %v)", t.name, c, prev, v))
	}
	t.byChar[c] = v
	if fix == "" {
		return
	}
	if prev, ok := t.byFix[fix]; ok {
		panic(fmt.Sprintf("orderbook: duplicate %s fix code %q (%v, %v)", t.name, fix, prev, v))
	}
	t.byFix[fix] = v
}

func (t *codeTable[T]) char(c byte) (T, bool) {
	v, ok := t.byChar[c]
	return v, ok
}

func (t *codeTable[T]) fix(code string) (T, bool) {
	v, ok := t.byFix[code]
	return v, ok
}

// ---- Side ----

type Side uint8

const (
	Buy Side = iota + 1
	Sell
)

var sideCodes = newCodeTable[Side]("side")

func (s Side) Valid() bool { return s == Buy || s == Sell }

func (s Side) Char() byte {
	switch s {
	case Buy:
		return 'B'
	case Sell:
		return 'S'
	}
	return 0
}

func (s Side) FixCode() string {
	switch s {
	case Buy:
		return "1"
	case Sell:
		return "2"
	}
	return ""
}

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	}
	return "UNKNOWN"
}

// Index is 0 for Buy and 1 for Sell.
func (s Side) Index() int {
	if s == Sell {
		return 1
	}
	return 0
}

func (s Side) Other() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) IsBuy() bool  { return s == Buy }
func (s Side) IsSell() bool { return s == Sell }

// IsInside reports whether an order on side s limited at price can trade
// against market: a buy at or above it, a sell at or below it.
func (s Side) IsInside(price, market int64) bool {
	if s == Buy {
		return price >= market
	}
	return price <= market
}

// IsOutside is the negation of IsInside.
func (s Side) IsOutside(price, market int64) bool {
	if s == Buy {
		return price < market
	}
	return price > market
}

func SideFromChar(c byte) (Side, bool)        { return sideCodes.char(c) }
func SideFromFixCode(code string) (Side, bool) { return sideCodes.fix(code) }

// ---- Type ----

type Type uint8

const (
	Market Type = iota + 1
	Limit
)

var typeCodes = newCodeTable[Type]("type")

func (t Type) Valid() bool { return t == Market || t == Limit }

func (t Type) Char() byte {
	switch t {
	case Market:
		return 'M'
	case Limit:
		return 'L'
	}
	return 0
}

func (t Type) FixCode() string {
	switch t {
	case Market:
		return "1"
	case Limit:
		return "2"
	}
	return ""
}

func (t Type) String() string {
	switch t {
	case Market:
		return "MARKET"
	case Limit:
		return "LIMIT"
	}
	return "UNKNOWN"
}

func TypeFromChar(c byte) (Type, bool)        { return typeCodes.char(c) }
func TypeFromFixCode(code string) (Type, bool) { return typeCodes.fix(code) }

// ---- TimeInForce ----

type TimeInForce uint8

const (
	GTC TimeInForce = iota + 1
	IOC
	DAY
)

var tifCodes = newCodeTable[TimeInForce]("time-in-force")

func (t TimeInForce) Valid() bool { return t >= GTC && t <= DAY }

func (t TimeInForce) Char() byte {
	switch t {
	case GTC:
		return 'T'
	case IOC:
		return 'I'
	case DAY:
		return 'D'
	}
	return 0
}

func (t TimeInForce) FixCode() string {
	switch t {
	case GTC:
		return "1"
	case IOC:
		return "3"
	case DAY:
		return "0"
	}
	return ""
}

func (t TimeInForce) String() string {
	switch t {
	case GTC:
		return "GTC"
	case IOC:
		return "IOC"
	case DAY:
		return "DAY"
	}
	return "UNKNOWN"
}

func TimeInForceFromChar(c byte) (TimeInForce, bool)        { return tifCodes.char(c) }
func TimeInForceFromFixCode(code string) (TimeInForce, bool) { return tifCodes.fix(code) }

// ---- ExecuteSide ----

type ExecuteSide uint8

const (
	Taker ExecuteSide = iota + 1
	Maker
)

var execSideCodes = newCodeTable[ExecuteSide]("execute side")

func (e ExecuteSide) Char() byte {
	switch e {
	case Taker:
		return 'T'
	case Maker:
		return 'M'
	}
	return 0
}

func (e ExecuteSide) FixCode() string {
	switch e {
	case Taker:
		return "Y"
	case Maker:
		return "N"
	}
	return ""
}

func (e ExecuteSide) String() string {
	switch e {
	case Taker:
		return "TAKER"
	case Maker:
		return "MAKER"
	}
	return "UNKNOWN"
}

func ExecuteSideFromChar(c byte) (ExecuteSide, bool)        { return execSideCodes.char(c) }
func ExecuteSideFromFixCode(code string) (ExecuteSide, bool) { return execSideCodes.fix(code) }

// ---- CancelReason ----

type CancelReason uint8

const (
	CancelMissed CancelReason = iota + 1
	CancelUser
	CancelNoLiquidity
	CancelPrice
	CancelCrossed
	CancelPurged
	CancelExpired
	CancelRolled
)

var cancelReasons = [...]struct {
	char byte
	name string
}{
	CancelMissed:      {'M', "MISSED"},
	CancelUser:        {'U', "USER"},
	CancelNoLiquidity: {'L', "NO_LIQUIDITY"},
	CancelPrice:       {'E', "PRICE"},
	CancelCrossed:     {'C', "CROSSED"},
	CancelPurged:      {'P', "PURGED"},
	CancelExpired:     {'D', "EXPIRED"},
	CancelRolled:      {'R', "ROLLED"},
}

var cancelCodes = newCodeTable[CancelReason]("cancel reason")

func (r CancelReason) Char() byte {
	if r == 0 || int(r) >= len(cancelReasons) {
		return 0
	}
	return cancelReasons[r].char
}

func (r CancelReason) String() string {
	if r == 0 || int(r) >= len(cancelReasons) {
		return "UNKNOWN"
	}
	return cancelReasons[r].name
}

func CancelReasonFromChar(c byte) (CancelReason, bool) { return cancelCodes.char(c) }

// ---- RejectReason ----

type RejectReason uint8

const (
	RejectMissingField RejectReason = iota + 1
	RejectBadType
	RejectBadTIF
	RejectBadSide
	RejectBadSymbol
	RejectBadPrice
	RejectBadSize
	RejectTradingHalted
	RejectBadLot
	RejectUnknownSymbol
	RejectDuplicateExchangeOrderID
	RejectDuplicateClientOrderID
)

var rejectReasons = [...]struct {
	char byte
	name string
}{
	RejectMissingField:             {'1', "MISSING_FIELD"},
	RejectBadType:                  {'2', "BAD_TYPE"},
	RejectBadTIF:                   {'3', "BAD_TIF"},
	RejectBadSide:                  {'4', "BAD_SIDE"},
	RejectBadSymbol:                {'5', "BAD_SYMBOL"},
	RejectBadPrice:                 {'P', "BAD_PRICE"},
	RejectBadSize:                  {'S', "BAD_SIZE"},
	RejectTradingHalted:            {'H', "TRADING_HALTED"},
	RejectBadLot:                   {'L', "BAD_LOT"},
	RejectUnknownSymbol:            {'U', "UNKNOWN_SYMBOL"},
	RejectDuplicateExchangeOrderID: {'E', "DUPLICATE_EXCHANGE_ORDER_ID"},
	RejectDuplicateClientOrderID:   {'C', "DUPLICATE_CLIENT_ORDER_ID"},
}

var rejectCodes = newCodeTable[RejectReason]("reject reason")

func (r RejectReason) Char() byte {
	if r == 0 || int(r) >= len(rejectReasons) {
		return 0
	}
	return rejectReasons[r].char
}

func (r RejectReason) String() string {
	if r == 0 || int(r) >= len(rejectReasons) {
		return "UNKNOWN"
	}
	return rejectReasons[r].name
}

func RejectReasonFromChar(c byte) (RejectReason, bool) { return rejectCodes.char(c) }

// ---- CancelRejectReason ----

type CancelRejectReason uint8

const (
	CancelRejectNotFound CancelRejectReason = iota + 1
)

var cancelRejectCodes = newCodeTable[CancelRejectReason]("cancel reject reason")

func (r CancelRejectReason) Char() byte {
	if r == CancelRejectNotFound {
		return 'F'
	}
	return 0
}

func (r CancelRejectReason) String() string {
	if r == CancelRejectNotFound {
		return "NOT_FOUND"
	}
	return "UNKNOWN"
}

func CancelRejectReasonFromChar(c byte) (CancelRejectReason, bool) { return cancelRejectCodes.char(c) }

// ---- ReduceRejectReason ----

type ReduceRejectReason uint8

const (
	ReduceRejectZero ReduceRejectReason = iota + 1
	ReduceRejectNegative
	ReduceRejectIncrease
	ReduceRejectSuperfluous
	ReduceRejectNotFound
)

var reduceRejectReasons = [...]struct {
	char byte
	name string
}{
	ReduceRejectZero:        {'Z', "ZERO"},
	ReduceRejectNegative:    {'N', "NEGATIVE"},
	ReduceRejectIncrease:    {'I', "INCREASE"},
	ReduceRejectSuperfluous: {'S', "SUPERFLUOUS"},
	ReduceRejectNotFound:    {'F', "NOT_FOUND"},
}

var reduceRejectCodes = newCodeTable[ReduceRejectReason]("reduce reject reason")

func (r ReduceRejectReason) Char() byte {
	if r == 0 || int(r) >= len(reduceRejectReasons) {
		return 0
	}
	return reduceRejectReasons[r].char
}

func (r ReduceRejectReason) String() string {
	if r == 0 || int(r) >= len(reduceRejectReasons) {
		return "UNKNOWN"
	}
	return reduceRejectReasons[r].name
}

func ReduceRejectReasonFromChar(c byte) (ReduceRejectReason, bool) { return reduceRejectCodes.char(c) }

func init() {
	for _, s := range []Side{Buy, Sell} {
		sideCodes.register(s, s.Char(), s.FixCode())
	}
	if len(sideCodes.byChar) != 2 {
		panic("orderbook: side must have exactly two values")
	}
	for _, t := range []Type{Market, Limit} {
		typeCodes.register(t, t.Char(), t.FixCode())
	}
	for _, t := range []TimeInForce{GTC, IOC, DAY} {
		tifCodes.register(t, t.Char(), t.FixCode())
	}
	for _, e := range []ExecuteSide{Taker, Maker} {
		execSideCodes.register(e, e.Char(), e.FixCode())
	}
	for r := CancelMissed; r <= CancelRolled; r++ {
		cancelCodes.register(r, r.Char(), "")
	}
	for r := RejectMissingField; r <= RejectDuplicateClientOrderID; r++ {
		rejectCodes.register(r, r.Char(), "")
	}
	cancelRejectCodes.register(CancelRejectNotFound, CancelRejectNotFound.Char(), "")
	for r := ReduceRejectZero; r <= ReduceRejectNotFound; r++ {
		reduceRejectCodes.register(r, r.Char(), "")
	}
}
