package orderbook

import "fmt"

// contractViolation reports a caller bug such as mutating a terminated
// order. Debug builds (-tags exsimdebug) panic; release builds ignore the
// call and leave the order untouched.
func contractViolation(op string, o *Order) {
	if debugContracts {
		panic(fmt.Sprintf("orderbook: %s: contract violation on %s", op, o))
	}
}
