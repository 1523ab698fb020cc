package snapshot

import (
	"time"

	"exsim/domain/orderbook"
)

const formatVersion = 1

type Snapshot struct {
	Version int
	Created time.Time
	// OrderIDSeq is the venue-wide order-id sequencer.
	OrderIDSeq uint64
	Books      []BookState
}

// BookState is one book as of the intent it last applied.
type BookState struct {
	Security    string
	IntentSeq   uint64
	ExecutionID int64
	MatchID     int64
	Halted      bool
	Orders      []orderbook.RestingOrder
}

// MinIntentSeq is the highest sequence every book has applied; WAL
// segments at or below it are no longer needed.
func (s *Snapshot) MinIntentSeq() uint64 {
	if len(s.Books) == 0 {
		return 0
	}
	min := s.Books[0].IntentSeq
	for _, b := range s.Books[1:] {
		if b.IntentSeq < min {
			min = b.IntentSeq
		}
	}
	return min
}

func (s *Snapshot) Book(security string) (BookState, bool) {
	for _, b := range s.Books {
		if b.Security == security {
			return b, true
		}
	}
	return BookState{}, false
}
