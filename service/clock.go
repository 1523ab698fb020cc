package service

import "time"

// intentClock is the book clock. The worker sets it to the journaled time
// of each intent before applying it, live and on replay alike.
type intentClock struct {
	now int64
}

func (c *intentClock) NanoEpoch() int64 { return c.now }

// next returns a wall-clock time that never goes backwards for this book.
func (c *intentClock) next() int64 {
	t := time.Now().UnixNano()
	if t <= c.now {
		t = c.now + 1
	}
	return t
}
