package orderbook

import "time"

// Timestamper supplies event times in nanoseconds since the epoch.
type Timestamper interface {
	NanoEpoch() int64
}

// SystemTimestamper reads the wall clock once and advances it with the
// monotonic clock afterwards.
type SystemTimestamper struct {
	start time.Time
}

func NewSystemTimestamper() *SystemTimestamper {
	return &SystemTimestamper{start: time.Now()}
}

func (s *SystemTimestamper) NanoEpoch() int64 {
	return s.start.UnixNano() + int64(time.Since(s.start))
}
