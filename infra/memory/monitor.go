package memory

import (
	"context"
	"runtime/metrics"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

// Gate is anything the monitor can open and close, in practice a Pool.
type Gate interface {
	SetAvailable(bool)
}

// Monitor samples the live heap and closes its gates while it is above
// the limit. Gates reopen once the heap drops below the limit again.
type Monitor struct {
	limit    uint64
	interval time.Duration
	log      logrus.FieldLogger

	mu     sync.Mutex
	gates  []Gate
	closed bool

	heap   func() uint64
	cancel context.CancelFunc
	done   chan struct{}
}

func NewMonitor(limitBytes uint64, interval time.Duration, log logrus.FieldLogger, gates ...Gate) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	return &Monitor{
		limit:    limitBytes,
		interval: interval,
		log:      log.WithField("component", "memory-monitor"),
		gates:    gates,
		heap:     readHeapObjects,
	}
}

func (m *Monitor) Watch(g Gate) {
	m.mu.Lock()
	m.gates = append(m.gates, g)
	closed := m.closed
	m.mu.Unlock()
	g.SetAvailable(!closed)
}

// Start runs the sampling loop until Stop or ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.loop(ctx)
}

func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check()
		}
	}
}

// HeapBytes reads the bytes held by live and not-yet-swept heap objects.
func (m *Monitor) HeapBytes() uint64 { return m.heap() }

func readHeapObjects() uint64 {
	sample := []metrics.Sample{{Name: heapObjectsMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return sample[0].Value.Uint64()
}

// Check samples once and flips the gates if the state changed.
func (m *Monitor) Check() {
	if m.limit == 0 {
		return
	}
	heap := m.HeapBytes()
	over := heap > m.limit

	m.mu.Lock()
	defer m.mu.Unlock()
	if over == m.closed {
		return
	}
	m.closed = over
	for _, g := range m.gates {
		g.SetAvailable(!over)
	}
	if over {
		m.log.WithFields(logrus.Fields{"heap_bytes": heap, "limit_bytes": m.limit}).Warn("heap above limit, pools closed")
	} else {
		m.log.WithFields(logrus.Fields{"heap_bytes": heap, "limit_bytes": m.limit}).Info("heap below limit, pools reopened")
	}
}

func (m *Monitor) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
