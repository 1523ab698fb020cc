package memory

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestMonitorClosesAndReopensGates(t *testing.T) {
	p := NewPool(0, 0, newItem)
	m := NewMonitor(1000, time.Hour, quietLogger(), p)
	var heap atomic.Uint64
	m.heap = heap.Load

	heap.Store(500)
	m.Check()
	assert.False(t, m.Closed())
	assert.True(t, p.Available())

	heap.Store(2000)
	m.Check()
	assert.True(t, m.Closed())
	assert.Nil(t, p.Get())

	// Gates added while closed start closed.
	late := NewPool(0, 0, newItem)
	m.Watch(late)
	assert.False(t, late.Available())

	heap.Store(900)
	m.Check()
	assert.False(t, m.Closed())
	assert.True(t, p.Available())
	assert.True(t, late.Available())
}

func TestMonitorZeroLimitNeverCloses(t *testing.T) {
	p := NewPool(0, 0, newItem)
	m := NewMonitor(0, time.Hour, quietLogger(), p)
	m.heap = func() uint64 { return 1 << 40 }
	m.Check()
	assert.True(t, p.Available())
}

func TestMonitorLoop(t *testing.T) {
	p := NewPool(0, 0, newItem)
	m := NewMonitor(10, time.Millisecond, quietLogger(), p)
	m.heap = func() uint64 { return 100 }

	m.Start(context.Background())
	assert.Eventually(t, func() bool { return !p.Available() }, time.Second, time.Millisecond)
	m.Stop()
}

func TestReadHeapObjects(t *testing.T) {
	assert.NotZero(t, readHeapObjects())
}
