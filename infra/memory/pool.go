package memory

import (
	"sync"
	"sync/atomic"
)

// Pool is a typed object pool with an optional cap on objects handed out.
// Get returns nil when the cap is reached, or when the pool would have to
// construct a new object while a Monitor has closed it. Recycled objects
// are still handed out while closed. Callers treat nil as backpressure.
type Pool[T any] struct {
	// free keeps up to prealloc objects out of reach of the GC, which
	// empties p every couple of cycles.
	free chan *T
	p    *sync.Pool

	maxLive   int64
	live      atomic.Int64
	available atomic.Bool
}

// NewPool builds a pool. maxLive <= 0 means unbounded. prealloc objects
// are created up front and stay retained across GC cycles.
func NewPool[T any](maxLive int64, prealloc int, ctor func() *T) *Pool[T] {
	p := &Pool[T]{
		free:    make(chan *T, prealloc),
		maxLive: maxLive,
	}
	p.p = &sync.Pool{
		New: func() any {
			if !p.available.Load() {
				return nil
			}
			return ctor()
		},
	}
	p.available.Store(true)
	for i := 0; i < prealloc; i++ {
		p.free <- ctor()
	}
	return p
}

func (p *Pool[T]) Get() *T {
	if n := p.live.Add(1); p.maxLive > 0 && n > p.maxLive {
		p.live.Add(-1)
		return nil
	}
	select {
	case v := <-p.free:
		return v
	default:
	}
	if v, _ := p.p.Get().(*T); v != nil {
		return v
	}
	p.live.Add(-1)
	return nil
}

func (p *Pool[T]) Release(v *T) {
	if v == nil {
		return
	}
	p.live.Add(-1)
	select {
	case p.free <- v:
	default:
		p.p.Put(v)
	}
}

// Live is the number of objects handed out and not yet released.
func (p *Pool[T]) Live() int64 { return p.live.Load() }

// Idle is the number of retained objects ready for reuse.
func (p *Pool[T]) Idle() int { return len(p.free) }

// SetAvailable opens or closes the pool to new construction.
func (p *Pool[T]) SetAvailable(ok bool) { p.available.Store(ok) }

func (p *Pool[T]) Available() bool { return p.available.Load() }
