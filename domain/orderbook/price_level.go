package orderbook

// PriceLevel is a FIFO queue of resting orders at a single price on one
// side of a book. It is also its own red-black tree node, so a pooled
// level is all the book needs to index a new price.
type PriceLevel struct {
	price int64
	side  Side

	head *Order
	tail *Order

	openSize   int64
	orderCount int

	color  color
	left   *PriceLevel
	right  *PriceLevel
	parent *PriceLevel
}

// Init prepares a pooled level for a new price.
func (p *PriceLevel) Init(side Side, price int64) {
	*p = PriceLevel{side: side, price: price}
}

func (p *PriceLevel) Price() int64    { return p.price }
func (p *PriceLevel) Side() Side      { return p.side }
func (p *PriceLevel) Head() *Order    { return p.head }
func (p *PriceLevel) Tail() *Order    { return p.tail }
func (p *PriceLevel) OpenSize() int64 { return p.openSize }
func (p *PriceLevel) OrderCount() int { return p.orderCount }

// IsEmpty reports whether nothing is left open at this price.
func (p *PriceLevel) IsEmpty() bool { return p.openSize == 0 }

// Add appends o at the tail and points its back-reference here.
func (p *PriceLevel) Add(o *Order) {
	o.next = nil
	if p.head == nil {
		o.prev = nil
		p.head = o
		p.tail = o
	} else {
		p.tail.next = o
		o.prev = p.tail
		p.tail = o
	}
	o.level = p
	p.openSize += o.OpenSize()
	p.orderCount++
}

// Remove detaches o from wherever it sits in the queue in O(1) and clears
// its back-reference. The relative order of the rest is unchanged.
func (p *PriceLevel) Remove(o *Order) {
	p.unlink(o)
	o.level = nil
}

// unlink detaches o but leaves o.level in place so the book can still
// find the level during termination.
func (p *PriceLevel) unlink(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		p.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		p.tail = o.prev
	}
	o.next = nil
	o.prev = nil

	p.openSize -= o.OpenSize()
	p.orderCount--
	if p.openSize < 0 {
		p.openSize = 0
	}
}

func (p *PriceLevel) openSizeChanged(delta int64) {
	p.openSize += delta
}

// Next returns the order queued behind o at the same price.
func (o *Order) Next() *Order { return o.next }
