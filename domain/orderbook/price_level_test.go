package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queue(lvl *PriceLevel) []int64 {
	var ids []int64
	for o := lvl.Head(); o != nil; o = o.Next() {
		ids = append(ids, o.ID())
	}
	return ids
}

func TestPriceLevelFIFO(t *testing.T) {
	lvl := new(PriceLevel)
	lvl.Init(Sell, 100)

	orders := make([]*Order, 3)
	for i := range orders {
		o := newLimit(Sell, int64(10*(i+1)), 100)
		o.Accept(1, int64(i+1))
		lvl.Add(o)
		orders[i] = o
	}

	assert.Equal(t, []int64{1, 2, 3}, queue(lvl))
	assert.Equal(t, int64(60), lvl.OpenSize())
	assert.Equal(t, 3, lvl.OrderCount())
	assert.Same(t, orders[0], lvl.Head())
	assert.Same(t, orders[2], lvl.Tail())
	assert.Same(t, lvl, orders[1].PriceLevel())

	lvl.Remove(orders[1])
	assert.Equal(t, []int64{1, 3}, queue(lvl))
	assert.Equal(t, int64(40), lvl.OpenSize())
	assert.Nil(t, orders[1].PriceLevel())
	assert.Nil(t, orders[1].Next())

	lvl.Remove(orders[0])
	lvl.Remove(orders[2])
	assert.True(t, lvl.IsEmpty())
	assert.Nil(t, lvl.Head())
	assert.Nil(t, lvl.Tail())
}

func TestPriceLevelTracksOrderChanges(t *testing.T) {
	lvl := new(PriceLevel)
	lvl.Init(Buy, 50)

	a := newLimit(Buy, 10, 50)
	b := newLimit(Buy, 10, 50)
	a.Accept(1, 1)
	b.Accept(1, 2)
	lvl.Add(a)
	lvl.Add(b)

	a.Execute(2, Maker, 4, 50, 1, 1)
	require.Equal(t, int64(16), lvl.OpenSize())

	b.CancelSize(3, 5, CancelUser)
	require.Equal(t, int64(11), lvl.OpenSize())
	assert.Equal(t, []int64{1, 2}, queue(lvl), "partial cancel keeps queue position")

	a.Cancel(4, CancelUser)
	assert.Equal(t, int64(5), lvl.OpenSize())
	assert.Equal(t, []int64{2}, queue(lvl))

	b.Execute(5, Maker, 5, 50, 2, 2)
	assert.True(t, lvl.IsEmpty())
	assert.Equal(t, 0, lvl.OrderCount())
}
