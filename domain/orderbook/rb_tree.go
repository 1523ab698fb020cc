package orderbook

type color uint8

const (
	red   color = 0
	black color = 1
)

// RBTree indexes the price levels of one book side by price. Levels are
// the nodes themselves; insert and delete never allocate.
type RBTree struct {
	root *PriceLevel
	nil  *PriceLevel // sentinel (black)
	size int
}

// NewRBTree constructs an empty tree with a black sentinel.
func NewRBTree() *RBTree {
	nilNode := &PriceLevel{color: black}
	return &RBTree{root: nilNode, nil: nilNode}
}

func (t *RBTree) Size() int { return t.size }

func (t *RBTree) FindLevel(price int64) *PriceLevel {
	n := t.searchNode(price)
	if n == t.nil {
		return nil
	}
	return n
}

// InsertLevel links lvl into the tree under lvl.Price(). It returns the
// level already holding that price, if any, without inserting.
func (t *RBTree) InsertLevel(lvl *PriceLevel) *PriceLevel {
	y := t.nil
	x := t.root
	for x != t.nil {
		y = x
		if lvl.price < x.price {
			x = x.left
		} else if lvl.price > x.price {
			x = x.right
		} else {
			return x
		}
	}

	lvl.color = red
	lvl.left = t.nil
	lvl.right = t.nil
	lvl.parent = y

	if y == t.nil {
		t.root = lvl
	} else if lvl.price < y.price {
		y.left = lvl
	} else {
		y.right = lvl
	}
	t.insertFixup(lvl)
	t.size++
	return lvl
}

// DeleteLevel unlinks lvl, which must belong to this tree.
func (t *RBTree) DeleteLevel(lvl *PriceLevel) {
	t.deleteNode(lvl)
	lvl.left, lvl.right, lvl.parent = nil, nil, nil
	t.size--
}

// DeletePrice removes the level at price and reports whether one existed.
func (t *RBTree) DeletePrice(price int64) bool {
	z := t.searchNode(price)
	if z == t.nil {
		return false
	}
	t.DeleteLevel(z)
	return true
}

func (t *RBTree) MinLevel() *PriceLevel {
	n := t.minNode(t.root)
	if n == t.nil {
		return nil
	}
	return n
}

func (t *RBTree) MaxLevel() *PriceLevel {
	n := t.maxNode(t.root)
	if n == t.nil {
		return nil
	}
	return n
}

// NextLevel returns the level with the next higher price, or nil.
func (t *RBTree) NextLevel(lvl *PriceLevel) *PriceLevel {
	n := t.next(lvl)
	if n == t.nil {
		return nil
	}
	return n
}

// PrevLevel returns the level with the next lower price, or nil.
func (t *RBTree) PrevLevel(lvl *PriceLevel) *PriceLevel {
	n := t.prev(lvl)
	if n == t.nil {
		return nil
	}
	return n
}

func (t *RBTree) ForEachAscending(fn func(*PriceLevel) bool) {
	for n := t.minNode(t.root); n != t.nil; {
		next := t.next(n)
		if !fn(n) {
			return
		}
		n = next
	}
}

func (t *RBTree) ForEachDescending(fn func(*PriceLevel) bool) {
	for n := t.maxNode(t.root); n != t.nil; {
		prev := t.prev(n)
		if !fn(n) {
			return
		}
		n = prev
	}
}

/******************** Internal helpers ********************/

func (t *RBTree) searchNode(price int64) *PriceLevel {
	n := t.root
	for n != t.nil {
		if price < n.price {
			n = n.left
		} else if price > n.price {
			n = n.right
		} else {
			return n
		}
	}
	return t.nil
}

func (t *RBTree) minNode(n *PriceLevel) *PriceLevel {
	if n == t.nil {
		return t.nil
	}
	for n.left != t.nil {
		n = n.left
	}
	return n
}

func (t *RBTree) maxNode(n *PriceLevel) *PriceLevel {
	if n == t.nil {
		return t.nil
	}
	for n.right != t.nil {
		n = n.right
	}
	return n
}

func (t *RBTree) next(n *PriceLevel) *PriceLevel {
	if n == nil || n == t.nil {
		return t.nil
	}
	if n.right != t.nil {
		return t.minNode(n.right)
	}
	p := n.parent
	for p != t.nil && n == p.right {
		n = p
		p = p.parent
	}
	return p
}

func (t *RBTree) prev(n *PriceLevel) *PriceLevel {
	if n == nil || n == t.nil {
		return t.nil
	}
	if n.left != t.nil {
		return t.maxNode(n.left)
	}
	p := n.parent
	for p != t.nil && n == p.left {
		n = p
		p = p.parent
	}
	return p
}

func (t *RBTree) leftRotate(x *PriceLevel) {
	y := x.right
	x.right = y.left
	if y.left != t.nil {
		y.left.parent = x
	}
	y.parent = x.parent
	if x.parent == t.nil {
		t.root = y
	} else if x == x.parent.left {
		x.parent.left = y
	} else {
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (t *RBTree) rightRotate(y *PriceLevel) {
	x := y.left
	y.left = x.right
	if x.right != t.nil {
		x.right.parent = y
	}
	x.parent = y.parent
	if y.parent == t.nil {
		t.root = x
	} else if y == y.parent.right {
		y.parent.right = x
	} else {
		y.parent.left = x
	}
	x.right = y
	y.parent = x
}

func (t *RBTree) insertFixup(z *PriceLevel) {
	for z.parent.color == red {
		if z.parent == z.parent.parent.left {
			y := z.parent.parent.right
			if y.color == red {
				z.parent.color = black
				y.color = black
				z.parent.parent.color = red
				z = z.parent.parent
			} else {
				if z == z.parent.right {
					z = z.parent
					t.leftRotate(z)
				}
				z.parent.color = black
				z.parent.parent.color = red
				t.rightRotate(z.parent.parent)
			}
		} else {
			y := z.parent.parent.left
			if y.color == red {
				z.parent.color = black
				y.color = black
				z.parent.parent.color = red
				z = z.parent.parent
			} else {
				if z == z.parent.left {
					z = z.parent
					t.rightRotate(z)
				}
				z.parent.color = black
				z.parent.parent.color = red
				t.leftRotate(z.parent.parent)
			}
		}
	}
	t.root.color = black
}

func (t *RBTree) transplant(u, v *PriceLevel) {
	if u.parent == t.nil {
		t.root = v
	} else if u == u.parent.left {
		u.parent.left = v
	} else {
		u.parent.right = v
	}
	v.parent = u.parent
}

func (t *RBTree) deleteNode(z *PriceLevel) {
	y := z
	yOrigColor := y.color
	var x *PriceLevel

	if z.left == t.nil {
		x = z.right
		t.transplant(z, z.right)
	} else if z.right == t.nil {
		x = z.left
		t.transplant(z, z.left)
	} else {
		y = t.minNode(z.right)
		yOrigColor = y.color
		x = y.right
		if y.parent == z {
			x.parent = y
		} else {
			t.transplant(y, y.right)
			y.right = z.right
			y.right.parent = y
		}
		t.transplant(z, y)
		y.left = z.left
		y.left.parent = y
		y.color = z.color
	}

	if yOrigColor == black {
		t.deleteFixup(x)
	}
}

func (t *RBTree) deleteFixup(x *PriceLevel) {
	for x != t.root && x.color == black {
		if x == x.parent.left {
			w := x.parent.right
			if w.color == red {
				w.color = black
				x.parent.color = red
				t.leftRotate(x.parent)
				w = x.parent.right
			}
			if w.left.color == black && w.right.color == black {
				w.color = red
				x = x.parent
			} else {
				if w.right.color == black {
					w.left.color = black
					w.color = red
					t.rightRotate(w)
					w = x.parent.right
				}
				w.color = x.parent.color
				x.parent.color = black
				w.right.color = black
				t.leftRotate(x.parent)
				x = t.root
			}
		} else {
			w := x.parent.left
			if w.color == red {
				w.color = black
				x.parent.color = red
				t.rightRotate(x.parent)
				w = x.parent.left
			}
			if w.right.color == black && w.left.color == black {
				w.color = red
				x = x.parent
			} else {
				if w.left.color == black {
					w.right.color = black
					w.color = red
					t.leftRotate(w)
					w = x.parent.left
				}
				w.color = x.parent.color
				x.parent.color = black
				w.left.color = black
				t.rightRotate(x.parent)
				x = t.root
			}
		}
	}
	x.color = black
}
