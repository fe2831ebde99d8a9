package book

import "github.com/xtrntr/matchengine/internal/money"

type color uint8

const (
	red color = iota
	black
)

type node struct {
	key    money.Money
	level  *PriceLevel
	color  color
	left   *node
	right  *node
	parent *node
}

// levelTree is a red-black tree of price levels ordered by a "better"
// predicate, so the leftmost node is always the best price.
type levelTree struct {
	root   *node
	nil    *node // black sentinel
	size   int
	better func(a, b money.Money) bool
}

func newLevelTree(better func(a, b money.Money) bool) *levelTree {
	sentinel := &node{color: black}
	return &levelTree{root: sentinel, nil: sentinel, better: better}
}

func (t *levelTree) Len() int { return t.size }

// compare orders a before b when a is the better price
func (t *levelTree) compare(a, b money.Money) int {
	switch {
	case t.better(a, b):
		return -1
	case t.better(b, a):
		return 1
	}
	return 0
}

func (t *levelTree) search(price money.Money) *node {
	n := t.root
	for n != t.nil {
		switch c := t.compare(price, n.key); {
		case c < 0:
			n = n.left
		case c > 0:
			n = n.right
		default:
			return n
		}
	}
	return t.nil
}

// Get returns the level at price or nil
func (t *levelTree) Get(price money.Money) *PriceLevel {
	n := t.search(price)
	if n == t.nil {
		return nil
	}
	return n.level
}

// GetOrInsert returns the level at price, creating it with create when absent
func (t *levelTree) GetOrInsert(price money.Money, create func(money.Money) *PriceLevel) *PriceLevel {
	y := t.nil
	x := t.root
	for x != t.nil {
		y = x
		switch c := t.compare(price, x.key); {
		case c < 0:
			x = x.left
		case c > 0:
			x = x.right
		default:
			return x.level
		}
	}

	z := &node{
		key:    price,
		level:  create(price),
		color:  red,
		left:   t.nil,
		right:  t.nil,
		parent: y,
	}
	if y == t.nil {
		t.root = z
	} else if t.compare(z.key, y.key) < 0 {
		y.left = z
	} else {
		y.right = z
	}
	t.insertFixup(z)
	t.size++
	return z.level
}

// Delete removes the level at price
func (t *levelTree) Delete(price money.Money) bool {
	z := t.search(price)
	if z == t.nil {
		return false
	}
	t.deleteNode(z)
	t.size--
	return true
}

func (t *levelTree) first() *node { return t.minNode(t.root) }

func (t *levelTree) minNode(n *node) *node {
	if n == t.nil {
		return t.nil
	}
	for n.left != t.nil {
		n = n.left
	}
	return n
}

func (t *levelTree) next(n *node) *node {
	if n == t.nil {
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

func (t *levelTree) leftRotate(x *node) {
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

func (t *levelTree) rightRotate(y *node) {
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

func (t *levelTree) insertFixup(z *node) {
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

func (t *levelTree) transplant(u, v *node) {
	if u.parent == t.nil {
		t.root = v
	} else if u == u.parent.left {
		u.parent.left = v
	} else {
		u.parent.right = v
	}
	v.parent = u.parent
}

func (t *levelTree) deleteNode(z *node) {
	y := z
	yOrigColor := y.color
	var x *node

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
	// the sentinel's parent is scratch space during fixup
	t.nil.parent = nil
}

func (t *levelTree) deleteFixup(x *node) {
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

// checkInvariants returns the black height, or -1 if a red-black rule is broken
func (t *levelTree) checkInvariants(n *node) int {
	if n == t.nil {
		return 1
	}
	if n.color == red && (n.left.color == red || n.right.color == red) {
		return -1
	}
	if n.left != t.nil && (n.left.parent != n || t.compare(n.left.key, n.key) >= 0) {
		return -1
	}
	if n.right != t.nil && (n.right.parent != n || t.compare(n.right.key, n.key) <= 0) {
		return -1
	}
	lh := t.checkInvariants(n.left)
	rh := t.checkInvariants(n.right)
	if lh < 0 || rh < 0 || lh != rh {
		return -1
	}
	if n.color == black {
		return lh + 1
	}
	return lh
}
