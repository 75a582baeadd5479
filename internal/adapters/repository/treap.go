package repository

import (
	"math/rand/v2"
)

// Treap-backed ordered set.
//
// Ordering: score ASC, then member ASC. In-order traversal yields the
// ascending sequence; descending views are derived by index arithmetic.
// Every node carries its subtree size so rank and select are O(log n).

type node struct {
	member string
	score  float64
	prio   uint64
	left   *node
	right  *node
	size   int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether (aScore, aMember) sorts before (bScore, bMember).
func less(aScore float64, aMember string, bScore float64, bMember string) bool {
	if aScore != bScore {
		return aScore < bScore
	}
	return aMember < bMember
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, member string, score float64, prio uint64) *node {
	if n == nil {
		return &node{member: member, score: score, prio: prio, size: 1}
	}
	if less(score, member, n.score, n.member) {
		n.left = insert(n.left, member, score, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, member, score, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, member string, score float64) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && member == n.member:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, member, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, member, score)
		}
	case less(score, member, n.score, n.member):
		n.left = deleteNode(n.left, member, score)
	default:
		n.right = deleteNode(n.right, member, score)
	}
	fix(n)
	return n
}

// position returns the number of nodes ordered before (score, member).
func position(n *node, member string, score float64) int {
	pos := 0
	for n != nil {
		if score == n.score && member == n.member {
			return pos + nsize(n.left)
		}
		if less(score, member, n.score, n.member) {
			n = n.left
		} else {
			pos += nsize(n.left) + 1
			n = n.right
		}
	}
	return pos
}

// countBelow returns the number of nodes whose score is < bound, or <= bound
// when inclusive is set.
func countBelow(n *node, bound float64, inclusive bool) int {
	count := 0
	for n != nil {
		if n.score < bound || (inclusive && n.score == bound) {
			count += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// collectRange appends the nodes at ascending positions [start, stop]. offset
// is the position of the leftmost node of n.
func collectRange(n *node, offset, start, stop int, out *[]Member) {
	if n == nil || offset > stop || offset+n.size-1 < start {
		return
	}
	collectRange(n.left, offset, start, stop, out)
	self := offset + nsize(n.left)
	if self >= start && self <= stop {
		*out = append(*out, Member{Member: n.member, Score: n.score})
	}
	collectRange(n.right, self+1, start, stop, out)
}

// sortedSet pairs the treap with a member index for O(1) score lookups.
type sortedSet struct {
	root   *node
	scores map[string]float64
}

func newSortedSet() *sortedSet {
	return &sortedSet{scores: make(map[string]float64)}
}

func (z *sortedSet) len() int { return len(z.scores) }

// add inserts or repositions member; it reports whether member was new.
func (z *sortedSet) add(member string, score float64) bool {
	old, exists := z.scores[member]
	if exists {
		if old == score {
			return false
		}
		z.root = deleteNode(z.root, member, old)
	}
	z.scores[member] = score
	z.root = insert(z.root, member, score, rand.Uint64())
	return !exists
}

func (z *sortedSet) remove(member string) bool {
	score, ok := z.scores[member]
	if !ok {
		return false
	}
	z.root = deleteNode(z.root, member, score)
	delete(z.scores, member)
	return true
}

func (z *sortedSet) score(member string) (float64, bool) {
	s, ok := z.scores[member]
	return s, ok
}

func (z *sortedSet) rank(member string, desc bool) (int, bool) {
	score, ok := z.scores[member]
	if !ok {
		return 0, false
	}
	r := position(z.root, member, score)
	if desc {
		r = z.len() - 1 - r
	}
	return r, true
}

// bounds normalizes inclusive indices the way sorted-set range commands do.
// ok is false when the window is empty.
func bounds(start, stop int64, n int) (int, int, bool) {
	size := int64(n)
	if start < 0 {
		start += size
	}
	if stop < 0 {
		stop += size
	}
	if start < 0 {
		start = 0
	}
	if stop >= size {
		stop = size - 1
	}
	if size == 0 || start > stop || start >= size {
		return 0, 0, false
	}
	return int(start), int(stop), true
}

func (z *sortedSet) rangeByIndex(start, stop int64, desc bool) []Member {
	s, e, ok := bounds(start, stop, z.len())
	if !ok {
		return []Member{}
	}
	if desc {
		s, e = z.len()-1-e, z.len()-1-s
	}
	out := make([]Member, 0, e-s+1)
	collectRange(z.root, 0, s, e, &out)
	if desc {
		reverse(out)
	}
	return out
}

// scoreWindow returns the ascending positions covering [min, max].
func (z *sortedSet) scoreWindow(min, max float64) (int, int, bool) {
	lo := countBelow(z.root, min, false)
	hi := countBelow(z.root, max, true) - 1
	if min > max || hi < lo {
		return 0, 0, false
	}
	return lo, hi, true
}

func (z *sortedSet) rangeByScore(min, max float64, desc bool) []Member {
	lo, hi, ok := z.scoreWindow(min, max)
	if !ok {
		return []Member{}
	}
	out := make([]Member, 0, hi-lo+1)
	collectRange(z.root, 0, lo, hi, &out)
	if desc {
		reverse(out)
	}
	return out
}

func (z *sortedSet) countByScore(min, max float64) int {
	lo, hi, ok := z.scoreWindow(min, max)
	if !ok {
		return 0
	}
	return hi - lo + 1
}

func (z *sortedSet) removeAll(members []Member) int {
	for _, m := range members {
		z.remove(m.Member)
	}
	return len(members)
}

func (z *sortedSet) all() []Member {
	out := make([]Member, 0, z.len())
	collectRange(z.root, 0, 0, z.len()-1, &out)
	return out
}

func reverse(ms []Member) {
	for i, j := 0, len(ms)-1; i < j; i, j = i+1, j-1 {
		ms[i], ms[j] = ms[j], ms[i]
	}
}
