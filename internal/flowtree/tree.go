package flowtree

import (
	"container/list"
	"time"
)

// DefaultCacheSize is the default cap on live flow nodes (spec §3, `-B`).
const DefaultCacheSize = 524288

// DefaultActiveTimeout is the maximum total lifetime of a flow before forced
// emission (spec glossary, `-e` first value).
const DefaultActiveTimeout = 300 * time.Second

// DefaultInactiveTimeout is the maximum idle time after which a flow is
// emitted (spec glossary, `-e` second value).
const DefaultInactiveTimeout = 60 * time.Second

// bucketEntry pairs a resident list element with the full Key it was
// inserted under, so a hash collision can be resolved by falling back to
// struct equality instead of silently merging two distinct flows.
type bucketEntry struct {
	key Key
	el  *list.Element
}

// Tree is the flow stage's ordered associative container keyed by 5-tuple.
// It owns all live Nodes. It is not safe for concurrent use: it is owned
// exclusively by the flow stage goroutine.
//
// Invariants maintained: no two live nodes share a key; count <= cap; every
// live node satisfies FirstSeen <= LastSeen <= now.
type Tree struct {
	cap             int
	activeTimeout   time.Duration
	inactiveTimeout time.Duration

	entries map[uint64][]bucketEntry // bucketed on Key.Hash(), chained on collision
	count   int
	order   *list.List // front = most recently touched
	stat    *StatRecord

	evictions uint64
}

// New constructs an empty Tree with the given capacity and timers. A
// zero/negative cap falls back to DefaultCacheSize.
func New(cap int, active, inactive time.Duration) *Tree {
	if cap <= 0 {
		cap = DefaultCacheSize
	}
	if active <= 0 {
		active = DefaultActiveTimeout
	}
	if inactive <= 0 {
		inactive = DefaultInactiveTimeout
	}
	return &Tree{
		cap:             cap,
		activeTimeout:   active,
		inactiveTimeout: inactive,
		entries:         make(map[uint64][]bucketEntry, cap),
		order:           list.New(),
		stat:            NewStatRecord(),
	}
}

// Len reports the number of live nodes.
func (t *Tree) Len() int { return t.count }

// Stat returns the StatRecord accumulating the current window.
func (t *Tree) Stat() *StatRecord { return t.stat }

// Evictions returns the lifetime count of nodes evicted under cache
// pressure (CacheCheck, DESIGN.md Open Question 2).
func (t *Tree) Evictions() uint64 { return t.evictions }

// lookup resolves key to its resident list element via Key.Hash(), falling
// back to full Key equality within the bucket to resolve hash collisions.
func (t *Tree) lookup(key Key) (*list.Element, bool) {
	for _, be := range t.entries[key.Hash()] {
		if be.key == key {
			return be.el, true
		}
	}
	return nil, false
}

func (t *Tree) insertBucket(key Key, el *list.Element) {
	h := key.Hash()
	t.entries[h] = append(t.entries[h], bucketEntry{key: key, el: el})
	t.count++
}

func (t *Tree) deleteBucket(key Key) {
	h := key.Hash()
	bucket := t.entries[h]
	for i, be := range bucket {
		if be.key == key {
			bucket[i] = bucket[len(bucket)-1]
			bucket = bucket[:len(bucket)-1]
			break
		}
	}
	if len(bucket) == 0 {
		delete(t.entries, h)
	} else {
		t.entries[h] = bucket
	}
	t.count--
}

// Insert inserts a newly observed node, or merges it into the resident node
// for the same key. Returns the resident node after the operation.
//
// If the tree is at capacity and this is a genuinely new key, the least
// recently touched resident node is evicted (CacheCheck, DESIGN.md Open
// Question 2: LRU on insert) and accounted in StatRecord.Lost before being
// dropped, so no packet disappears unaccounted.
func (t *Tree) Insert(n *Node) *Node {
	if el, ok := t.lookup(n.Key); ok {
		resident := el.Value.(*Node)
		resident.Merge(n)
		t.order.MoveToFront(el)
		return resident
	}

	if t.count >= t.cap {
		t.evictLRU()
	}

	el := t.order.PushFront(n)
	t.insertBucket(n.Key, el)
	return n
}

func (t *Tree) evictLRU() {
	el := t.order.Back()
	if el == nil {
		return
	}
	victim := el.Value.(*Node)
	t.stat.ObserveLoss(victim)
	t.order.Remove(el)
	t.deleteBucket(victim.Key)
	t.evictions++
}

// remove drops a node from the tree without accounting it as lost (used by
// Expire/Flush, where the node is about to be emitted normally).
func (t *Tree) remove(el *list.Element) {
	n := el.Value.(*Node)
	t.order.Remove(el)
	t.deleteBucket(n.Key)
}

// Expire walks the tree relative to `now` and emits (observes into
// StatRecord, then drops) every node whose active or inactive timer has
// fired. The caller is handed the list of expired nodes so it can, e.g.,
// pass them to the nffile writer's per-flow record encoder.
func (t *Tree) Expire(now time.Time) []*Node {
	var expired []*Node
	var next *list.Element
	for el := t.order.Back(); el != nil; el = next {
		next = el.Prev()
		n := el.Value.(*Node)
		if n.IdleFor(now) >= t.inactiveTimeout || n.AliveFor(now) >= t.activeTimeout {
			t.remove(el)
			t.stat.Observe(n)
			expired = append(expired, n)
		}
	}
	return expired
}

// Flush drains every live node unconditionally (used on shutdown/`done`, and
// at process exit; spec §4.2 step 1, "Flush_FlowTree").
func (t *Tree) Flush() []*Node {
	flushed := make([]*Node, 0, t.count)
	for el := t.order.Front(); el != nil; {
		n := el.Value.(*Node)
		next := el.Next()
		t.remove(el)
		t.stat.Observe(n)
		flushed = append(flushed, n)
		el = next
	}
	return flushed
}
