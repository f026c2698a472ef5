// Package nodelist implements the bounded FIFO that carries ownership of
// flowtree.Node values from the capture stage to the flow stage (spec §4.5).
package nodelist

import (
	"sync"

	"github.com/nfpcapd-go/nfpcapd/internal/flowtree"
)

// DefaultCapacity bounds the list so a stalled flow stage applies
// backpressure to capture instead of growing without limit (spec §4.5
// allows unbounded FIFOs but recommends bounding with backpressure).
const DefaultCapacity = 65536

// List is a single-producer, single-consumer bounded FIFO of *flowtree.Node.
// One mutex and two condition variables guard it: notEmpty wakes a blocked
// Pop, notFull wakes a blocked Push.
type List struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	buf    []*flowtree.Node
	cap    int
	closed bool

	pushed uint64
	popped uint64
}

// New constructs a List with the given capacity (falls back to
// DefaultCapacity when cap <= 0).
func New(cap int) *List {
	if cap <= 0 {
		cap = DefaultCapacity
	}
	l := &List{cap: cap}
	l.notEmpty = sync.NewCond(&l.mu)
	l.notFull = sync.NewCond(&l.mu)
	return l
}

// Push appends a node, blocking while the list is full. It is a no-op once
// Close has been called.
func (l *List) Push(n *flowtree.Node) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for len(l.buf) >= l.cap && !l.closed {
		l.notFull.Wait()
	}
	if l.closed {
		return
	}
	l.buf = append(l.buf, n)
	l.pushed++
	l.notEmpty.Signal()
}

// Pop blocks until a node is available or the producer has closed the list
// and it has drained, in which case it returns (nil, false).
func (l *List) Pop() (*flowtree.Node, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for len(l.buf) == 0 && !l.closed {
		l.notEmpty.Wait()
	}
	if len(l.buf) == 0 {
		return nil, false
	}
	n := l.buf[0]
	l.buf = l.buf[1:]
	l.popped++
	l.notFull.Signal()
	return n, true
}

// Close marks the list producer-closed: pending and future Pop calls drain
// remaining entries, then return false instead of blocking forever.
func (l *List) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.notEmpty.Broadcast()
	l.notFull.Broadcast()
}

// Stat reports the queue's current length and lifetime push/pop counts, for
// DumpNodeStat-equivalent shutdown reporting.
type Stat struct {
	Length int
	Pushed uint64
	Popped uint64
}

// DumpStat returns the list's current statistics.
func (l *List) DumpStat() Stat {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stat{Length: len(l.buf), Pushed: l.pushed, Popped: l.popped}
}
