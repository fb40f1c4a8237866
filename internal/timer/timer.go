// Package timer keeps per-connection idle deadlines ordered by expiry so the
// event loop can evict every expired connection in one pass.
//
// The list is a binary min-heap. Each inserted entry is returned as a *Timer
// handle that stays valid until the entry is removed or expires, so owners can
// adjust or cancel their own deadline without searching.
package timer

import (
	"container/heap"
	"sync"
	"time"
)

// Timer is a handle to one entry in a List.
type Timer struct {
	expire time.Time
	index  int
	onFire func()
}

// List is safe for concurrent use. Callbacks run outside the list lock, so a
// callback may call Remove or Insert on the same list.
type List struct {
	mu sync.Mutex
	h  timerHeap
}

func New() *List {
	return &List{}
}

// Insert adds an entry firing onFire once expire has passed.
func (l *List) Insert(expire time.Time, onFire func()) *Timer {
	t := &Timer{expire: expire, onFire: onFire}

	l.mu.Lock()
	heap.Push(&l.h, t)
	l.mu.Unlock()
	return t
}

// Adjust moves t to a new expiry. It returns false when t has already been
// removed or fired.
func (l *List) Adjust(t *Timer, expire time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if t == nil || t.index < 0 {
		return false
	}
	t.expire = expire
	heap.Fix(&l.h, t.index)
	return true
}

// Remove deletes t without firing it. Removing twice is a no-op.
func (l *List) Remove(t *Timer) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if t == nil || t.index < 0 {
		return false
	}
	heap.Remove(&l.h, t.index)
	return true
}

// Tick fires and drops every entry whose expiry is not after now, earliest
// first, and returns how many fired. Entries in the future are untouched.
func (l *List) Tick(now time.Time) int {
	l.mu.Lock()
	var expired []*Timer
	for len(l.h) > 0 && !l.h[0].expire.After(now) {
		expired = append(expired, heap.Pop(&l.h).(*Timer))
	}
	l.mu.Unlock()

	for _, t := range expired {
		if t.onFire != nil {
			t.onFire()
		}
	}
	return len(expired)
}

// Pending reports whether t is still waiting in the list.
func (l *List) Pending(t *Timer) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return t != nil && t.index >= 0
}

// Len returns the number of pending entries.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.h)
}

// Next returns the earliest pending expiry.
func (l *List) Next() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.h) == 0 {
		return time.Time{}, false
	}
	return l.h[0].expire, true
}

type timerHeap []*Timer

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].expire.Before(h[j].expire) }

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
