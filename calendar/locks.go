package calendar

import (
	"sort"
	"sync"
)

// =============================================================================
// SLOT LOCKS - Per-slot serialization of capacity-affecting writes
// =============================================================================

// SlotLocks serializes mutations per SlotKey. Entries are reference counted
// and dropped once nobody holds or waits for them, so the map only grows
// with the number of slots being written concurrently.
//
// Multi-key acquisition always happens in SlotKey.Less order, which rules
// out deadlocks between two moves crossing paths.
type SlotLocks struct {
	mu    sync.Mutex
	slots map[SlotKey]*slotLock
}

type slotLock struct {
	mu   sync.Mutex
	refs int
}

func NewSlotLocks() *SlotLocks {
	return &SlotLocks{slots: make(map[SlotKey]*slotLock)}
}

// Lock acquires every key (duplicates collapse) and returns the release func.
func (l *SlotLocks) Lock(keys ...SlotKey) (unlock func()) {
	ordered := orderKeys(keys)

	held := make([]*slotLock, 0, len(ordered))
	for _, k := range ordered {
		sl := l.acquire(k)
		sl.mu.Lock()
		held = append(held, sl)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.release(ordered[i])
		}
	}
}

func (l *SlotLocks) acquire(k SlotKey) *slotLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl, ok := l.slots[k]
	if !ok {
		sl = &slotLock{}
		l.slots[k] = sl
	}
	sl.refs++
	return sl
}

func (l *SlotLocks) release(k SlotKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl := l.slots[k]
	sl.refs--
	if sl.refs == 0 {
		delete(l.slots, k)
	}
}

// held returns the number of live entries. Used by tests.
func (l *SlotLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func orderKeys(keys []SlotKey) []SlotKey {
	seen := make(map[SlotKey]bool, len(keys))
	out := make([]SlotKey, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
