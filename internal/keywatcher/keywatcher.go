// Package keywatcher implements the registry that suspends blocking
// commands on named keys and wakes them when data arrives (C4), grounded
// on original_source/src/keywatcher.rs. A single wake handle may be
// registered against multiple keys and is removed from all of them when it
// fires or is cancelled (spec.md §4.5, §9 design note on blocking commands).
package keywatcher

import "sync"

// Handle is a one-shot wake signal. Ch is closed exactly once even though
// the same handle may be registered against several keys and Notify may be
// called once per key.
type Handle struct {
	Ch   chan struct{}
	once sync.Once
}

func newHandle() *Handle { return &Handle{Ch: make(chan struct{})} }

func (h *Handle) fire() { h.once.Do(func() { close(h.Ch) }) }

// KeyWatcher maps a key to the list of handles currently waiting on it.
// Both Register and Notify are writer-locked; neither may be called while
// holding the store lock across an await point (spec.md §5).
type KeyWatcher struct {
	mu      sync.Mutex
	waiters map[string][]*Handle
}

func New() *KeyWatcher {
	return &KeyWatcher{waiters: make(map[string][]*Handle)}
}

// RegisterMany creates a new handle and registers it against every key in
// keys, returning the handle so the caller can select on it and later call
// UnregisterMany with the same keys.
func (w *KeyWatcher) RegisterMany(keys []string) *Handle {
	w.mu.Lock()
	defer w.mu.Unlock()
	h := newHandle()
	for _, k := range keys {
		w.waiters[k] = append(w.waiters[k], h)
	}
	return h
}

// UnregisterMany removes h from every key's waiter list. Safe to call
// whether or not h has already fired.
func (w *KeyWatcher) UnregisterMany(keys []string, h *Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, k := range keys {
		list := w.waiters[k]
		out := list[:0]
		for _, candidate := range list {
			if candidate != h {
				out = append(out, candidate)
			}
		}
		if len(out) == 0 {
			delete(w.waiters, k)
		} else {
			w.waiters[k] = out
		}
	}
}

// Notify wakes every handle currently waiting on key, closing each handle's
// channel exactly once, and clears key's waiter list. Called by the
// dispatcher's touch step whenever a write makes key's data newly
// available (e.g. a push onto a list that blocked clients are watching).
func (w *KeyWatcher) Notify(key string) {
	w.mu.Lock()
	handles := w.waiters[key]
	delete(w.waiters, key)
	w.mu.Unlock()

	for _, h := range handles {
		h.fire()
	}
}
