package feed

import "sync"

// ring is a capped, insertion-ordered buffer.
type ring[T any] struct {
	mu    sync.RWMutex
	items []T
	size  int
}

func newRing[T any](size int) *ring[T] {
	if size <= 0 {
		size = 500
	}
	return &ring[T]{items: make([]T, 0, min(size, 256)), size: size}
}

func (r *ring[T]) add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, v)
	if over := len(r.items) - r.size; over > 0 {
		clear(r.items[:over])
		r.items = r.items[over:]
	}
}

// latest returns up to limit items accepted by keep, newest first.
func (r *ring[T]) latest(limit int, keep func(T) bool) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []T{}
	for i := len(r.items) - 1; i >= 0; i-- {
		if keep != nil && !keep(r.items[i]) {
			continue
		}
		out = append(out, r.items[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (r *ring[T]) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
