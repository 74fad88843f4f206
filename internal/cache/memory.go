package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value    []byte
	expireAt time.Time
}

func (m memoryItem) expired(now time.Time) bool {
	return !m.expireAt.IsZero() && now.After(m.expireAt)
}

// Memory is an in-process Cache. Expired entries are dropped on read.
type Memory struct {
	mu    sync.RWMutex
	data  map[string]memoryItem
	clock func() time.Time
}

// NewMemory creates an empty memory cache.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]memoryItem), clock: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	item, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if now := m.clock(); item.expired(now) {
		// a Set may have replaced the entry since the read lock was released
		m.mu.Lock()
		item, ok = m.data[key]
		if ok && item.expired(now) {
			delete(m.data, key)
			ok = false
		}
		m.mu.Unlock()
		if !ok {
			return nil, false, nil
		}
	}
	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, true, nil
}

// Set stores value; ttl <= 0 keeps it until deleted.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expireAt = m.clock().Add(ttl)
	}
	m.mu.Lock()
	m.data[key] = item
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
