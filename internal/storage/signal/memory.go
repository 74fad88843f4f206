package signal

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/journal"
)

// MemoryStore is a capacity-bounded in-memory signal store.
// Saved signals are optionally mirrored to a journal.
type MemoryStore struct {
	mu      sync.RWMutex
	signals []core.Signal // oldest first
	maxSize int
	journal journal.Writer
}

// NewMemoryStore creates a new in-memory store with max capacity.
func NewMemoryStore(maxSize int, w journal.Writer) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if w == nil {
		w = journal.Nop{}
	}
	return &MemoryStore{
		signals: make([]core.Signal, 0, min(maxSize, 1024)),
		maxSize: maxSize,
		journal: w,
	}
}

// Save adds a signal to the store.
func (m *MemoryStore) Save(ctx context.Context, signal core.Signal) (core.Signal, error) {
	if signal.ID == "" {
		signal.ID = uuid.NewString()
	}
	if err := m.journal.Append(journal.KindSignal, signal.ID, signal); err != nil {
		return signal, err
	}

	m.mu.Lock()
	m.insert(signal)
	m.mu.Unlock()
	return signal, nil
}

// insert appends and trims the oldest entries over capacity. Caller holds mu.
func (m *MemoryStore) insert(signal core.Signal) {
	m.signals = append(m.signals, signal)
	if len(m.signals) > m.maxSize {
		m.signals = slices.Delete(m.signals, 0, len(m.signals)-m.maxSize)
	}
}

// Restore loads a journaled signal without re-journaling it.
func (m *MemoryStore) Restore(payload []byte) error {
	var sig core.Signal
	if err := json.Unmarshal(payload, &sig); err != nil {
		return err
	}
	m.mu.Lock()
	m.insert(sig)
	m.mu.Unlock()
	return nil
}

// GetByID retrieves a signal by ID.
func (m *MemoryStore) GetByID(ctx context.Context, id string) (*core.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.signals {
		if m.signals[i].ID == id {
			sig := m.signals[i]
			return &sig, nil
		}
	}
	return nil, core.ErrNoData
}

// List returns signals matching the filter, newest first.
func (m *MemoryStore) List(ctx context.Context, filter ListFilter) ([]core.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []core.Signal{}
	skipped := 0
	for i := len(m.signals) - 1; i >= 0; i-- {
		sig := m.signals[i]
		if !filter.matches(sig) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		result = append(result, sig)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

// Latest returns up to limit signals, newest first.
func (m *MemoryStore) Latest(ctx context.Context, limit int) ([]core.Signal, error) {
	return m.List(ctx, ListFilter{Limit: limit})
}

// Count returns the count of matching signals.
func (m *MemoryStore) Count(ctx context.Context, filter ListFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, sig := range m.signals {
		if filter.matches(sig) {
			count++
		}
	}
	return count, nil
}

func (f ListFilter) matches(sig core.Signal) bool {
	if f.Symbol != "" && sig.Symbol != f.Symbol {
		return false
	}
	if f.Strategy != "" && sig.Strategy != f.Strategy {
		return false
	}
	if f.Action != "" && sig.Action != f.Action {
		return false
	}
	if sig.Confidence < f.MinConfidence {
		return false
	}
	if !f.From.IsZero() && sig.GeneratedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && sig.GeneratedAt.After(f.To) {
		return false
	}
	return true
}
