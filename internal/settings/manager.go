package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/storage/archive"
	"go.uber.org/zap"
)

// ExportPrefix is the archive folder for exported settings.
const ExportPrefix = "settings"

// DocumentVersion is the current export format version.
const DocumentVersion = 1

// Document is the export/import envelope.
type Document struct {
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Settings   Settings  `json:"settings"`
}

// Guard inspects a validated change before it is committed. Returning an
// error rejects the change.
type Guard func(prev, next Settings) error

// Manager owns the live settings and notifies subscribers on change.
// Changes are serialized: subscribers see every committed version in order,
// and must not change settings themselves.
type Manager struct {
	commitMu sync.Mutex

	mu       sync.RWMutex
	current  Settings
	defaults Settings
	subs     []func(Settings)
	guards   []Guard

	archive archive.Storage
	logger  *zap.Logger
	now     func() time.Time
}

// NewManager creates a manager seeded with defaults. store may be nil.
func NewManager(defaults Settings, store archive.Storage, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		current:  defaults.Clone(),
		defaults: defaults.Clone(),
		archive:  store,
		logger:   logger.Named("settings"),
		now:      time.Now,
	}
}

// Subscribe registers fn to receive the new settings after every change.
func (m *Manager) Subscribe(fn func(Settings)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// AddGuard registers fn to vet every change before commit.
func (m *Manager) AddGuard(fn Guard) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guards = append(m.guards, fn)
}

// Get returns a copy of the current settings.
func (m *Manager) Get() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone()
}

// apply mutates a copy, validates it, runs the guards, commits and notifies.
// commitMu is held until every subscriber returns, so a later change cannot
// be committed or delivered ahead of this one.
func (m *Manager) apply(mutate func(*Settings) error) (Settings, error) {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	m.mu.RLock()
	prev := m.current.Clone()
	guards := slices.Clone(m.guards)
	subs := slices.Clone(m.subs)
	m.mu.RUnlock()

	next := prev.Clone()
	if err := mutate(&next); err != nil {
		return Settings{}, err
	}
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	for _, g := range guards {
		if err := g(prev.Clone(), next.Clone()); err != nil {
			return Settings{}, err
		}
	}

	m.mu.Lock()
	m.current = next
	m.mu.Unlock()

	for _, fn := range subs {
		fn(next.Clone())
	}
	return next.Clone(), nil
}

// UpdateGeneral replaces the general section.
func (m *Manager) UpdateGeneral(g General) (Settings, error) {
	return m.apply(func(s *Settings) error {
		s.General = g
		return nil
	})
}

// UpdateRisk replaces the risk section.
func (m *Manager) UpdateRisk(r Risk) (Settings, error) {
	return m.apply(func(s *Settings) error {
		s.Risk = r
		return nil
	})
}

// Update sets one value by dotted key, e.g. "risk.max_positions" or "strategy_weights.momentum".
func (m *Manager) Update(key string, value any) (Settings, error) {
	return m.apply(func(s *Settings) error {
		return setKey(s, key, value)
	})
}

// BulkUpdate applies all keys atomically: one invalid value rejects the whole batch.
func (m *Manager) BulkUpdate(values map[string]any) (Settings, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return m.apply(func(s *Settings) error {
		for _, k := range keys {
			if err := setKey(s, k, values[k]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Reset restores the seeded defaults. A guard may refuse it.
func (m *Manager) Reset() (Settings, error) {
	return m.apply(func(s *Settings) error {
		*s = m.defaults.Clone()
		return nil
	})
}

// Pairs returns the active trading pairs.
func (m *Manager) Pairs() []string {
	return m.Get().Pairs
}

// AddPair appends a pair. Adding an existing pair is an error.
func (m *Manager) AddPair(pair string) (Settings, error) {
	pair = NormalizePair(pair)
	return m.apply(func(s *Settings) error {
		if slices.Contains(s.Pairs, pair) {
			return invalid("trading pair %s already active", pair)
		}
		s.Pairs = append(s.Pairs, pair)
		return nil
	})
}

// RemovePair drops a pair.
func (m *Manager) RemovePair(pair string) (Settings, error) {
	pair = NormalizePair(pair)
	return m.apply(func(s *Settings) error {
		i := slices.Index(s.Pairs, pair)
		if i < 0 {
			return core.Errorf(core.ErrSymbolNotFound, "trading pair %s not active", pair)
		}
		s.Pairs = slices.Delete(s.Pairs, i, i+1)
		return nil
	})
}

// SetPairs replaces the pair list.
func (m *Manager) SetPairs(pairs []string) (Settings, error) {
	return m.apply(func(s *Settings) error {
		s.Pairs = s.Pairs[:0]
		for _, p := range pairs {
			s.Pairs = append(s.Pairs, NormalizePair(p))
		}
		return nil
	})
}

// Export returns the current settings document and keeps a copy in the archive.
func (m *Manager) Export(ctx context.Context) (Document, error) {
	doc := Document{Version: DocumentVersion, ExportedAt: m.now().UTC(), Settings: m.Get()}
	if m.archive == nil {
		return doc, nil
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return doc, err
	}
	path := fmt.Sprintf("%s/%s.json", ExportPrefix, doc.ExportedAt.Format("20060102T150405.000000000"))
	if err := m.archive.Write(ctx, path, data); err != nil {
		m.logger.Warn("settings archive write failed", zap.String("path", path), zap.Error(err))
		return doc, err
	}
	m.logger.Info("settings exported", zap.String("path", path))
	return doc, nil
}

// Import validates and applies an exported document. A bare Settings object is accepted too.
func (m *Manager) Import(data []byte) (Settings, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Settings{}, core.Errorf(core.ErrInvalidRequest, "decode settings: %w", err)
	}
	if doc.Version == 0 && doc.Settings.General.AnalysisIntervalSeconds == 0 {
		var bare Settings
		if err := json.Unmarshal(data, &bare); err != nil {
			return Settings{}, core.Errorf(core.ErrInvalidRequest, "decode settings: %w", err)
		}
		doc.Settings = bare
	} else if doc.Version > DocumentVersion {
		return Settings{}, invalid("unsupported settings version %d", doc.Version)
	}

	imported := doc.Settings.Clone()
	for i, p := range imported.Pairs {
		imported.Pairs[i] = NormalizePair(p)
	}
	return m.apply(func(s *Settings) error {
		*s = imported
		return nil
	})
}

// ImportLatest applies the newest exported document from the archive.
func (m *Manager) ImportLatest(ctx context.Context) (Settings, error) {
	if m.archive == nil {
		return Settings{}, core.Errorf(core.ErrNoData, "no archive configured")
	}
	path, ok, err := archive.Latest(ctx, m.archive, ExportPrefix)
	if err != nil {
		return Settings{}, err
	}
	if !ok {
		return Settings{}, core.Errorf(core.ErrNoData, "no exported settings")
	}
	data, err := m.archive.Read(ctx, path)
	if err != nil {
		return Settings{}, err
	}
	return m.Import(data)
}
