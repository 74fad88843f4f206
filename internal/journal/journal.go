// Package journal persists trade and signal records in a segmented write-ahead log.
package journal

import (
	"encoding/json"
	"slices"
	"strings"
	"sync"

	"github.com/newthinker/tradebot/internal/config"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"go.uber.org/zap"
)

// Kind tags the record type in its WAL key.
type Kind string

const (
	KindTrade   Kind = "trade"
	KindSignal  Kind = "signal"
	KindAccount Kind = "account"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("journal: closed")

// Writer appends records.
type Writer interface {
	Append(kind Kind, id string, v any) error
}

// Journal is a gowal-backed record log. Later records for the same key
// supersede earlier ones on replay.
type Journal struct {
	mu     sync.Mutex
	wal    *gowal.Wal
	closed bool
	logger *zap.Logger
}

// Open opens or creates the journal in cfg.Dir.
func Open(cfg config.JournalConfig, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SegmentThreshold <= 0 {
		cfg.SegmentThreshold = 1000
	}
	if cfg.MaxSegments <= 0 {
		cfg.MaxSegments = 100
	}
	w, err := gowal.NewWAL(gowal.Config{
		Dir:              cfg.Dir,
		Prefix:           "seg_",
		SegmentThreshold: cfg.SegmentThreshold,
		MaxSegments:      cfg.MaxSegments,
		IsInSyncDiskMode: cfg.Sync,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open journal in %s", cfg.Dir)
	}
	return &Journal{wal: w, logger: logger.Named("journal")}, nil
}

// Key builds the WAL key of a record.
func Key(kind Kind, id string) string {
	return string(kind) + ":" + id
}

// ParseKey splits a WAL key into kind and id.
func ParseKey(key string) (Kind, string, bool) {
	kind, id, ok := strings.Cut(key, ":")
	if !ok || id == "" {
		return "", "", false
	}
	return Kind(kind), id, true
}

// Append writes v as JSON under kind:id.
func (j *Journal) Append(kind Kind, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %s record", kind)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if err := j.wal.Write(j.wal.CurrentIndex()+1, Key(kind, id), data); err != nil {
		return errors.Wrapf(err, "write %s record %s", kind, id)
	}
	return nil
}

// Replay calls fn for the latest record of every key, in write order of that latest record.
func (j *Journal) Replay(fn func(kind Kind, id string, payload []byte) error) error {
	type entry struct {
		kind    Kind
		id      string
		payload []byte
		seq     int
	}

	j.mu.Lock()
	latest := make(map[string]*entry)
	seq := 0
	for msg := range j.wal.Iterator() {
		kind, id, ok := ParseKey(msg.Key)
		if !ok {
			j.logger.Warn("skipping malformed journal key", zap.String("key", msg.Key))
			continue
		}
		seq++
		latest[msg.Key] = &entry{kind: kind, id: id, payload: msg.Value, seq: seq}
	}
	j.mu.Unlock()

	ordered := make([]*entry, 0, len(latest))
	for _, e := range latest {
		ordered = append(ordered, e)
	}
	slices.SortFunc(ordered, func(a, b *entry) int { return a.seq - b.seq })

	for _, e := range ordered {
		if err := fn(e.kind, e.id, e.payload); err != nil {
			return errors.Wrapf(err, "replay %s", Key(e.kind, e.id))
		}
	}
	return nil
}

// Close flushes and closes the WAL. Further appends fail with ErrClosed.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.wal.Close()
}

// Nop discards every record.
type Nop struct{}

func (Nop) Append(Kind, string, any) error { return nil }
