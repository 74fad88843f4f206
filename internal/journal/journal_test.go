package journal

import (
	"encoding/json"
	"testing"

	"github.com/newthinker/tradebot/internal/config"
)

type record struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func openTemp(t *testing.T, dir string) *Journal {
	t.Helper()
	j, err := Open(config.JournalConfig{Dir: dir, SegmentThreshold: 10, MaxSegments: 10, Sync: true}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return j
}

func TestParseKey(t *testing.T) {
	kind, id, ok := ParseKey(Key(KindTrade, "abc"))
	if !ok || kind != KindTrade || id != "abc" {
		t.Errorf("unexpected parse: %s %s %v", kind, id, ok)
	}
	if _, _, ok := ParseKey("nocolon"); ok {
		t.Error("expected malformed key to fail")
	}
	if _, _, ok := ParseKey("trade:"); ok {
		t.Error("expected empty id to fail")
	}
}

func TestJournal_ReplayLatestPerKey(t *testing.T) {
	dir := t.TempDir()
	j := openTemp(t, dir)

	if err := j.Append(KindTrade, "t1", record{"t1", "open"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := j.Append(KindSignal, "s1", record{"s1", "saved"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := j.Append(KindTrade, "t1", record{"t1", "closed"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := j.Append(KindTrade, "t2", record{}); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	reopened := openTemp(t, dir)
	defer reopened.Close()

	var kinds []Kind
	got := map[string]record{}
	err := reopened.Replay(func(kind Kind, id string, payload []byte) error {
		var r record
		if err := json.Unmarshal(payload, &r); err != nil {
			return err
		}
		kinds = append(kinds, kind)
		got[id] = r
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got["t1"].Status != "closed" {
		t.Errorf("expected latest trade state, got %q", got["t1"].Status)
	}
	// s1 was last written before t1's final record
	if kinds[0] != KindSignal || kinds[1] != KindTrade {
		t.Errorf("unexpected replay order %v", kinds)
	}
}

func TestNop(t *testing.T) {
	var w Writer = Nop{}
	if err := w.Append(KindTrade, "x", nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
