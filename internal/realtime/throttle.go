package realtime

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// Broadcaster sends an event to every client.
type Broadcaster interface {
	Broadcast(e Event)
}

// PriceThrottler coalesces price ticks and flushes them as one price_update per interval.
type PriceThrottler struct {
	out      Broadcaster
	interval time.Duration

	mu      sync.Mutex
	pending map[string]PriceTick
}

// NewPriceThrottler creates a throttler flushing to out every interval.
func NewPriceThrottler(out Broadcaster, interval time.Duration) *PriceThrottler {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &PriceThrottler{out: out, interval: interval, pending: make(map[string]PriceTick)}
}

// Update records the latest price of a symbol, replacing any unflushed one.
func (t *PriceThrottler) Update(symbol string, price, change24h float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[symbol] = PriceTick{Symbol: symbol, Price: price, Change24h: change24h}
}

// Flush broadcasts pending ticks sorted by symbol. It reports whether anything was sent.
func (t *PriceThrottler) Flush() bool {
	t.mu.Lock()
	if len(t.pending) == 0 {
		t.mu.Unlock()
		return false
	}
	ticks := make([]PriceTick, 0, len(t.pending))
	for _, tick := range t.pending {
		ticks = append(ticks, tick)
	}
	clear(t.pending)
	t.mu.Unlock()

	slices.SortFunc(ticks, func(a, b PriceTick) int { return strings.Compare(a.Symbol, b.Symbol) })
	t.out.Broadcast(PriceUpdate{Prices: ticks})
	return true
}

// Run flushes every interval until ctx is done.
func (t *PriceThrottler) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.Flush()
			return
		case <-ticker.C:
			t.Flush()
		}
	}
}
