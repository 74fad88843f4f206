// Package matrix builds and caches the per-symbol signal matrix shown on the dashboard.
package matrix

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/newthinker/tradebot/internal/aggregator"
	"github.com/newthinker/tradebot/internal/cache"
	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/risk"
	"github.com/newthinker/tradebot/internal/strategy"
	"go.uber.org/zap"
)

// DefaultTTL is the freshness window of a stored matrix.
const DefaultTTL = 30 * time.Second

const cacheKey = "signals:matrix"

// StrategyStatus is one strategy's column in a row.
type StrategyStatus struct {
	Name        string      `json:"name"`
	Status      core.Action `json:"status"`
	Confidence  float64     `json:"confidence"`
	PriceTarget *float64    `json:"price_target"`
	Reason      string      `json:"reason"`
}

// Row is the matrix entry of one symbol.
type Row struct {
	Symbol         string             `json:"symbol"`
	CurrentPrice   float64            `json:"current_price"`
	PriceChange24h float64            `json:"price_change_24h"`
	Volume24h      float64            `json:"volume_24h"`
	LastUpdate     time.Time          `json:"last_update"`
	Risk           risk.Assessment    `json:"risk_assessment"`
	Strategies     []StrategyStatus   `json:"strategies"`
	Aggregated     aggregator.Summary `json:"aggregated_signal"`
	CacheExpired   bool               `json:"cache_expired"`
}

// Statuses picks each strategy's most confident signal.
// Strategies that failed or stayed silent are left out; an empty
// result becomes a single neutral "default" column.
func Statuses(results []strategy.Result) []StrategyStatus {
	var out []StrategyStatus
	for _, r := range results {
		if r.Err != nil || len(r.Signals) == 0 {
			continue
		}
		best := r.Signals[0]
		for _, s := range r.Signals[1:] {
			if s.Confidence > best.Confidence {
				best = s
			}
		}
		st := StrategyStatus{
			Name:       r.Strategy,
			Status:     best.Action,
			Confidence: best.Confidence,
			Reason:     best.Reason,
		}
		if best.TakeProfit > 0 {
			tp := best.TakeProfit
			st.PriceTarget = &tp
		}
		out = append(out, st)
	}
	if len(out) == 0 {
		out = append(out, StrategyStatus{
			Name:       "default",
			Status:     core.ActionNeutral,
			Confidence: 0.5,
			Reason:     "not enough data for analysis",
		})
	}
	return out
}

// Votes converts statuses into aggregator votes.
func Votes(statuses []StrategyStatus) []aggregator.Vote {
	votes := make([]aggregator.Vote, len(statuses))
	for i, s := range statuses {
		votes[i] = aggregator.Vote{Strategy: s.Name, Action: s.Status, Confidence: s.Confidence}
	}
	return votes
}

// Input is everything BuildRow needs for one symbol.
type Input struct {
	Symbol          string
	Quote           *core.Quote
	Candles         []core.OHLCV
	Results         []strategy.Result
	VolumeAnomalies int
	Now             time.Time
}

// BuildRow assembles a row from one analysis pass.
func BuildRow(agg *aggregator.Aggregator, in Input) Row {
	statuses := Statuses(in.Results)
	votes := Votes(statuses)
	row := Row{
		Symbol:     in.Symbol,
		LastUpdate: in.Now,
		Risk:       risk.Assess(in.Candles, votes, in.VolumeAnomalies),
		Strategies: statuses,
		Aggregated: agg.Summarize(votes),
	}
	if in.Quote != nil {
		row.CurrentPrice = in.Quote.Price
		row.PriceChange24h = in.Quote.ChangePercent24h
		row.Volume24h = in.Quote.Volume24h
	} else if n := len(in.Candles); n > 0 {
		row.CurrentPrice = in.Candles[n-1].Close
	}
	return row
}

// FailedRow is the placeholder for a symbol whose analysis failed.
func FailedRow(symbol string, now time.Time) Row {
	return Row{
		Symbol:     symbol,
		LastUpdate: now,
		Risk:       risk.Unknown("analysis error"),
		Strategies: []StrategyStatus{},
		Aggregated: aggregator.Summary{Action: core.ActionNeutral},
	}
}

type snapshot struct {
	UpdatedAt time.Time `json:"updated_at"`
	Rows      []Row     `json:"rows"`
}

// Store keeps the latest matrix in a cache.
type Store struct {
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger

	mu   sync.RWMutex
	last snapshot
}

// NewStore creates a matrix store. A nil cache uses an in-memory one.
func NewStore(c cache.Cache, ttl time.Duration, logger *zap.Logger) *Store {
	if c == nil {
		c = cache.NewMemory()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{cache: c, ttl: ttl, logger: logger.Named("matrix")}
}

// Put replaces the stored matrix. Rows are kept sorted by symbol.
func (s *Store) Put(ctx context.Context, rows []Row, now time.Time) error {
	sorted := slices.Clone(rows)
	slices.SortFunc(sorted, func(a, b Row) int { return strings.Compare(a.Symbol, b.Symbol) })

	snap := snapshot{UpdatedAt: now, Rows: sorted}
	s.mu.Lock()
	s.last = snap
	s.mu.Unlock()

	// the cache entry outlives the ttl so stale reads can be flagged
	return cache.SetJSON(ctx, s.cache, cacheKey, snap, 0)
}

func (s *Store) load(ctx context.Context) snapshot {
	var snap snapshot
	ok, err := cache.GetJSON(ctx, s.cache, cacheKey, &snap)
	if err != nil {
		s.logger.Warn("matrix cache read failed", zap.Error(err))
	}
	if err != nil || !ok {
		s.mu.RLock()
		snap = s.last
		s.mu.RUnlock()
		snap.Rows = slices.Clone(snap.Rows)
	}
	return snap
}

// Rows returns the stored matrix; rows older than the ttl are marked cache_expired.
func (s *Store) Rows(ctx context.Context, now time.Time) []Row {
	snap := s.load(ctx)
	if snap.Rows == nil {
		return []Row{}
	}
	if !snap.UpdatedAt.IsZero() && now.Sub(snap.UpdatedAt) > s.ttl {
		for i := range snap.Rows {
			snap.Rows[i].CacheExpired = true
		}
	}
	return snap.Rows
}

// Row returns one symbol's row.
func (s *Store) Row(ctx context.Context, symbol string, now time.Time) (Row, bool) {
	symbol = strings.ToUpper(symbol)
	for _, r := range s.Rows(ctx, now) {
		if r.Symbol == symbol {
			return r, true
		}
	}
	return Row{}, false
}

// UpdatedAt returns when the matrix was last stored.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last.UpdatedAt
}
