// Package order_book_analysis detects walls, spoofing, absorption and
// imbalance in order book snapshots.
package order_book_analysis

import (
	"fmt"
	"math"
	"time"

	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/strategy"
)

// wallLevels is how many top-of-book levels are scanned for walls and spoofing.
const wallLevels = 10

// Pattern is a detected order book pattern.
type Pattern struct {
	Name     string
	Action   core.Action
	Strength float64
	Metadata map[string]any
}

// OrderBookAnalysis emits the first pattern, in priority order walls,
// spoofing, absorption, imbalance, whose strength clears the minimum.
type OrderBookAnalysis struct {
	wallThreshold      float64 // percent of total volume
	spoofingWindow     time.Duration
	absorptionRatio    float64
	imbalanceThreshold float64
	minStrength        float64
}

// New creates the strategy with default thresholds.
func New() *OrderBookAnalysis {
	return &OrderBookAnalysis{
		wallThreshold:      5.0,
		spoofingWindow:     300 * time.Second,
		absorptionRatio:    3.0,
		imbalanceThreshold: 2.0,
		minStrength:        0.5,
	}
}

func (o *OrderBookAnalysis) Name() string {
	return "order_book_analysis"
}

func (o *OrderBookAnalysis) Description() string {
	return "Order book walls, spoofing, absorption and imbalance"
}

func (o *OrderBookAnalysis) RequiredData() strategy.DataRequirements {
	return strategy.DataRequirements{OrderBook: true, BookHistory: true}
}

func (o *OrderBookAnalysis) Init(cfg strategy.Config) error {
	p := cfg.Params
	o.wallThreshold = strategy.ParamFloat(p, "wall_threshold", o.wallThreshold)
	if secs := strategy.ParamInt(p, "spoofing_time_window", 0); secs > 0 {
		o.spoofingWindow = time.Duration(secs) * time.Second
	}
	o.absorptionRatio = strategy.ParamFloat(p, "absorption_volume_ratio", o.absorptionRatio)
	o.imbalanceThreshold = strategy.ParamFloat(p, "imbalance_threshold", o.imbalanceThreshold)
	o.minStrength = strategy.ParamFloat(p, "min_signal_strength", o.minStrength)
	if o.imbalanceThreshold <= 1 {
		return fmt.Errorf("imbalance_threshold must be > 1, got %f", o.imbalanceThreshold)
	}
	return nil
}

func (o *OrderBookAnalysis) Analyze(ctx strategy.AnalysisContext) ([]core.Signal, error) {
	if ctx.OrderBook == nil {
		return nil, nil
	}
	now := ctx.Now
	if now.IsZero() {
		now = time.Now()
	}

	snapshots := make([]strategy.BookSnapshot, 0, len(ctx.PrevOrderBooks)+1)
	snapshots = append(snapshots, ctx.PrevOrderBooks...)
	snapshots = append(snapshots, strategy.BookSnapshot{Book: *ctx.OrderBook, At: now})

	detectors := []func([]strategy.BookSnapshot) *Pattern{
		func(s []strategy.BookSnapshot) *Pattern { return o.DetectWall(s[len(s)-1].Book) },
		o.DetectSpoofing,
		o.DetectAbsorption,
		func(s []strategy.BookSnapshot) *Pattern { return o.DetectImbalance(s[len(s)-1].Book) },
	}

	for _, detect := range detectors {
		p := detect(snapshots)
		if p == nil || p.Strength < o.minStrength {
			continue
		}
		price := ctx.OrderBook.MidPrice()
		if ctx.Quote != nil && ctx.Quote.Price > 0 {
			price = ctx.Quote.Price
		}
		meta := p.Metadata
		meta["pattern"] = p.Name
		return []core.Signal{{
			Symbol:      ctx.Symbol,
			Action:      p.Action,
			Confidence:  p.Strength,
			Price:       price,
			Reason:      fmt.Sprintf("%s detected (strength %.2f)", p.Name, p.Strength),
			GeneratedAt: now,
			Metadata:    meta,
		}}, nil
	}
	return nil, nil
}

// DetectWall finds a single top level holding more than wallThreshold percent
// of the book. A bid wall reads as SELL, an ask wall as BUY.
func (o *OrderBookAnalysis) DetectWall(ob core.OrderBook) *Pattern {
	total := ob.TotalBidVolume(0) + ob.TotalAskVolume(0)
	if total == 0 {
		return nil
	}

	check := func(levels []core.Level, side string, action core.Action) *Pattern {
		for i, l := range levels[:min(wallLevels, len(levels))] {
			pct := l.Size / total * 100
			if pct > o.wallThreshold {
				return &Pattern{
					Name:     "order_book_walls",
					Action:   action,
					Strength: math.Min(1.0, l.Size/total),
					Metadata: map[string]any{
						"wall_type":       side,
						"wall_price":      l.Price,
						"wall_size":       l.Size,
						"wall_percentage": pct,
						"level":           i + 1,
					},
				}
			}
		}
		return nil
	}

	if p := check(ob.Bids, "bid", core.ActionSell); p != nil {
		return p
	}
	return check(ob.Asks, "ask", core.ActionBuy)
}

// DetectSpoofing looks for large top-of-book orders (over 1% of total volume)
// that vanished between the last two snapshots.
func (o *OrderBookAnalysis) DetectSpoofing(snapshots []strategy.BookSnapshot) *Pattern {
	if len(snapshots) < 2 {
		return nil
	}
	prev, curr := snapshots[len(snapshots)-2], snapshots[len(snapshots)-1]
	elapsed := curr.At.Sub(prev.At)
	if elapsed > o.spoofingWindow {
		return nil
	}

	prevTotal := prev.Book.TotalBidVolume(0) + prev.Book.TotalAskVolume(0)
	if prevTotal == 0 {
		return nil
	}
	threshold := prevTotal * 0.01

	vanished := func(prevLevels, currLevels []core.Level) (float64, int) {
		present := make(map[float64]bool, len(currLevels))
		for _, l := range currLevels {
			present[l.Price] = true
		}
		var vol float64
		var n int
		for _, l := range prevLevels[:min(wallLevels, len(prevLevels))] {
			if l.Size > threshold && !present[l.Price] {
				vol += l.Size
				n++
			}
		}
		return vol, n
	}

	bidGone, nb := vanished(prev.Book.Bids, curr.Book.Bids)
	askGone, na := vanished(prev.Book.Asks, curr.Book.Asks)
	if nb+na == 0 {
		return nil
	}

	action := core.ActionBuy
	if bidGone > askGone {
		action = core.ActionSell
	}
	return &Pattern{
		Name:     "order_book_spoofing",
		Action:   action,
		Strength: math.Min(1.0, (bidGone+askGone)/prevTotal),
		Metadata: map[string]any{
			"disappeared_orders": nb + na,
			"disappeared_volume": bidGone + askGone,
			"bid_disappeared":    bidGone,
			"ask_disappeared":    askGone,
			"time_diff_seconds":  elapsed.Seconds(),
		},
	}
}

// DetectAbsorption flags a last volume change that is absorptionRatio times
// the average change, with one side clearly consumed.
func (o *OrderBookAnalysis) DetectAbsorption(snapshots []strategy.BookSnapshot) *Pattern {
	if len(snapshots) < 3 {
		return nil
	}

	type change struct{ bid, ask, total float64 }
	changes := make([]change, 0, len(snapshots)-1)
	var sum float64
	for i := 1; i < len(snapshots); i++ {
		bid := snapshots[i].Book.TotalBidVolume(0) - snapshots[i-1].Book.TotalBidVolume(0)
		ask := snapshots[i].Book.TotalAskVolume(0) - snapshots[i-1].Book.TotalAskVolume(0)
		c := change{bid: bid, ask: ask, total: math.Abs(bid) + math.Abs(ask)}
		changes = append(changes, c)
		sum += c.total
	}
	avg := sum / float64(len(changes))
	last := changes[len(changes)-1]
	if avg <= 0 || last.total <= avg*o.absorptionRatio {
		return nil
	}

	var action core.Action
	switch {
	case last.bid < 0 && math.Abs(last.bid) > math.Abs(last.ask):
		action = core.ActionSell
	case last.ask < 0 && math.Abs(last.ask) > math.Abs(last.bid):
		action = core.ActionBuy
	default:
		return nil
	}

	return &Pattern{
		Name:     "order_book_absorption",
		Action:   action,
		Strength: math.Min(1.0, last.total/(avg*o.absorptionRatio)),
		Metadata: map[string]any{
			"bid_volume_change": last.bid,
			"ask_volume_change": last.ask,
			"avg_volume_change": avg,
			"absorption_ratio":  last.total / avg,
		},
	}
}

// DetectImbalance compares total bid and ask volume.
func (o *OrderBookAnalysis) DetectImbalance(ob core.OrderBook) *Pattern {
	bid, ask := ob.TotalBidVolume(0), ob.TotalAskVolume(0)
	if ask == 0 {
		return nil
	}
	ratio := bid / ask

	var action core.Action
	var strength float64
	switch {
	case ratio > o.imbalanceThreshold:
		action = core.ActionBuy
		strength = math.Min(1.0, (ratio-1)/(o.imbalanceThreshold-1))
	case ratio < 1/o.imbalanceThreshold:
		action = core.ActionSell
		strength = math.Min(1.0, (1-ratio)/(1-1/o.imbalanceThreshold))
	default:
		return nil
	}

	return &Pattern{
		Name:     "order_book_imbalance",
		Action:   action,
		Strength: strength,
		Metadata: map[string]any{
			"bid_volume":          bid,
			"ask_volume":          ask,
			"bid_ask_ratio":       ratio,
			"imbalance_threshold": o.imbalanceThreshold,
		},
	}
}

var _ strategy.Strategy = (*OrderBookAnalysis)(nil)
