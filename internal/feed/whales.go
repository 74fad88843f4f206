package feed

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/tradebot/internal/core"
)

var (
	ErrWhaleSymbol = errors.New("feed: whale transaction needs a symbol")
	ErrWhaleAmount = errors.New("feed: whale transaction needs a positive amount")
	ErrWhaleType   = errors.New("feed: unknown whale transaction type")
)

// Whales tracks large transfers reported by on-chain monitors.
type Whales struct {
	txs      *ring[core.WhaleTransaction]
	minValue float64
	onAdd    func(core.WhaleTransaction)
	now      func() time.Time
}

// NewWhales creates a tracker that ignores transfers worth less than minUSD.
func NewWhales(capacity int, minUSD float64) *Whales {
	return &Whales{txs: newRing[core.WhaleTransaction](capacity), minValue: minUSD, now: time.Now}
}

// OnAdd sets a callback for accepted transactions. Set it before use.
func (w *Whales) OnAdd(fn func(core.WhaleTransaction)) {
	w.onAdd = fn
}

// Add validates and stores a transaction. It reports false when the
// transaction is below the tracking threshold.
func (w *Whales) Add(tx core.WhaleTransaction) (core.WhaleTransaction, bool, error) {
	tx.Symbol = strings.ToUpper(strings.TrimSpace(tx.Symbol))
	if tx.Symbol == "" {
		return tx, false, core.WrapError(core.ErrInvalidRequest, ErrWhaleSymbol)
	}
	if tx.Amount <= 0 {
		return tx, false, core.WrapError(core.ErrInvalidRequest, ErrWhaleAmount)
	}
	switch tx.Type {
	case core.WhaleExchangeDeposit, core.WhaleExchangeWithdrawal, core.WhaleTransfer:
	case "":
		tx.Type = core.WhaleTransfer
	default:
		return tx, false, core.WrapError(core.ErrInvalidRequest, ErrWhaleType)
	}
	if tx.USDValue < w.minValue {
		return tx, false, nil
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Time.IsZero() {
		tx.Time = w.now()
	}
	w.txs.add(tx)
	if w.onAdd != nil {
		w.onAdd(tx)
	}
	return tx, true, nil
}

// baseAsset strips a known quote suffix so BTCUSDT matches transfers of BTC.
func baseAsset(symbol string) string {
	for _, q := range []string{"USDT", "USDC", "BTC", "ETH"} {
		if base, ok := strings.CutSuffix(symbol, q); ok && base != "" {
			return base
		}
	}
	return symbol
}

func matches(tx core.WhaleTransaction, symbol string) bool {
	if symbol == "" {
		return true
	}
	symbol = strings.ToUpper(symbol)
	return tx.Symbol == symbol || tx.Symbol == baseAsset(symbol) || baseAsset(tx.Symbol) == baseAsset(symbol)
}

// Recent returns the transactions for a trading pair since the cutoff, oldest first.
func (w *Whales) Recent(symbol string, since time.Time) []core.WhaleTransaction {
	out := w.txs.latest(0, func(tx core.WhaleTransaction) bool {
		return !tx.Time.Before(since) && matches(tx, symbol)
	})
	slices.Reverse(out)
	return out
}

// List returns up to limit transactions, newest first, optionally filtered by symbol.
func (w *Whales) List(symbol string, limit int) []core.WhaleTransaction {
	return w.txs.latest(limit, func(tx core.WhaleTransaction) bool { return matches(tx, symbol) })
}

// Len returns the number of stored transactions.
func (w *Whales) Len() int { return w.txs.len() }
