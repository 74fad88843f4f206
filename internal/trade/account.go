package trade

import (
	"time"

	"github.com/newthinker/tradebot/internal/exchange"
	"github.com/shopspring/decimal"
)

// LedgerID is the journal id of the account checkpoint.
const LedgerID = "ledger"

// Ledger is the account checkpoint journaled with the open trades. Trades
// closed at or before At are folded into Realized, so their own records may
// age out of the journal.
type Ledger struct {
	Initial  decimal.Decimal `json:"initial_capital"`
	Realized decimal.Decimal `json:"realized_pnl"`
	Closed   int             `json:"closed_trades"`
	At       time.Time       `json:"at"`
}

// account is the paper cash ledger. Opening reserves the entry value plus
// entry commission; closing returns the value, the gross pnl and charges
// the exit commission.
type account struct {
	initial  decimal.Decimal
	balance  decimal.Decimal
	realized decimal.Decimal
	rate     decimal.Decimal
}

func newAccount(initial, commissionRate float64) *account {
	a := &account{
		initial: decimal.NewFromFloat(initial),
		rate:    decimal.NewFromFloat(commissionRate),
	}
	a.balance = a.initial
	return a
}

func (a *account) commission(price, qty float64) decimal.Decimal {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(qty)).Mul(a.rate)
}

// canAfford reports whether the entry (value + commission) fits in the balance.
func (a *account) canAfford(price, qty float64) bool {
	cost := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(qty))
	return a.balance.GreaterThanOrEqual(cost.Add(a.commission(price, qty)))
}

// reserve debits entry value and commission, returning the commission.
func (a *account) reserve(price, qty float64) decimal.Decimal {
	fee := a.commission(price, qty)
	cost := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(qty))
	a.balance = a.balance.Sub(cost).Sub(fee)
	return fee
}

// refund credits back entry value and commission for a reduced quantity.
func (a *account) refund(price, qty float64) decimal.Decimal {
	fee := a.commission(price, qty)
	cost := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(qty))
	a.balance = a.balance.Add(cost).Add(fee)
	return fee
}

// grossPnL is the price move times quantity in the trade's direction.
func grossPnL(side exchange.Side, entry, exit, qty float64) decimal.Decimal {
	move := decimal.NewFromFloat(exit).Sub(decimal.NewFromFloat(entry))
	if side == exchange.SideSell {
		move = move.Neg()
	}
	return move.Mul(decimal.NewFromFloat(qty))
}

// settle returns value and gross pnl minus exit commission to the balance.
// It reports the net pnl (after both commissions) and the exit commission.
func (a *account) settle(t Trade, exit float64) (net, exitFee decimal.Decimal) {
	gross := grossPnL(t.Side, t.EntryPrice, exit, t.Quantity)
	exitFee = a.commission(exit, t.Quantity)
	value := decimal.NewFromFloat(t.EntryPrice).Mul(decimal.NewFromFloat(t.Quantity))
	a.balance = a.balance.Add(value).Add(gross).Sub(exitFee)

	net = gross.Sub(exitFee).Sub(decimal.NewFromFloat(t.Commission))
	a.realized = a.realized.Add(net)
	return net, exitFee
}

// reset restores the initial balance.
func (a *account) reset() {
	a.balance = a.initial
	a.realized = decimal.Zero
}
