package trade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/exchange"
	"github.com/newthinker/tradebot/internal/journal"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config holds trading limits and accounting parameters.
type Config struct {
	InitialCapital float64
	CommissionRate float64
	MaxPositions   int
	RiskPerTrade   float64 // fraction, e.g. 0.02
	StopLossPct    float64 // percent, e.g. 2
	TakeProfitPct  float64 // percent, e.g. 4
	MaxPositionPct float64 // percent of balance per position
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		InitialCapital: 10000,
		CommissionRate: 0.001,
		MaxPositions:   5,
		RiskPerTrade:   0.02,
		StopLossPct:    2,
		TakeProfitPct:  4,
		MaxPositionPct: 10,
	}
}

// Manager owns every trade and the paper account.
type Manager struct {
	// opMu serializes state-changing operations, including exchange calls.
	opMu sync.Mutex

	mu        sync.RWMutex
	cfg       Config
	acct      *account
	trades    map[string]*Trade
	order     []string          // ids in creation order
	openBySym map[string]string // symbol -> open trade id
	listeners []Listener
	ledger    *Ledger // restored checkpoint, consumed by Reconcile

	exchange exchange.Exchange
	journal  journal.Writer
	logger   *zap.Logger
	now      func() time.Time
}

// NewManager creates a trade manager. ex may be nil when only virtual trades are used.
func NewManager(cfg Config, ex exchange.Exchange, w journal.Writer, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if w == nil {
		w = journal.Nop{}
	}
	if cfg.MaxPositionPct <= 0 {
		cfg.MaxPositionPct = DefaultConfig().MaxPositionPct
	}
	return &Manager{
		cfg:       cfg,
		acct:      newAccount(cfg.InitialCapital, cfg.CommissionRate),
		trades:    make(map[string]*Trade),
		openBySym: make(map[string]string),
		exchange:  ex,
		journal:   w,
		logger:    logger.Named("trade"),
		now:       time.Now,
	}
}

// Subscribe registers a lifecycle listener.
func (m *Manager) Subscribe(fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// SetInitialCapital re-seeds the paper account. It is refused once any trade
// exists, because balance and realized pnl are derived from the seed.
func (m *Manager) SetInitialCapital(capital float64) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if capital <= 0 {
		return core.Errorf(core.ErrInvalidRequest, "initial capital must be positive, got %v", capital)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.order); n > 0 {
		return core.Errorf(core.ErrInvalidRequest, "initial capital cannot change after %d trades", n)
	}
	m.cfg.InitialCapital = capital
	m.acct = newAccount(capital, m.cfg.CommissionRate)
	m.logger.Info("initial capital changed", zap.Float64("capital", capital))
	return nil
}

// InitialCapital returns the capital the paper account was seeded with.
func (m *Manager) InitialCapital() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.acct.initial.InexactFloat64()
}

// SetLimits updates the live risk limits. Commission is fixed at start.
func (m *Manager) SetLimits(maxPositions int, riskPerTrade, stopLossPct, takeProfitPct float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.MaxPositions = maxPositions
	m.cfg.RiskPerTrade = riskPerTrade
	m.cfg.StopLossPct = stopLossPct
	m.cfg.TakeProfitPct = takeProfitPct
}

// Config returns the current limits.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) emit(ev EventType, t Trade) {
	m.mu.RLock()
	listeners := slices.Clone(m.listeners)
	m.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev, t)
	}
}

func (m *Manager) persist(t Trade) {
	if err := m.journal.Append(journal.KindTrade, t.ID, t); err != nil {
		m.logger.Error("journal append failed", zap.String("trade_id", t.ID), zap.Error(err))
	}
}

func round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// Open validates and opens a trade. Real trades go through the exchange.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (*Trade, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	req.Side = exchange.Side(strings.ToUpper(string(req.Side)))
	if req.Symbol == "" {
		return nil, core.WrapError(core.ErrInvalidRequest, ErrInvalidSymbol)
	}
	if !req.Side.Valid() {
		return nil, core.WrapError(core.ErrInvalidRequest, ErrInvalidSide)
	}
	if req.Quantity < 0 {
		return nil, core.WrapError(core.ErrInvalidRequest, ErrInvalidQuantity)
	}
	if !req.Virtual && m.exchange == nil {
		return nil, core.WrapError(core.ErrOrderFailed, ErrNoExchange)
	}

	if req.Price <= 0 && m.exchange != nil {
		q, err := m.exchange.GetTicker(ctx, req.Symbol)
		if err != nil {
			return nil, core.WrapError(core.ErrExchangeFailed, err)
		}
		req.Price = q.Price
	}
	if req.Price <= 0 {
		return nil, core.WrapError(core.ErrInvalidRequest, ErrInvalidPrice)
	}

	m.mu.RLock()
	cfg := m.cfg
	open := len(m.openBySym)
	_, symbolBusy := m.openBySym[req.Symbol]
	balance, _ := m.acct.balance.Float64()
	m.mu.RUnlock()

	if symbolBusy {
		return nil, core.Errorf(core.ErrRiskRejected, "%w: %s", ErrSymbolOpen, req.Symbol)
	}
	if open >= cfg.MaxPositions {
		return nil, core.Errorf(core.ErrRiskRejected, "%w: %d >= %d", ErrMaxPositions, open, cfg.MaxPositions)
	}

	if req.Quantity == 0 {
		req.Quantity = PositionSize(balance, req.Price, Sizing{
			RiskPerTrade:   cfg.RiskPerTrade,
			StopLossPct:    cfg.StopLossPct,
			MaxPositionPct: cfg.MaxPositionPct,
			MaxPositions:   cfg.MaxPositions,
		}, open)
		req.Quantity = round(req.Quantity, 6)
		if req.Quantity <= 0 {
			return nil, core.WrapError(core.ErrRiskRejected, ErrInvalidQuantity)
		}
	}

	defSL, defTP := DefaultStops(req.Side, req.Price, cfg.StopLossPct, cfg.TakeProfitPct)
	if req.StopLoss <= 0 {
		req.StopLoss = defSL
	}
	if req.TakeProfit <= 0 {
		req.TakeProfit = defTP
	}
	req.StopLoss = CorrectStopLoss(req.Side, req.Price, req.StopLoss)
	req.TakeProfit = CorrectTakeProfit(req.Side, req.Price, req.TakeProfit)

	m.mu.RLock()
	affordable := m.acct.canAfford(req.Price, req.Quantity)
	m.mu.RUnlock()
	if !affordable {
		return nil, core.WrapError(core.ErrInsufficientFunds,
			fmt.Errorf("%s %f @ %f exceeds available balance %.2f", req.Symbol, req.Quantity, req.Price, balance))
	}

	now := m.now()
	t := Trade{
		ID:           uuid.NewString(),
		Symbol:       req.Symbol,
		Side:         req.Side,
		EntryPrice:   req.Price,
		CurrentPrice: req.Price,
		Quantity:     req.Quantity,
		StopLoss:     req.StopLoss,
		TakeProfit:   req.TakeProfit,
		Status:       StatusOpen,
		Virtual:      req.Virtual,
		Strategy:     req.Strategy,
		SignalID:     req.SignalID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if !req.Virtual {
		res, err := m.exchange.PlaceMarketOrder(ctx, exchange.OrderRequest{
			Symbol:        t.Symbol,
			Side:          t.Side,
			Quantity:      decimal.NewFromFloat(t.Quantity),
			ClientOrderID: t.ID,
		})
		if err != nil {
			m.logger.Error("open order failed",
				zap.String("symbol", t.Symbol),
				zap.String("side", string(t.Side)),
				zap.Error(err))
			return nil, core.WrapError(core.ErrOrderFailed, err)
		}
		t.OrderID = res.OrderID
		if res.Price > 0 {
			t.EntryPrice = res.Price
			t.CurrentPrice = res.Price
		}
	}

	m.mu.Lock()
	fee := m.acct.reserve(t.EntryPrice, t.Quantity)
	t.Commission = fee.InexactFloat64()
	stored := t
	m.trades[t.ID] = &stored
	m.order = append(m.order, t.ID)
	m.openBySym[t.Symbol] = t.ID
	m.mu.Unlock()

	m.persist(t)
	m.logger.Info("trade opened",
		zap.String("id", t.ID),
		zap.String("symbol", t.Symbol),
		zap.String("side", string(t.Side)),
		zap.Float64("price", t.EntryPrice),
		zap.Float64("qty", t.Quantity),
		zap.Bool("virtual", t.Virtual))
	m.emit(EventOpened, t)
	return &t, nil
}

// OpenVirtual opens a paper trade regardless of the request's Virtual flag.
func (m *Manager) OpenVirtual(ctx context.Context, req OpenRequest) (*Trade, error) {
	req.Virtual = true
	return m.Open(ctx, req)
}

// Close closes an open trade at its latest mark price.
func (m *Manager) Close(ctx context.Context, id string, reason CloseReason) (*Trade, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.closeLocked(ctx, id, reason, 0)
}

// CloseAt closes an open trade at the given price (0 falls back to the ticker).
func (m *Manager) CloseAt(ctx context.Context, id string, reason CloseReason, price float64) (*Trade, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.closeLocked(ctx, id, reason, price)
}

func (m *Manager) closeLocked(ctx context.Context, id string, reason CloseReason, price float64) (*Trade, error) {
	m.mu.RLock()
	ptr, ok := m.trades[id]
	var t Trade
	if ok {
		t = *ptr
	}
	m.mu.RUnlock()

	if !ok {
		return nil, core.Errorf(core.ErrTradeNotFound, "trade %s", id)
	}
	if !t.IsOpen() {
		return nil, core.Errorf(core.ErrTradeClosed, "trade %s", id)
	}
	if reason == "" {
		reason = ReasonManual
	}

	exit := price
	if exit <= 0 {
		exit = t.CurrentPrice
	}
	if m.exchange != nil && price <= 0 {
		if q, err := m.exchange.GetTicker(ctx, t.Symbol); err == nil && q.Price > 0 {
			exit = q.Price
		} else if err != nil {
			m.logger.Warn("ticker for close failed, using last mark", zap.String("symbol", t.Symbol), zap.Error(err))
		}
	}

	if !t.Virtual {
		if m.exchange == nil {
			return nil, core.WrapError(core.ErrOrderFailed, ErrNoExchange)
		}
		res, err := m.exchange.PlaceMarketOrder(ctx, exchange.OrderRequest{
			Symbol:   t.Symbol,
			Side:     t.Side.Opposite(),
			Quantity: decimal.NewFromFloat(t.Quantity),
		})
		if err != nil {
			m.logger.Error("close order failed", zap.String("id", t.ID), zap.Error(err))
			return nil, core.WrapError(core.ErrOrderFailed, err)
		}
		if res.Price > 0 {
			exit = res.Price
		}
	}

	now := m.now()
	m.mu.Lock()
	net, exitFee := m.acct.settle(t, exit)
	t.Status = StatusClosed
	t.CurrentPrice = exit
	t.ExitPrice = exit
	t.CloseReason = reason
	t.Commission = decimal.NewFromFloat(t.Commission).Add(exitFee).InexactFloat64()
	t.PnL = round(net.InexactFloat64(), 8)
	if v := t.Value(); v > 0 {
		t.PnLPercent = round(t.PnL/v*100, 2)
	}
	t.UpdatedAt = now
	t.ClosedAt = &now
	*m.trades[t.ID] = t
	delete(m.openBySym, t.Symbol)
	m.mu.Unlock()

	m.persist(t)
	m.logger.Info("trade closed",
		zap.String("id", t.ID),
		zap.String("symbol", t.Symbol),
		zap.String("reason", string(reason)),
		zap.Float64("exit", exit),
		zap.Float64("pnl", t.PnL))
	m.emit(EventClosed, t)
	return &t, nil
}

// CloseAll closes every open trade. Failures are collected and the rest
// proceed; the trades that did close are returned even when err is set.
func (m *Manager) CloseAll(ctx context.Context) ([]Trade, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	closed := []Trade{}
	var errs []error
	for _, t := range m.Active() {
		c, err := m.closeLocked(ctx, t.ID, ReasonCloseAll, 0)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.ID, err))
			continue
		}
		closed = append(closed, *c)
	}
	if len(errs) > 0 {
		return closed, core.WrapError(core.ErrOrderFailed, errors.Join(errs...))
	}
	return closed, nil
}

// Modify changes stop loss, take profit or quantity of an open trade.
func (m *Manager) Modify(id string, req ModifyRequest) (*Trade, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	ptr, ok := m.trades[id]
	if !ok {
		m.mu.Unlock()
		return nil, core.Errorf(core.ErrTradeNotFound, "trade %s", id)
	}
	t := *ptr
	if !t.IsOpen() {
		m.mu.Unlock()
		return nil, core.Errorf(core.ErrTradeClosed, "trade %s", id)
	}

	ref := t.CurrentPrice
	if req.StopLoss != nil {
		sl := *req.StopLoss
		if sl <= 0 || (t.Side == exchange.SideBuy && sl >= ref) || (t.Side == exchange.SideSell && sl <= ref) {
			m.mu.Unlock()
			return nil, core.WrapError(core.ErrInvalidRequest, ErrInvalidStopLoss)
		}
		t.StopLoss = sl
	}
	if req.TakeProfit != nil {
		tp := *req.TakeProfit
		if tp <= 0 || (t.Side == exchange.SideBuy && tp <= ref) || (t.Side == exchange.SideSell && tp >= ref) {
			m.mu.Unlock()
			return nil, core.WrapError(core.ErrInvalidRequest, ErrInvalidTarget)
		}
		t.TakeProfit = tp
	}
	if req.Quantity != nil {
		q := *req.Quantity
		if q <= 0 {
			m.mu.Unlock()
			return nil, core.WrapError(core.ErrInvalidRequest, ErrInvalidQuantity)
		}
		// only paper trades can be resized without touching the exchange
		if !t.Virtual && q != t.Quantity {
			m.mu.Unlock()
			return nil, core.Errorf(core.ErrInvalidRequest, "quantity of real trades cannot be modified")
		}
		switch {
		case q > t.Quantity:
			extra := q - t.Quantity
			if !m.acct.canAfford(t.EntryPrice, extra) {
				m.mu.Unlock()
				return nil, core.Errorf(core.ErrInsufficientFunds, "cannot add %f %s", extra, t.Symbol)
			}
			fee := m.acct.reserve(t.EntryPrice, extra)
			t.Commission = decimal.NewFromFloat(t.Commission).Add(fee).InexactFloat64()
		case q < t.Quantity:
			fee := m.acct.refund(t.EntryPrice, t.Quantity-q)
			t.Commission = decimal.NewFromFloat(t.Commission).Sub(fee).InexactFloat64()
		}
		t.Quantity = q
		m.mark(&t, t.CurrentPrice)
	}
	t.UpdatedAt = m.now()
	*ptr = t
	m.mu.Unlock()

	m.persist(t)
	m.emit(EventUpdated, t)
	return &t, nil
}

// mark updates unrealized pnl of an open trade.
func (m *Manager) mark(t *Trade, price float64) {
	t.CurrentPrice = price
	gross := grossPnL(t.Side, t.EntryPrice, price, t.Quantity)
	t.PnL = round(gross.InexactFloat64(), 8)
	if v := t.Value(); v > 0 {
		t.PnLPercent = round(t.PnL/v*100, 2)
	}
}

// UpdatePrice marks the symbol's open trade to market and closes it when
// its stop loss or take profit is crossed. It returns the closed trade, if any.
func (m *Manager) UpdatePrice(ctx context.Context, symbol string, price float64) (*Trade, error) {
	if price <= 0 {
		return nil, nil
	}
	m.opMu.Lock()
	defer m.opMu.Unlock()

	symbol = strings.ToUpper(symbol)
	m.mu.Lock()
	id, ok := m.openBySym[symbol]
	if !ok {
		m.mu.Unlock()
		return nil, nil
	}
	ptr := m.trades[id]
	m.mark(ptr, price)
	ptr.UpdatedAt = m.now()
	t := *ptr
	m.mu.Unlock()

	if reason, hit := StopHit(t, price); hit {
		return m.closeLocked(ctx, id, reason, price)
	}
	m.emit(EventUpdated, t)
	return nil, nil
}

// OpenFor returns the open trade on symbol, if any.
func (m *Manager) OpenFor(symbol string) (*Trade, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.openBySym[strings.ToUpper(symbol)]
	if !ok {
		return nil, false
	}
	out := *m.trades[id]
	return &out, true
}

// Get returns one trade.
func (m *Manager) Get(id string) (*Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trades[id]
	if !ok {
		return nil, core.Errorf(core.ErrTradeNotFound, "trade %s", id)
	}
	out := *t
	return &out, nil
}

// Active returns open trades oldest first.
func (m *Manager) Active() []Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Trade{}
	for _, id := range m.order {
		if t := m.trades[id]; t.IsOpen() {
			out = append(out, *t)
		}
	}
	return out
}

// ActiveVirtual returns open paper trades.
func (m *Manager) ActiveVirtual() []Trade {
	out := []Trade{}
	for _, t := range m.Active() {
		if t.Virtual {
			out = append(out, t)
		}
	}
	return out
}

// History returns closed trades newest first.
func (m *Manager) History(limit, offset int) []Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Trade{}
	skipped := 0
	for i := len(m.order) - 1; i >= 0; i-- {
		t := m.trades[m.order[i]]
		if t.IsOpen() {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, *t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// All returns every trade, newest first.
func (m *Manager) All() []Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Trade, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, *m.trades[m.order[i]])
	}
	return out
}

// Portfolio summarizes balance and open exposure.
func (m *Manager) Portfolio() Portfolio {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var inPositions, unrealized decimal.Decimal
	for _, id := range m.openBySym {
		t := m.trades[id]
		inPositions = inPositions.Add(decimal.NewFromFloat(t.EntryPrice).Mul(decimal.NewFromFloat(t.Quantity)))
		unrealized = unrealized.Add(grossPnL(t.Side, t.EntryPrice, t.CurrentPrice, t.Quantity))
	}
	total := m.acct.balance.Add(inPositions).Add(unrealized)
	return Portfolio{
		Initial:       m.acct.initial.Round(2).InexactFloat64(),
		Total:         total.Round(2).InexactFloat64(),
		Available:     m.acct.balance.Round(2).InexactFloat64(),
		InPositions:   inPositions.Round(2).InexactFloat64(),
		Unrealized:    unrealized.Round(2).InexactFloat64(),
		Realized:      m.acct.realized.Round(2).InexactFloat64(),
		OpenPositions: len(m.openBySym),
	}
}

// Stats aggregates closed trades.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{}
	best, worst := math.Inf(-1), math.Inf(1)
	var total, fees decimal.Decimal
	for _, t := range m.trades {
		if t.IsOpen() {
			continue
		}
		s.TotalTrades++
		if t.PnL > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
		best = math.Max(best, t.PnL)
		worst = math.Min(worst, t.PnL)
		total = total.Add(decimal.NewFromFloat(t.PnL))
		fees = fees.Add(decimal.NewFromFloat(t.Commission))
	}
	if s.TotalTrades > 0 {
		s.WinRate = round(float64(s.Wins)/float64(s.TotalTrades)*100, 2)
		s.BestTrade = best
		s.WorstTrade = worst
	}
	s.TotalPnL = total.Round(2).InexactFloat64()
	s.Commission = fees.Round(2).InexactFloat64()
	return s
}

// Restore loads one journaled trade record. Call Reconcile after the last record.
func (m *Manager) Restore(payload []byte) error {
	var t Trade
	if err := json.Unmarshal(payload, &t); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.trades[t.ID]; !seen {
		m.order = append(m.order, t.ID)
	}
	stored := t
	m.trades[t.ID] = &stored
	return nil
}

// Checkpoint journals the account ledger and every open trade again, so
// reconciling never depends on records older than the last checkpoint.
// It returns the number of open trades written.
func (m *Manager) Checkpoint() int {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	l := Ledger{
		Initial:  m.acct.initial,
		Realized: m.acct.realized,
		At:       m.now().UTC(),
	}
	open := make([]Trade, 0, len(m.openBySym))
	for _, id := range m.order {
		if t := m.trades[id]; t.IsOpen() {
			open = append(open, *t)
		} else {
			l.Closed++
		}
	}
	m.mu.RUnlock()

	if err := m.journal.Append(journal.KindAccount, LedgerID, l); err != nil {
		m.logger.Error("ledger checkpoint failed", zap.Error(err))
		return 0
	}
	for _, t := range open {
		m.persist(t)
	}
	m.logger.Debug("trades checkpointed", zap.Int("open", len(open)), zap.Int("closed", l.Closed))
	return len(open)
}

// RestoreLedger loads a journaled account checkpoint.
func (m *Manager) RestoreLedger(payload []byte) error {
	var l Ledger
	if err := json.Unmarshal(payload, &l); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger = &l
	return nil
}

// Reconcile rebuilds the open index and the account balance from restored
// trades, starting from the restored checkpoint when there is one.
func (m *Manager) Reconcile() {
	m.mu.Lock()
	defer m.mu.Unlock()

	slices.SortStableFunc(m.order, func(a, b string) int {
		return m.trades[a].CreatedAt.Compare(m.trades[b].CreatedAt)
	})
	if l := m.ledger; l != nil && l.Initial.IsPositive() {
		m.cfg.InitialCapital = l.Initial.InexactFloat64()
		m.acct = newAccount(m.cfg.InitialCapital, m.cfg.CommissionRate)
		m.acct.initial = l.Initial
		m.acct.balance = l.Initial.Add(l.Realized)
		m.acct.realized = l.Realized
	} else {
		m.acct.reset()
	}
	m.openBySym = make(map[string]string)
	for _, id := range m.order {
		t := m.trades[id]
		if t.IsOpen() {
			m.acct.balance = m.acct.balance.
				Sub(decimal.NewFromFloat(t.EntryPrice).Mul(decimal.NewFromFloat(t.Quantity))).
				Sub(decimal.NewFromFloat(t.Commission))
			m.openBySym[t.Symbol] = id
			continue
		}
		if m.ledger != nil && t.ClosedAt != nil && !t.ClosedAt.After(m.ledger.At) {
			continue
		}
		pnl := decimal.NewFromFloat(t.PnL)
		m.acct.balance = m.acct.balance.Add(pnl)
		m.acct.realized = m.acct.realized.Add(pnl)
	}
	m.ledger = nil
	m.logger.Info("trades restored",
		zap.Int("total", len(m.order)),
		zap.Int("open", len(m.openBySym)),
		zap.String("balance", m.acct.balance.StringFixed(2)))
}
