package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/newthinker/tradebot/internal/api/response"
	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/feed"
	"github.com/newthinker/tradebot/internal/matrix"
	"github.com/newthinker/tradebot/internal/storage/signal"
	"github.com/newthinker/tradebot/internal/trade"
)

// whaleDetailLimit bounds the whale transactions shown per symbol.
const whaleDetailLimit = 20

// SignalsHandler serves stored signals and the signal matrix.
type SignalsHandler struct {
	store  signal.Store
	matrix *matrix.Store
	trades *trade.Manager
	whales *feed.Whales
	now    func() time.Time
}

// NewSignalsHandler creates a signals handler. whales may be nil.
func NewSignalsHandler(store signal.Store, m *matrix.Store, trades *trade.Manager, whales *feed.Whales) *SignalsHandler {
	return &SignalsHandler{store: store, matrix: m, trades: trades, whales: whales, now: time.Now}
}

// Latest handles GET /api/signals/latest?limit=100.
func (h *SignalsHandler) Latest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := signal.ListFilter{
		Symbol:   strings.ToUpper(q.Get("symbol")),
		Strategy: q.Get("strategy"),
		Limit:    queryLimit(r, 100, 1000),
	}
	if action := q.Get("action"); action != "" {
		filter.Action = core.ParseAction(action)
	}

	signals, err := h.store.List(r.Context(), filter)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, signals)
}

// SymbolDetails is everything known about one pair.
type SymbolDetails struct {
	Symbol            string                  `json:"symbol"`
	Matrix            *matrix.Row             `json:"matrix,omitempty"`
	Signals           []core.Signal           `json:"signals"`
	OpenTrade         *trade.Trade            `json:"open_trade,omitempty"`
	WhaleTransactions []core.WhaleTransaction `json:"whale_transactions"`
}

// Details handles GET /api/signals/details/{symbol}.
func (h *SignalsHandler) Details(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	if symbol == "" {
		response.Fail(w, core.ErrInvalidRequest)
		return
	}
	ctx := r.Context()

	signals, err := h.store.List(ctx, signal.ListFilter{Symbol: symbol, Limit: 20})
	if err != nil {
		response.Fail(w, err)
		return
	}
	details := SymbolDetails{
		Symbol:            symbol,
		Signals:           signals,
		WhaleTransactions: []core.WhaleTransaction{},
	}
	if row, ok := h.matrix.Row(ctx, symbol, h.now()); ok {
		details.Matrix = &row
	}
	if t, ok := h.trades.OpenFor(symbol); ok {
		details.OpenTrade = t
	}
	if h.whales != nil {
		details.WhaleTransactions = h.whales.List(symbol, whaleDetailLimit)
	}

	if details.Matrix == nil && len(signals) == 0 && details.OpenTrade == nil {
		response.Fail(w, core.ErrSymbolNotFound)
		return
	}
	response.JSON(w, http.StatusOK, details)
}

// Matrix handles GET /api/signals/matrix.
func (h *SignalsHandler) Matrix(w http.ResponseWriter, r *http.Request) {
	rows := h.matrix.Rows(r.Context(), h.now())
	data := map[string]any{
		"rows":       rows,
		"updated_at": h.matrix.UpdatedAt(),
	}
	if len(rows) == 0 {
		response.Message(w, http.StatusOK, data, "No data available yet")
		return
	}
	response.JSON(w, http.StatusOK, data)
}
