package api

import (
	"net/http"
	"strings"

	"github.com/newthinker/tradebot/internal/api/response"
	"github.com/newthinker/tradebot/internal/exchange"
	"github.com/newthinker/tradebot/internal/trade"
)

// virtualLimit bounds the virtual trade listing.
const virtualLimit = 50

// TradesHandler serves the trade manager: listings, manual trades and
// dashboard balances.
type TradesHandler struct {
	trades *trade.Manager
}

// NewTradesHandler creates a trades handler.
func NewTradesHandler(trades *trade.Manager) *TradesHandler {
	return &TradesHandler{trades: trades}
}

// Active handles GET /api/trades/active and /api/dashboard/positions.
func (h *TradesHandler) Active(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.trades.Active())
}

// History handles GET /api/trades/history?limit=50&offset=0.
func (h *TradesHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 500)
	offset := queryInt(r, "offset", 0, 0)
	response.JSON(w, http.StatusOK, h.trades.History(limit, offset))
}

// Recent handles GET /api/dashboard/recent-trades?limit=20.
func (h *TradesHandler) Recent(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.trades.History(queryLimit(r, 20, 500), 0))
}

// Balance handles GET /api/dashboard/balance.
func (h *TradesHandler) Balance(w http.ResponseWriter, r *http.Request) {
	p := h.trades.Portfolio()
	response.JSON(w, http.StatusOK, map[string]any{
		"total_usdt":     p.Total,
		"available_usdt": p.Available,
		"in_positions":   p.InPositions,
		"unrealized_pnl": p.Unrealized,
		"realized_pnl":   p.Realized,
		"open_positions": p.OpenPositions,
	})
}

// Virtual handles GET /api/trades/virtual: the newest paper trades.
func (h *TradesHandler) Virtual(w http.ResponseWriter, r *http.Request) {
	out := []trade.Trade{}
	for _, t := range h.trades.All() {
		if !t.Virtual {
			continue
		}
		out = append(out, t)
		if len(out) == virtualLimit {
			break
		}
	}
	response.JSON(w, http.StatusOK, out)
}

// OpenVirtual handles POST /api/trades/virtual.
func (h *TradesHandler) OpenVirtual(w http.ResponseWriter, r *http.Request) {
	var req trade.OpenRequest
	if err := response.Decode(r, &req); err != nil {
		response.Fail(w, err)
		return
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	req.Side = exchange.Side(strings.ToUpper(string(req.Side)))
	if req.Strategy == "" {
		req.Strategy = "manual"
	}

	t, err := h.trades.OpenVirtual(r.Context(), req)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.Message(w, http.StatusCreated, t, "virtual trade opened")
}

// Close handles POST /api/trades/close/{id}.
func (h *TradesHandler) Close(w http.ResponseWriter, r *http.Request) {
	t, err := h.trades.Close(r.Context(), r.PathValue("id"), trade.ReasonManual)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.Message(w, http.StatusOK, t, "trade closed")
}

// Modify handles POST /api/trades/modify/{id}.
func (h *TradesHandler) Modify(w http.ResponseWriter, r *http.Request) {
	var req trade.ModifyRequest
	if err := response.Decode(r, &req); err != nil {
		response.Fail(w, err)
		return
	}
	t, err := h.trades.Modify(r.PathValue("id"), req)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.Message(w, http.StatusOK, t, "trade modified")
}

// CloseAll handles POST /api/trades/close-all.
func (h *TradesHandler) CloseAll(w http.ResponseWriter, r *http.Request) {
	closed, err := h.trades.CloseAll(r.Context())
	if err != nil && len(closed) == 0 {
		response.Fail(w, err)
		return
	}
	data := map[string]any{
		"closed": closed,
		"count":  len(closed),
	}
	if err != nil {
		// the closed trades are final, so report them alongside the failures
		data["error"] = response.Detail(err)
		response.Message(w, http.StatusMultiStatus, data, "some trades could not be closed")
		return
	}
	response.Message(w, http.StatusOK, data, "all trades closed")
}
