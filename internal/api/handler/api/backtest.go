package api

import (
	"context"
	"net/http"

	"github.com/newthinker/tradebot/internal/api/response"
	"github.com/newthinker/tradebot/internal/backtest"
)

// BacktestFunc replays a named strategy.
type BacktestFunc func(ctx context.Context, strategy string, req backtest.Request) (*backtest.Result, error)

// BacktestHandler serves on-demand backtests.
type BacktestHandler struct {
	run BacktestFunc
}

// NewBacktestHandler creates a backtest handler.
func NewBacktestHandler(run BacktestFunc) *BacktestHandler {
	return &BacktestHandler{run: run}
}

// Run handles GET /api/backtest/{strategy}/{symbol}?interval&limit.
func (h *BacktestHandler) Run(w http.ResponseWriter, r *http.Request) {
	result, err := h.run(r.Context(), r.PathValue("strategy"), backtest.Request{
		Symbol:   r.PathValue("symbol"),
		Interval: r.URL.Query().Get("interval"),
		Limit:    queryLimit(r, backtest.DefaultLimit, backtest.MaxLimit),
	})
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}
