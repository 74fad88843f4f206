package api

import (
	"net/http"
	"strings"

	"github.com/newthinker/tradebot/internal/api/response"
	"github.com/newthinker/tradebot/internal/charts"
)

// ChartsHandler serves candles and indicator series.
type ChartsHandler struct {
	svc *charts.Service
}

// NewChartsHandler creates a charts handler.
func NewChartsHandler(svc *charts.Service) *ChartsHandler {
	return &ChartsHandler{svc: svc}
}

// Candles handles GET /api/charts/candles/{symbol}?interval&limit.
func (h *ChartsHandler) Candles(w http.ResponseWriter, r *http.Request) {
	candles, err := h.svc.Candles(r.Context(), r.PathValue("symbol"),
		r.URL.Query().Get("interval"), queryLimit(r, 0, 0))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, candles)
}

// Indicators handles GET /api/charts/indicators/{symbol}.
func (h *ChartsHandler) Indicators(w http.ResponseWriter, r *http.Request) {
	ind, err := h.svc.Indicators(r.Context(), r.PathValue("symbol"),
		r.URL.Query().Get("interval"), queryLimit(r, 0, 0))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, ind)
}

// Multi handles GET /api/charts/multi/{symbols}, symbols comma separated.
func (h *ChartsHandler) Multi(w http.ResponseWriter, r *http.Request) {
	var symbols []string
	for _, s := range strings.Split(r.PathValue("symbols"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	series, err := h.svc.Multi(r.Context(), symbols,
		r.URL.Query().Get("interval"), queryLimit(r, 0, 0))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, series)
}
