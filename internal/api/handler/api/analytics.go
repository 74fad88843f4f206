package api

import (
	"net/http"
	"time"

	"github.com/newthinker/tradebot/internal/analytics"
	"github.com/newthinker/tradebot/internal/api/response"
)

// AnalyticsHandler serves performance reports.
type AnalyticsHandler struct {
	svc    *analytics.Service
	uptime func() time.Duration
}

// NewAnalyticsHandler creates an analytics handler. uptime reports how long
// the bot has been running and may be nil.
func NewAnalyticsHandler(svc *analytics.Service, uptime func() time.Duration) *AnalyticsHandler {
	if uptime == nil {
		uptime = func() time.Duration { return 0 }
	}
	return &AnalyticsHandler{svc: svc, uptime: uptime}
}

// Performance handles GET /api/analytics/performance?days=30.
func (h *AnalyticsHandler) Performance(w http.ResponseWriter, r *http.Request) {
	perf, err := h.svc.Performance(r.Context(), queryInt(r, "days", 30, 3650))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, perf)
}

// Detailed handles GET /api/analytics/detailed?days=30.
func (h *AnalyticsHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Detailed(r.Context(), queryInt(r, "days", 30, 3650))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, d)
}

// Statistics handles GET /api/dashboard/statistics.
func (h *AnalyticsHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Dashboard(r.Context(), h.uptime())
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, d)
}
