package api

import (
	"context"
	"net/http"

	"github.com/newthinker/tradebot/internal/api/response"
	"github.com/newthinker/tradebot/internal/realtime"
)

// Controller is the bot lifecycle surface the API drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	Status() realtime.BotStatus
}

// BotHandler serves bot status and start/stop.
type BotHandler struct {
	bot Controller
	// base outlives requests; a bot started from a request runs on it.
	base context.Context
}

// NewBotHandler creates a bot handler. base bounds bots started over HTTP.
func NewBotHandler(bot Controller, base context.Context) *BotHandler {
	if base == nil {
		base = context.Background()
	}
	return &BotHandler{bot: bot, base: base}
}

// Status handles GET /api/bot/status.
func (h *BotHandler) Status(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.bot.Status())
}

// Start handles POST /api/bot/start.
func (h *BotHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.bot.Start(h.base); err != nil {
		response.Fail(w, err)
		return
	}
	response.Message(w, http.StatusOK, h.bot.Status(), "bot started")
}

// Stop handles POST /api/bot/stop.
func (h *BotHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.bot.Stop(); err != nil {
		response.Fail(w, err)
		return
	}
	response.Message(w, http.StatusOK, h.bot.Status(), "bot stopped")
}
