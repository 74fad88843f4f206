package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/newthinker/tradebot/internal/api/response"
	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/settings"
)

// SettingsHandler serves runtime settings, trading pairs and config
// import/export.
type SettingsHandler struct {
	settings *settings.Manager
}

// NewSettingsHandler creates a settings handler.
func NewSettingsHandler(m *settings.Manager) *SettingsHandler {
	return &SettingsHandler{settings: m}
}

func (h *SettingsHandler) reply(w http.ResponseWriter, s settings.Settings, err error, msg string) {
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.Message(w, http.StatusOK, s, msg)
}

// Get handles GET /api/settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.settings.Get())
}

// General handles POST /api/settings/general.
func (h *SettingsHandler) General(w http.ResponseWriter, r *http.Request) {
	var g settings.General
	if err := response.Decode(r, &g); err != nil {
		response.Fail(w, err)
		return
	}
	s, err := h.settings.UpdateGeneral(g)
	h.reply(w, s, err, "general settings updated")
}

// Risk handles POST /api/settings/risk.
func (h *SettingsHandler) Risk(w http.ResponseWriter, r *http.Request) {
	var rk settings.Risk
	if err := response.Decode(r, &rk); err != nil {
		response.Fail(w, err)
		return
	}
	s, err := h.settings.UpdateRisk(rk)
	h.reply(w, s, err, "risk settings updated")
}

type pairRequest struct {
	Pair   string `json:"pair"`
	Symbol string `json:"symbol"`
}

func (p pairRequest) value() string {
	if p.Pair != "" {
		return p.Pair
	}
	return p.Symbol
}

// Pairs handles GET /api/trading-pairs and /api/config/pairs.
func (h *SettingsHandler) Pairs(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.settings.Pairs())
}

// AddPair handles POST /api/trading-pairs.
func (h *SettingsHandler) AddPair(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := response.Decode(r, &req); err != nil {
		response.Fail(w, err)
		return
	}
	s, err := h.settings.AddPair(req.value())
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.Message(w, http.StatusOK, s.Pairs, "pair added")
}

// RemovePair handles DELETE /api/trading-pairs with a {pair} body or
// ?pair= query.
func (h *SettingsHandler) RemovePair(w http.ResponseWriter, r *http.Request) {
	pair := r.URL.Query().Get("pair")
	if pair == "" {
		var req pairRequest
		if err := response.Decode(r, &req); err != nil {
			response.Fail(w, err)
			return
		}
		pair = req.value()
	}
	s, err := h.settings.RemovePair(pair)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.Message(w, http.StatusOK, s.Pairs, "pair removed")
}

type updateRequest struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Update handles POST /api/config/update.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := response.Decode(r, &req); err != nil {
		response.Fail(w, err)
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		response.Fail(w, core.WrapError(core.ErrInvalidRequest, errMissingKey))
		return
	}
	s, err := h.settings.Update(req.Key, req.Value)
	h.reply(w, s, err, "setting updated")
}

// BulkUpdate handles POST /api/config/bulk-update.
func (h *SettingsHandler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	var values map[string]any
	if err := response.Decode(r, &values); err != nil {
		response.Fail(w, err)
		return
	}
	s, err := h.settings.BulkUpdate(values)
	h.reply(w, s, err, "settings updated")
}

// Reset handles POST /api/config/reset.
func (h *SettingsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Reset()
	h.reply(w, s, err, "settings reset to defaults")
}

// Export handles GET /api/config/export.
func (h *SettingsHandler) Export(w http.ResponseWriter, r *http.Request) {
	doc, err := h.settings.Export(r.Context())
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, doc)
}

// Import handles POST /api/config/import. An empty body restores the most
// recent archived export.
func (h *SettingsHandler) Import(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		response.Fail(w, core.WrapError(core.ErrInvalidRequest, err))
		return
	}
	var s settings.Settings
	if len(strings.TrimSpace(string(body))) == 0 {
		s, err = h.settings.ImportLatest(r.Context())
	} else {
		s, err = h.settings.Import(body)
	}
	h.reply(w, s, err, "settings imported")
}
