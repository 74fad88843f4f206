package api

import (
	"net/http"
	"strings"

	"github.com/newthinker/tradebot/internal/api/response"
	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/feed"
)

// FeedHandler serves news, social sentiment and whale transactions.
type FeedHandler struct {
	feed   *feed.Feed
	whales *feed.Whales
}

// NewFeedHandler creates a feed handler.
func NewFeedHandler(f *feed.Feed, w *feed.Whales) *FeedHandler {
	return &FeedHandler{feed: f, whales: w}
}

func symbolQuery(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
}

// News handles GET /api/news/latest?limit=20&symbol=.
func (h *FeedHandler) News(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.feed.LatestNews(queryLimit(r, 20, 500), symbolQuery(r)))
}

// PublishNews handles POST /api/news.
func (h *FeedHandler) PublishNews(w http.ResponseWriter, r *http.Request) {
	var item feed.NewsItem
	if err := response.Decode(r, &item); err != nil {
		response.Fail(w, err)
		return
	}
	item, err := h.feed.PublishNews(item)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.Message(w, http.StatusCreated, item, "news published")
}

// Social handles GET /api/social/signals?limit=50&symbol=.
func (h *FeedHandler) Social(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.feed.LatestSocial(queryLimit(r, 50, 500), symbolQuery(r)))
}

// PublishSocial handles POST /api/social/signals.
func (h *FeedHandler) PublishSocial(w http.ResponseWriter, r *http.Request) {
	var sig feed.SocialSignal
	if err := response.Decode(r, &sig); err != nil {
		response.Fail(w, err)
		return
	}
	sig, err := h.feed.PublishSocial(sig)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.Message(w, http.StatusCreated, sig, "social signal published")
}

// Whales handles GET /api/whales/transactions?limit=50&symbol=.
func (h *FeedHandler) Whales(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.whales.List(symbolQuery(r), queryLimit(r, 50, 500)))
}

// AddWhale handles POST /api/whales/transactions. Transfers below the
// tracking threshold are acknowledged without being stored.
func (h *FeedHandler) AddWhale(w http.ResponseWriter, r *http.Request) {
	var tx core.WhaleTransaction
	if err := response.Decode(r, &tx); err != nil {
		response.Fail(w, err)
		return
	}
	tx, added, err := h.whales.Add(tx)
	if err != nil {
		response.Fail(w, err)
		return
	}
	if !added {
		response.Message(w, http.StatusOK, tx, "below tracking threshold, not stored")
		return
	}
	response.Message(w, http.StatusCreated, tx, "whale transaction recorded")
}
