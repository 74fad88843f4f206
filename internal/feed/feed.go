// Package feed keeps the latest news, social signals and whale transactions.
package feed

import (
	"errors"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/tradebot/internal/core"
	"go.uber.org/zap"
)

var (
	ErrMissingTitle    = errors.New("feed: title is required")
	ErrMissingPlatform = errors.New("feed: platform is required")
	ErrSentimentRange  = errors.New("feed: sentiment must be within [-1, 1]")
)

// Sentiment labels.
const (
	SentimentBullish = "bullish"
	SentimentBearish = "bearish"
	SentimentNeutral = "neutral"
)

// SentimentLabel buckets a score in [-1, 1].
func SentimentLabel(score float64) string {
	switch {
	case score > 0.2:
		return SentimentBullish
	case score < -0.2:
		return SentimentBearish
	default:
		return SentimentNeutral
	}
}

// NewsItem is a news article or announcement.
type NewsItem struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary,omitempty"`
	Source         string    `json:"source"`
	URL            string    `json:"url,omitempty"`
	Symbols        []string  `json:"symbols,omitempty"`
	Sentiment      float64   `json:"sentiment"` // -1 to 1
	SentimentLabel string    `json:"sentiment_label"`
	PublishedAt    time.Time `json:"published_at"`
}

// SocialSignal is the sentiment of one social post or digest.
type SocialSignal struct {
	ID               string    `json:"id"`
	Platform         string    `json:"platform"`
	Author           string    `json:"author,omitempty"`
	Text             string    `json:"text,omitempty"`
	MentionedSymbols []string  `json:"mentioned_symbols,omitempty"`
	SentimentScore   float64   `json:"sentiment_score"` // -1 to 1
	Sentiment        string    `json:"sentiment"`
	Confidence       float64   `json:"confidence"`
	Timestamp        time.Time `json:"timestamp"`
}

func upperAll(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func hasSymbol(symbols []string, symbol string) bool {
	return symbol == "" || slices.Contains(symbols, strings.ToUpper(symbol))
}

// Feed stores news and social signals and announces new entries.
type Feed struct {
	news   *ring[NewsItem]
	social *ring[SocialSignal]

	mu       sync.RWMutex
	onNews   []func(NewsItem)
	onSocial []func(SocialSignal)

	logger *zap.Logger
	now    func() time.Time
}

// New creates a feed keeping at most capacity entries of each kind.
func New(capacity int, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{
		news:   newRing[NewsItem](capacity),
		social: newRing[SocialSignal](capacity),
		logger: logger.Named("feed"),
		now:    time.Now,
	}
}

// OnNews registers a callback for published news.
func (f *Feed) OnNews(fn func(NewsItem)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onNews = append(f.onNews, fn)
}

// OnSocial registers a callback for published social signals.
func (f *Feed) OnSocial(fn func(SocialSignal)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSocial = append(f.onSocial, fn)
}

// PublishNews validates, stores and announces a news item.
func (f *Feed) PublishNews(item NewsItem) (NewsItem, error) {
	item.Title = strings.TrimSpace(item.Title)
	if item.Title == "" {
		return item, core.WrapError(core.ErrInvalidRequest, ErrMissingTitle)
	}
	if math.Abs(item.Sentiment) > 1 {
		return item, core.WrapError(core.ErrInvalidRequest, ErrSentimentRange)
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.PublishedAt.IsZero() {
		item.PublishedAt = f.now()
	}
	item.Symbols = upperAll(item.Symbols)
	item.SentimentLabel = SentimentLabel(item.Sentiment)
	f.news.add(item)

	f.mu.RLock()
	subs := slices.Clone(f.onNews)
	f.mu.RUnlock()
	for _, fn := range subs {
		fn(item)
	}
	f.logger.Debug("news published", zap.String("id", item.ID), zap.String("source", item.Source))
	return item, nil
}

// PublishSocial validates, stores and announces a social signal.
func (f *Feed) PublishSocial(sig SocialSignal) (SocialSignal, error) {
	sig.Platform = strings.ToLower(strings.TrimSpace(sig.Platform))
	if sig.Platform == "" {
		return sig, core.WrapError(core.ErrInvalidRequest, ErrMissingPlatform)
	}
	if math.Abs(sig.SentimentScore) > 1 {
		return sig, core.Errorf(core.ErrInvalidRequest, "%w: %f", ErrSentimentRange, sig.SentimentScore)
	}
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.Timestamp.IsZero() {
		sig.Timestamp = f.now()
	}
	if sig.Confidence <= 0 {
		sig.Confidence = math.Min(math.Abs(sig.SentimentScore)*2, 1)
	}
	sig.MentionedSymbols = upperAll(sig.MentionedSymbols)
	sig.Sentiment = SentimentLabel(sig.SentimentScore)
	f.social.add(sig)

	f.mu.RLock()
	subs := slices.Clone(f.onSocial)
	f.mu.RUnlock()
	for _, fn := range subs {
		fn(sig)
	}
	return sig, nil
}

// LatestNews returns up to limit news items, newest first, optionally for one symbol.
func (f *Feed) LatestNews(limit int, symbol string) []NewsItem {
	return f.news.latest(limit, func(n NewsItem) bool { return hasSymbol(n.Symbols, symbol) })
}

// LatestSocial returns up to limit social signals, newest first, optionally for one symbol.
func (f *Feed) LatestSocial(limit int, symbol string) []SocialSignal {
	return f.social.latest(limit, func(s SocialSignal) bool { return hasSymbol(s.MentionedSymbols, symbol) })
}

// SocialSentiment averages the sentiment of signals mentioning symbol since the cutoff.
func (f *Feed) SocialSentiment(symbol string, since time.Time) (score float64, count int) {
	for _, s := range f.social.latest(0, func(s SocialSignal) bool {
		return !s.Timestamp.Before(since) && hasSymbol(s.MentionedSymbols, symbol)
	}) {
		score += s.SentimentScore
		count++
	}
	if count > 0 {
		score /= float64(count)
	}
	return score, count
}
