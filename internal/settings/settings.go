// Package settings holds the runtime-tunable bot settings edited from the dashboard.
package settings

import (
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/newthinker/tradebot/internal/config"
	"github.com/newthinker/tradebot/internal/core"
)

// General holds bot-wide switches.
type General struct {
	Testnet                 bool `json:"testnet"`
	AutoTrade               bool `json:"auto_trade"`
	Virtual                 bool `json:"virtual"`
	AnalysisIntervalSeconds int  `json:"analysis_interval_seconds"`
}

// Risk holds position sizing and protective order settings.
type Risk struct {
	InitialCapital float64 `json:"initial_capital"`
	MaxPositions   int     `json:"max_positions"`
	RiskPerTrade   float64 `json:"risk_per_trade"`
	StopLossPct    float64 `json:"stop_loss_pct"`
	TakeProfitPct  float64 `json:"take_profit_pct"`
}

// Settings is the full runtime settings document.
type Settings struct {
	General         General            `json:"general"`
	Risk            Risk               `json:"risk"`
	StrategyWeights map[string]float64 `json:"strategy_weights"`
	Pairs           []string           `json:"pairs"`
}

// AnalysisInterval returns the analysis interval as a duration.
func (s Settings) AnalysisInterval() time.Duration {
	return time.Duration(s.General.AnalysisIntervalSeconds) * time.Second
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	out.StrategyWeights = maps.Clone(s.StrategyWeights)
	if out.StrategyWeights == nil {
		out.StrategyWeights = map[string]float64{}
	}
	out.Pairs = slices.Clone(s.Pairs)
	if out.Pairs == nil {
		out.Pairs = []string{}
	}
	return out
}

// FromConfig seeds settings from static configuration.
func FromConfig(cfg *config.Config, defaultWeights map[string]float64) Settings {
	weights := maps.Clone(defaultWeights)
	if weights == nil {
		weights = map[string]float64{}
	}
	for name, sc := range cfg.Strategies {
		if sc.Weight > 0 {
			weights[name] = sc.Weight
		}
	}
	pairs := make([]string, 0, len(cfg.Trading.Pairs))
	for _, p := range cfg.Trading.Pairs {
		pairs = append(pairs, NormalizePair(p))
	}
	return Settings{
		General: General{
			Testnet:                 cfg.Exchange.Testnet,
			AutoTrade:               cfg.Trading.AutoTrade,
			Virtual:                 cfg.Trading.Virtual,
			AnalysisIntervalSeconds: int(cfg.Trading.AnalysisInterval / time.Second),
		},
		Risk: Risk{
			InitialCapital: cfg.Trading.InitialCapital,
			MaxPositions:   cfg.Trading.MaxPositions,
			RiskPerTrade:   cfg.Trading.RiskPerTrade,
			StopLossPct:    cfg.Trading.StopLossPct,
			TakeProfitPct:  cfg.Trading.TakeProfitPct,
		},
		StrategyWeights: weights,
		Pairs:           pairs,
	}
}

var pairPattern = regexp.MustCompile(`^[A-Z0-9]{2,20}(USDT|USDC|BTC|ETH)$`)

// NormalizePair upper-cases and strips separators ("btc/usdt" -> "BTCUSDT").
func NormalizePair(p string) string {
	p = strings.ToUpper(strings.TrimSpace(p))
	return strings.NewReplacer("/", "", "-", "", "_", "").Replace(p)
}

// ValidatePair checks a normalized pair symbol.
func ValidatePair(p string) error {
	if !pairPattern.MatchString(p) {
		return core.Errorf(core.ErrInvalidRequest, "invalid trading pair %q", p)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return core.Errorf(core.ErrInvalidRequest, format, args...)
}

// Validate checks every field.
func (s Settings) Validate() error {
	if s.General.AnalysisIntervalSeconds < 1 {
		return invalid("analysis_interval_seconds must be at least 1, got %d", s.General.AnalysisIntervalSeconds)
	}
	if err := s.Risk.Validate(); err != nil {
		return err
	}
	for name, w := range s.StrategyWeights {
		if w < 0 || w > 10 {
			return invalid("strategy weight %s must be between 0 and 10, got %f", name, w)
		}
	}
	seen := make(map[string]bool, len(s.Pairs))
	for _, p := range s.Pairs {
		if err := ValidatePair(p); err != nil {
			return err
		}
		if seen[p] {
			return invalid("duplicate trading pair %q", p)
		}
		seen[p] = true
	}
	return nil
}

// Validate checks risk bounds.
func (r Risk) Validate() error {
	if r.InitialCapital <= 0 {
		return invalid("initial_capital must be positive, got %f", r.InitialCapital)
	}
	if r.MaxPositions < 1 || r.MaxPositions > 100 {
		return invalid("max_positions must be between 1 and 100, got %d", r.MaxPositions)
	}
	if r.RiskPerTrade <= 0 || r.RiskPerTrade > 0.1 {
		return invalid("risk_per_trade must be in (0, 0.1], got %f", r.RiskPerTrade)
	}
	if r.StopLossPct <= 0 || r.StopLossPct > 50 {
		return invalid("stop_loss_pct must be in (0, 50], got %f", r.StopLossPct)
	}
	if r.TakeProfitPct <= 0 || r.TakeProfitPct > 50 {
		return invalid("take_profit_pct must be in (0, 50], got %f", r.TakeProfitPct)
	}
	return nil
}
