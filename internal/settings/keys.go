package settings

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// setKey applies one dotted-key update to s. Top-level risk and general
// fields are also accepted without their section prefix.
func setKey(s *Settings, key string, value any) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if name, ok := strings.CutPrefix(key, "strategy_weights."); ok {
		w, err := cast.ToFloat64E(value)
		if err != nil {
			return invalid("strategy weight %s: %v", name, err)
		}
		s.StrategyWeights[name] = w
		return nil
	}
	key = strings.TrimPrefix(strings.TrimPrefix(key, "general."), "risk.")

	var err error
	switch key {
	case "testnet":
		s.General.Testnet, err = cast.ToBoolE(value)
	case "auto_trade":
		s.General.AutoTrade, err = cast.ToBoolE(value)
	case "virtual":
		s.General.Virtual, err = cast.ToBoolE(value)
	case "analysis_interval_seconds", "analysis_interval":
		s.General.AnalysisIntervalSeconds, err = cast.ToIntE(value)
	case "initial_capital":
		s.Risk.InitialCapital, err = cast.ToFloat64E(value)
	case "max_positions":
		s.Risk.MaxPositions, err = cast.ToIntE(value)
	case "risk_per_trade":
		s.Risk.RiskPerTrade, err = cast.ToFloat64E(value)
	case "stop_loss_pct":
		s.Risk.StopLossPct, err = cast.ToFloat64E(value)
	case "take_profit_pct":
		s.Risk.TakeProfitPct, err = cast.ToFloat64E(value)
	case "strategy_weights":
		var weights map[string]any
		weights, err = cast.ToStringMapE(value)
		if err == nil {
			for name, raw := range weights {
				if setErr := setKey(s, "strategy_weights."+name, raw); setErr != nil {
					return setErr
				}
			}
		}
	case "pairs", "trading_pairs":
		var pairs []string
		pairs, err = toPairs(value)
		if err == nil {
			s.Pairs = pairs
		}
	default:
		return invalid("unknown setting %q", key)
	}
	if err != nil {
		return invalid("setting %s: %v", key, err)
	}
	return nil
}

// toPairs accepts a list or a comma separated string.
func toPairs(value any) ([]string, error) {
	var raw []string
	if s, ok := value.(string); ok {
		raw = strings.Split(s, ",")
	} else {
		var err error
		raw, err = cast.ToStringSliceE(value)
		if err != nil {
			return nil, fmt.Errorf("pairs: %w", err)
		}
	}
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = NormalizePair(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}
