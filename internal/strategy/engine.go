package strategy

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/newthinker/tradebot/internal/core"
	"go.uber.org/zap"
)

// Result is the outcome of one strategy on one symbol.
type Result struct {
	Strategy string
	Signals  []core.Signal
	Err      error
	Duration time.Duration
}

// Engine manages and runs strategies
type Engine struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	logger     *zap.Logger
}

// NewEngine creates a new strategy engine
func NewEngine(logger ...*zap.Logger) *Engine {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Engine{
		strategies: make(map[string]Strategy),
		logger:     l,
	}
}

// Register adds a strategy to the engine
func (e *Engine) Register(s Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[s.Name()] = s
}

// Unregister removes a strategy by name.
func (e *Engine) Unregister(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.strategies, name)
}

// Get retrieves a strategy by name
func (e *Engine) Get(name string) (Strategy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.strategies[name]
	return s, ok
}

// GetAll returns all registered strategies sorted by name
func (e *Engine) GetAll() []Strategy {
	e.mu.RLock()
	result := make([]Strategy, 0, len(e.strategies))
	for _, s := range e.strategies {
		result = append(result, s)
	}
	e.mu.RUnlock()

	slices.SortFunc(result, func(a, b Strategy) int {
		switch {
		case a.Name() < b.Name():
			return -1
		case a.Name() > b.Name():
			return 1
		}
		return 0
	})
	return result
}

// Names returns the registered strategy names, sorted.
func (e *Engine) Names() []string {
	all := e.GetAll()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.Name()
	}
	return names
}

// AnalyzeEach runs every strategy and reports each outcome separately,
// including failures.
func (e *Engine) AnalyzeEach(ctx context.Context, analysisCtx AnalysisContext) ([]Result, error) {
	strategies := e.GetAll()
	results := make([]Result, 0, len(strategies))

	for _, s := range strategies {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		start := time.Now()
		signals, err := s.Analyze(analysisCtx)
		res := Result{Strategy: s.Name(), Duration: time.Since(start)}
		if err != nil {
			e.logger.Warn("strategy analysis failed",
				zap.String("strategy", s.Name()),
				zap.String("symbol", analysisCtx.Symbol),
				zap.Error(err),
			)
			res.Err = core.WrapError(core.ErrStrategyFailed, err)
			results = append(results, res)
			continue
		}

		// Stamp strategy name and fill defaults
		for i := range signals {
			signals[i].Strategy = s.Name()
			if signals[i].Symbol == "" {
				signals[i].Symbol = analysisCtx.Symbol
			}
			if signals[i].GeneratedAt.IsZero() {
				signals[i].GeneratedAt = analysisCtx.Now
			}
		}
		res.Signals = signals
		results = append(results, res)
	}

	return results, nil
}

// Analyze runs all strategies on the given context; failing strategies are skipped.
func (e *Engine) Analyze(ctx context.Context, analysisCtx AnalysisContext) ([]core.Signal, error) {
	results, err := e.AnalyzeEach(ctx, analysisCtx)
	var all []core.Signal
	for _, r := range results {
		all = append(all, r.Signals...)
	}
	return all, err
}
