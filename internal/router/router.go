// Package router filters aggregated signals and fans them out to storage,
// notifiers and the auto-trader.
package router

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/newthinker/tradebot/internal/core"
	"github.com/newthinker/tradebot/internal/notifier"
	"github.com/newthinker/tradebot/internal/storage/signal"
	"go.uber.org/zap"
)

// Config holds router configuration
type Config struct {
	MinConfidence    float64
	CooldownDuration time.Duration
	EnabledActions   []core.Action
}

// DefaultConfig returns default router configuration
func DefaultConfig() Config {
	return Config{
		MinConfidence:    0.6,
		CooldownDuration: 15 * time.Minute,
		EnabledActions:   []core.Action{core.ActionBuy, core.ActionSell, core.ActionStrongBuy, core.ActionStrongSell},
	}
}

// Executor acts on routed signals when auto trading is on.
type Executor interface {
	Execute(ctx context.Context, sig core.Signal) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, sig core.Signal) error

func (f ExecutorFunc) Execute(ctx context.Context, sig core.Signal) error { return f(ctx, sig) }

// Router routes signals to notifiers with filtering
type Router struct {
	cfg         Config
	registry    *notifier.Registry
	signalStore signal.Store
	executor    Executor
	autoTrade   atomic.Bool
	logger      *zap.Logger
	now         func() time.Time

	mu        sync.RWMutex
	cooldowns map[string]time.Time // symbol -> last routed signal
}

// New creates a new signal router. registry and store may be nil.
func New(cfg Config, registry *notifier.Registry, store signal.Store, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.EnabledActions) == 0 {
		cfg.EnabledActions = DefaultConfig().EnabledActions
	}
	return &Router{
		cfg:         cfg,
		registry:    registry,
		signalStore: store,
		logger:      logger.Named("router"),
		now:         time.Now,
		cooldowns:   make(map[string]time.Time),
	}
}

// SetExecutor installs the auto-trade hook.
func (r *Router) SetExecutor(e Executor) {
	r.mu.Lock()
	r.executor = e
	r.mu.Unlock()
}

// SetAutoTrade turns execution of routed signals on or off.
func (r *Router) SetAutoTrade(on bool) { r.autoTrade.Store(on) }

// AutoTrade reports whether routed signals are executed.
func (r *Router) AutoTrade() bool { return r.autoTrade.Load() }

// Route processes a signal through filters, persists it, notifies and
// optionally executes it. It reports whether the signal was routed.
func (r *Router) Route(ctx context.Context, sig core.Signal) (core.Signal, bool) {
	if !r.accept(sig) {
		r.logger.Debug("signal filtered out",
			zap.String("symbol", sig.Symbol),
			zap.String("action", string(sig.Action)),
			zap.Float64("confidence", sig.Confidence),
		)
		return sig, false
	}

	sig = r.persist(ctx, sig)

	errs := map[string]error{}
	if r.registry != nil {
		errs = r.registry.NotifyAll(ctx, sig)
		for name, err := range errs {
			r.logger.Error("notifier failed", zap.String("notifier", name), zap.Error(err))
		}
	}

	r.execute(ctx, sig)

	r.logger.Info("signal routed",
		zap.String("symbol", sig.Symbol),
		zap.String("action", string(sig.Action)),
		zap.Float64("confidence", sig.Confidence),
		zap.Int("errors", len(errs)),
	)
	return sig, true
}

// RouteBatch routes the signals of one analysis cycle and sends a single
// batch notification. It returns the routed signals.
func (r *Router) RouteBatch(ctx context.Context, signals []core.Signal) []core.Signal {
	var routed []core.Signal
	for _, sig := range signals {
		if !r.accept(sig) {
			continue
		}
		routed = append(routed, r.persist(ctx, sig))
	}

	if len(routed) == 0 {
		return nil
	}

	var errs map[string]error
	if r.registry != nil {
		errs = r.registry.NotifyAllBatch(ctx, routed)
		for name, err := range errs {
			r.logger.Error("notifier failed on batch", zap.String("notifier", name), zap.Error(err))
		}
	}

	for _, sig := range routed {
		r.execute(ctx, sig)
	}

	r.logger.Info("batch routed",
		zap.Int("total", len(signals)),
		zap.Int("routed", len(routed)),
		zap.Int("errors", len(errs)),
	)
	return routed
}

func (r *Router) persist(ctx context.Context, sig core.Signal) core.Signal {
	if r.signalStore == nil {
		return sig
	}
	saved, err := r.signalStore.Save(ctx, sig)
	if err != nil {
		r.logger.Error("failed to persist signal", zap.String("symbol", sig.Symbol), zap.Error(err))
		return sig
	}
	return saved
}

func (r *Router) execute(ctx context.Context, sig core.Signal) {
	if !r.autoTrade.Load() {
		return
	}
	r.mu.RLock()
	e := r.executor
	r.mu.RUnlock()
	if e == nil {
		return
	}
	if err := e.Execute(ctx, sig); err != nil {
		r.logger.Warn("auto trade failed",
			zap.String("symbol", sig.Symbol),
			zap.String("action", string(sig.Action)),
			zap.Error(err))
	}
}

// accept applies the filters and, on success, starts the symbol's cooldown.
func (r *Router) accept(sig core.Signal) bool {
	if sig.Confidence < r.cfg.MinConfidence {
		return false
	}
	if !slices.Contains(r.cfg.EnabledActions, sig.Action) {
		return false
	}

	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if last, ok := r.cooldowns[sig.Symbol]; ok && now.Sub(last) < r.cfg.CooldownDuration {
		return false
	}
	r.cooldowns[sig.Symbol] = now
	return true
}

// ClearCooldown removes cooldown for a specific symbol
func (r *Router) ClearCooldown(symbol string) {
	r.mu.Lock()
	delete(r.cooldowns, symbol)
	r.mu.Unlock()
}

// ClearAllCooldowns removes all cooldowns
func (r *Router) ClearAllCooldowns() {
	r.mu.Lock()
	r.cooldowns = make(map[string]time.Time)
	r.mu.Unlock()
}

// CleanupExpiredCooldowns removes cooldown entries older than 2x the cooldown duration.
func (r *Router) CleanupExpiredCooldowns() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	expiry := r.cfg.CooldownDuration * 2
	removed := 0

	for symbol, lastTime := range r.cooldowns {
		if now.Sub(lastTime) > expiry {
			delete(r.cooldowns, symbol)
			removed++
		}
	}

	return removed
}

// StartCleanupRoutine periodically drops expired cooldowns until ctx is done.
func (r *Router) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := r.CleanupExpiredCooldowns(); removed > 0 {
					r.logger.Debug("cleaned up expired cooldowns", zap.Int("removed", removed))
				}
			}
		}
	}()
}

// Stats returns router statistics
func (r *Router) Stats() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]any{
		"cooldowns_active": len(r.cooldowns),
		"min_confidence":   r.cfg.MinConfidence,
		"cooldown_seconds": r.cfg.CooldownDuration.Seconds(),
		"enabled_actions":  r.cfg.EnabledActions,
		"auto_trade":       r.autoTrade.Load(),
	}
}
