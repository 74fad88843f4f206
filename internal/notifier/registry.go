package notifier

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/newthinker/tradebot/internal/core"
)

// Registry manages notifier instances
type Registry struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
}

// NewRegistry creates a new notifier registry
func NewRegistry() *Registry {
	return &Registry{
		notifiers: make(map[string]Notifier),
	}
}

// Register adds a notifier to the registry
func (r *Registry) Register(n Notifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := n.Name()
	if _, exists := r.notifiers[name]; exists {
		return fmt.Errorf("notifier %s already registered", name)
	}

	r.notifiers[name] = n
	return nil
}

// Get retrieves a notifier by name
func (r *Registry) Get(name string) (Notifier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, exists := r.notifiers[name]
	if !exists {
		return nil, fmt.Errorf("notifier %s not found", name)
	}
	return n, nil
}

// Names returns the registered notifier names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.notifiers))
	for name := range r.notifiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered notifiers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.notifiers)
}

// NotifyAll sends a signal to all registered notifiers.
// Failures are keyed by notifier name and wrapped in core.ErrNotifierFailed.
func (r *Registry) NotifyAll(ctx context.Context, signal core.Signal) map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	errs := make(map[string]error)
	for name, n := range r.notifiers {
		if err := n.Send(ctx, signal); err != nil {
			errs[name] = core.WrapError(core.ErrNotifierFailed, err)
		}
	}
	return errs
}

// NotifyAllBatch sends multiple signals to all registered notifiers
func (r *Registry) NotifyAllBatch(ctx context.Context, signals []core.Signal) map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	errs := make(map[string]error)
	for name, n := range r.notifiers {
		if err := n.SendBatch(ctx, signals); err != nil {
			errs[name] = core.WrapError(core.ErrNotifierFailed, err)
		}
	}
	return errs
}

// AlertAll delivers an alert to every notifier that implements Alerter.
func (r *Registry) AlertAll(ctx context.Context, alert Alert) map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	errs := make(map[string]error)
	for name, n := range r.notifiers {
		a, ok := n.(Alerter)
		if !ok {
			continue
		}
		if err := a.Alert(ctx, alert); err != nil {
			errs[name] = core.WrapError(core.ErrNotifierFailed, err)
		}
	}
	return errs
}
