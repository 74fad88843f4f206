// Package signal stores routed trading signals.
package signal

import (
	"context"
	"time"

	"github.com/newthinker/tradebot/internal/core"
)

// Store defines the interface for signal persistence.
type Store interface {
	// Save assigns an ID when missing and persists the signal.
	Save(ctx context.Context, signal core.Signal) (core.Signal, error)

	// GetByID retrieves a signal by its ID.
	GetByID(ctx context.Context, id string) (*core.Signal, error)

	// List retrieves signals matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]core.Signal, error)

	// Count returns the number of signals matching the filter.
	Count(ctx context.Context, filter ListFilter) (int, error)

	// Latest returns up to limit signals, newest first.
	Latest(ctx context.Context, limit int) ([]core.Signal, error)
}

// ListFilter defines criteria for listing signals.
type ListFilter struct {
	Symbol        string
	Strategy      string
	Action        core.Action
	MinConfidence float64
	From          time.Time
	To            time.Time
	Limit         int
	Offset        int
}
