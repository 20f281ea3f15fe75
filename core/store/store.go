// Package store defines the durable event log used by the broker and an
// in-memory implementation.
package store

import (
	"context"
	"time"

	"github.com/kilianp07/jobdone/core/factory"
	"github.com/kilianp07/jobdone/core/model"
)

// MaxRecent bounds the number of rows returned by a single Recent call.
const MaxRecent = 500

// EventStore persists dock events keyed by id.
type EventStore interface {
	// Insert appends a new event. Inserting an existing id fails.
	Insert(ctx context.Context, ev model.DockEvent) error
	// Get returns the event with the given id or model.ErrNotFound.
	Get(ctx context.Context, id string) (model.DockEvent, error)
	// Ack moves a sent event to acked. It returns model.ErrNotFound for unknown
	// ids and model.ErrInvalidTransition when the event is already acked.
	Ack(ctx context.Context, id string, at time.Time) (model.DockEvent, error)
	// Recent returns up to limit events, most recent first.
	Recent(ctx context.Context, limit int) ([]model.DockEvent, error)
	Close() error
}

var registry = factory.NewRegistry[EventStore]()

// Register makes a backend available to New.
func Register(name string, f factory.Factory[EventStore]) error {
	return registry.Register(name, f)
}

// New creates the store described by cfg.
func New(cfg factory.ModuleConfig) (EventStore, error) {
	return registry.Create(cfg)
}

func init() {
	_ = Register("memory", func(map[string]any) (EventStore, error) {
		return NewMemoryStore(), nil
	})
}

// ClampLimit bounds limit to [1, MaxRecent], using def for non-positive values.
func ClampLimit(limit, def int) int {
	if limit <= 0 {
		limit = def
	}
	if limit <= 0 {
		limit = 1
	}
	if limit > MaxRecent {
		limit = MaxRecent
	}
	return limit
}
