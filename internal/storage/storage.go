// Package storage defines the event store contract.
//
// The concrete implementation lives in the sqlite sub-package. Consumers
// depend on the Store interface rather than the concrete type so that
// alternative implementations (mocks, in-memory stores) can be substituted.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/causalmem/causalmem/internal/types"
)

// ErrNotFound is returned when a requested event does not exist.
var ErrNotFound = errors.New("event not found")

// Store is the durable, append-only event table. Implementations must make
// identifier allocation and row insertion atomic together so that concurrent
// inserts never assign the same event_id, and must serialize writes while
// allowing concurrent reads.
type Store interface {
	// Insert atomically appends a new event, assigning its event_id and
	// timestamp, and returns the stored row.
	Insert(ctx context.Context, effectText string, embedding []float32, causeID *int64, relationship string) (*types.Event, error)

	// GetByID returns the event with the given id, or ErrNotFound.
	GetByID(ctx context.Context, id int64) (*types.Event, error)

	// RecentWithin returns events whose timestamp falls within the trailing
	// window, newest first, capped at limit. Used as the candidate pool.
	RecentWithin(ctx context.Context, window time.Duration, limit int) ([]*types.Event, error)

	// ScanAll streams every event to fn in event_id order. fn returning an
	// error stops the scan and propagates the error. Used by the query-path
	// anchor search, which imposes no time window.
	ScanAll(ctx context.Context, fn func(*types.Event) error) error

	// ChildrenOf returns events whose cause_id equals id, oldest first.
	ChildrenOf(ctx context.Context, id int64) ([]*types.Event, error)

	// Stats reports aggregate counts over the stored graph.
	Stats(ctx context.Context) (*types.Stats, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close flushes and closes the store. Idempotent.
	Close() error
}
