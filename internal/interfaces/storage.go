// Package interfaces defines service contracts for Tally
package interfaces

import (
	"context"

	"github.com/tally-app/tally/internal/models"
)

// StorageManager coordinates all storage backends. All domain reads and
// writes are scoped by the owning user's ID.
type StorageManager interface {
	InternalStore() InternalStore
	PositionStore() PositionStore
	LedgerStore() LedgerStore
	SnapshotStore() SnapshotStore

	// Lifecycle
	Close() error
}

// InternalStore manages user accounts and per-user config KV.
type InternalStore interface {
	GetUser(ctx context.Context, userID string) (*models.InternalUser, error)
	GetUserByEmail(ctx context.Context, email string) (*models.InternalUser, error)
	SaveUser(ctx context.Context, user *models.InternalUser) error
	DeleteUser(ctx context.Context, userID string) error

	GetUserKV(ctx context.Context, userID, key string) (*models.UserKeyValue, error)
	SetUserKV(ctx context.Context, userID, key, value string) error
	DeleteUserKV(ctx context.Context, userID, key string) error

	Close() error
}

// PositionStore manages tracked positions.
type PositionStore interface {
	Get(ctx context.Context, userID, positionID string) (*models.Position, error)
	List(ctx context.Context, userID string, includeArchived bool) ([]*models.Position, error)
	Save(ctx context.Context, position *models.Position) error
	// Delete removes the position row only; callers cascade the ledger and
	// snapshot history themselves before hard-deleting.
	Delete(ctx context.Context, userID, positionID string) error
}

// LedgerStore manages the per-position event ledger.
type LedgerStore interface {
	GetEvent(ctx context.Context, userID, eventID string) (*models.LedgerEvent, error)

	// GetEvents returns the position's events with fromDate <= date < toDate
	// in timeline order. Empty fromDate means the beginning of history;
	// empty toDate means no upper bound.
	GetEvents(ctx context.Context, userID, positionID, fromDate, toDate string) ([]*models.LedgerEvent, error)

	// NextUpdateEvent returns the earliest update-type event strictly after
	// afterDate, or nil when none exists. This is the recalculation boundary.
	NextUpdateEvent(ctx context.Context, userID, positionID, afterDate string) (*models.LedgerEvent, error)

	InsertEvents(ctx context.Context, events []*models.LedgerEvent) error
	DeleteEvent(ctx context.Context, userID, eventID string) error
	DeleteByPosition(ctx context.Context, userID, positionID string) (int, error)
}

// SnapshotStore manages derived valuation snapshots. Only the recalculation
// engine writes here; everything else reads.
type SnapshotStore interface {
	// GetAtOrBefore returns the latest snapshot dated at or before date,
	// or nil when none exists. excludeEventIDs filters out snapshots whose
	// backing event is being replaced, so re-imports don't double count.
	GetAtOrBefore(ctx context.Context, userID, positionID, date string, excludeEventIDs []string) (*models.Snapshot, error)

	// GetByEvents returns existing snapshots keyed by backing event ID.
	GetByEvents(ctx context.Context, userID, positionID string, eventIDs []string) (map[string]*models.Snapshot, error)

	List(ctx context.Context, userID, positionID string) ([]*models.Snapshot, error)
	ListRange(ctx context.Context, userID, positionID, fromDate, toDate string) ([]*models.Snapshot, error)

	// Upsert writes exactly one snapshot per (position, event) pair:
	// an existing snapshot for the same backing event is updated in place.
	Upsert(ctx context.Context, snapshot *models.Snapshot) error

	DeleteByEvent(ctx context.Context, userID, positionID, eventID string) error
	DeleteByPosition(ctx context.Context, userID, positionID string) (int, error)
}
