// Package valuation contains the pure calculation core for position
// ledgers: timeline ordering, the cost-basis transition function, currency
// conversion, and unrealized profit/loss projection. Nothing in this
// package performs I/O.
package valuation

import (
	"sort"
	"time"

	"github.com/tally-app/tally/internal/models"
)

// maxCreatedAt stands in for the creation timestamp of a not-yet-persisted
// event, so new entries sort after existing same-day history.
var maxCreatedAt = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

func effectiveCreatedAt(e *models.LedgerEvent) time.Time {
	if e.CreatedAt.IsZero() {
		return maxCreatedAt
	}
	return e.CreatedAt
}

// EventLess reports whether a orders before b in the ledger timeline:
// by effective date ascending (string compare on "YYYY-MM-DD"), then by
// creation timestamp ascending, then by ID ascending.
//
// The validator and the recalculation engine both linearize events through
// this one comparator; a divergence between the two produces inconsistent
// running totals.
func EventLess(a, b *models.LedgerEvent) bool {
	if a.Date != b.Date {
		return a.Date < b.Date
	}
	at, bt := effectiveCreatedAt(a), effectiveCreatedAt(b)
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	return a.ID < b.ID
}

// SortEvents sorts events in place into timeline order.
func SortEvents(events []*models.LedgerEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return EventLess(events[i], events[j])
	})
}

// SnapshotLess reports whether a orders before b, oldest first, using the
// same (date, created_at, id) ordering as events.
func SnapshotLess(a, b *models.Snapshot) bool {
	if a.Date != b.Date {
		return a.Date < b.Date
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SortSnapshotsDesc sorts snapshots in place newest-first.
func SortSnapshotsDesc(snapshots []*models.Snapshot) {
	sort.SliceStable(snapshots, func(i, j int) bool {
		return SnapshotLess(snapshots[j], snapshots[i])
	})
}
