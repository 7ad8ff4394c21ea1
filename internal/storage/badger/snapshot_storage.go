package badger

import (
	"context"
	"fmt"

	"github.com/tally-app/tally/internal/common"
	"github.com/tally-app/tally/internal/models"
	"github.com/tally-app/tally/internal/valuation"
	"github.com/timshannon/badgerhold/v4"
)

type snapshotStorage struct {
	store  *Store
	logger *common.Logger
}

// NewSnapshotStorage creates a new SnapshotStore backed by BadgerHold.
func NewSnapshotStorage(store *Store, logger *common.Logger) *snapshotStorage {
	return &snapshotStorage{store: store, logger: logger}
}

func (s *snapshotStorage) forPosition(userID, positionID string) ([]models.Snapshot, error) {
	var all []models.Snapshot
	query := badgerhold.Where("PositionID").Eq(positionID).And("UserID").Eq(userID)
	if err := s.store.db.Find(&all, query); err != nil {
		return nil, fmt.Errorf("failed to load snapshots for '%s': %w", positionID, err)
	}
	return all, nil
}

func (s *snapshotStorage) GetAtOrBefore(_ context.Context, userID, positionID, date string, excludeEventIDs []string) (*models.Snapshot, error) {
	all, err := s.forPosition(userID, positionID)
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(excludeEventIDs))
	for _, id := range excludeEventIDs {
		excluded[id] = true
	}

	var matches []*models.Snapshot
	for i := range all {
		if all[i].Date > date {
			continue
		}
		if all[i].EventID != "" && excluded[all[i].EventID] {
			continue
		}
		snap := all[i]
		matches = append(matches, &snap)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	valuation.SortSnapshotsDesc(matches)
	return matches[0], nil
}

func (s *snapshotStorage) GetByEvents(_ context.Context, userID, positionID string, eventIDs []string) (map[string]*models.Snapshot, error) {
	all, err := s.forPosition(userID, positionID)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(eventIDs))
	for _, id := range eventIDs {
		wanted[id] = true
	}

	result := make(map[string]*models.Snapshot)
	for i := range all {
		if all[i].EventID != "" && wanted[all[i].EventID] {
			snap := all[i]
			result[snap.EventID] = &snap
		}
	}
	return result, nil
}

func (s *snapshotStorage) List(_ context.Context, userID, positionID string) ([]*models.Snapshot, error) {
	all, err := s.forPosition(userID, positionID)
	if err != nil {
		return nil, err
	}
	result := make([]*models.Snapshot, 0, len(all))
	for i := range all {
		snap := all[i]
		result = append(result, &snap)
	}
	return result, nil
}

func (s *snapshotStorage) ListRange(_ context.Context, userID, positionID, fromDate, toDate string) ([]*models.Snapshot, error) {
	all, err := s.forPosition(userID, positionID)
	if err != nil {
		return nil, err
	}
	var result []*models.Snapshot
	for i := range all {
		if fromDate != "" && all[i].Date < fromDate {
			continue
		}
		if toDate != "" && all[i].Date >= toDate {
			continue
		}
		snap := all[i]
		result = append(result, &snap)
	}
	return result, nil
}

func (s *snapshotStorage) Upsert(ctx context.Context, snapshot *models.Snapshot) error {
	// One snapshot per (position, event): an existing snapshot for the same
	// backing event keeps its identity and is rewritten in place.
	if snapshot.EventID != "" {
		existing, err := s.GetByEvents(ctx, snapshot.UserID, snapshot.PositionID, []string{snapshot.EventID})
		if err != nil {
			return err
		}
		if prior, ok := existing[snapshot.EventID]; ok && prior.ID != snapshot.ID {
			snapshot.ID = prior.ID
			snapshot.CreatedAt = prior.CreatedAt
		}
	}
	if err := s.store.db.Upsert(snapshot.ID, snapshot); err != nil {
		return fmt.Errorf("failed to upsert snapshot '%s': %w", snapshot.ID, err)
	}
	return nil
}

func (s *snapshotStorage) DeleteByEvent(ctx context.Context, userID, positionID, eventID string) error {
	existing, err := s.GetByEvents(ctx, userID, positionID, []string{eventID})
	if err != nil {
		return err
	}
	snap, ok := existing[eventID]
	if !ok {
		return nil
	}
	if err := s.store.db.Delete(snap.ID, models.Snapshot{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete snapshot '%s': %w", snap.ID, err)
	}
	return nil
}

func (s *snapshotStorage) DeleteByPosition(_ context.Context, userID, positionID string) (int, error) {
	all, err := s.forPosition(userID, positionID)
	if err != nil {
		return 0, err
	}
	count := 0
	for i := range all {
		if err := s.store.db.Delete(all[i].ID, models.Snapshot{}); err == nil {
			count++
		}
	}
	s.logger.Debug().Str("position", positionID).Int("count", count).Msg("Snapshots cleared")
	return count, nil
}
