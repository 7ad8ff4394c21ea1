package badger

import (
	"context"
	"fmt"

	"github.com/tally-app/tally/internal/common"
	"github.com/tally-app/tally/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

type positionStorage struct {
	store  *Store
	logger *common.Logger
}

// NewPositionStorage creates a new PositionStore backed by BadgerHold.
func NewPositionStorage(store *Store, logger *common.Logger) *positionStorage {
	return &positionStorage{store: store, logger: logger}
}

func (s *positionStorage) Get(_ context.Context, userID, positionID string) (*models.Position, error) {
	var position models.Position
	err := s.store.db.Get(positionID, &position)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("position '%s' not found", positionID)
		}
		return nil, fmt.Errorf("failed to get position '%s': %w", positionID, err)
	}
	if position.UserID != userID {
		return nil, fmt.Errorf("position '%s' not found", positionID)
	}
	return &position, nil
}

func (s *positionStorage) List(_ context.Context, userID string, includeArchived bool) ([]*models.Position, error) {
	var all []models.Position
	if err := s.store.db.Find(&all, badgerhold.Where("UserID").Eq(userID)); err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	var result []*models.Position
	for i := range all {
		if all[i].Archived && !includeArchived {
			continue
		}
		p := all[i]
		result = append(result, &p)
	}
	return result, nil
}

func (s *positionStorage) Save(_ context.Context, position *models.Position) error {
	if err := s.store.db.Upsert(position.ID, position); err != nil {
		return fmt.Errorf("failed to save position '%s': %w", position.ID, err)
	}
	s.logger.Debug().Str("position", position.ID).Msg("Position saved")
	return nil
}

func (s *positionStorage) Delete(ctx context.Context, userID, positionID string) error {
	// Ownership check before the keyed delete.
	if _, err := s.Get(ctx, userID, positionID); err != nil {
		return err
	}
	err := s.store.db.Delete(positionID, models.Position{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete position '%s': %w", positionID, err)
	}
	s.logger.Debug().Str("position", positionID).Msg("Position deleted")
	return nil
}
