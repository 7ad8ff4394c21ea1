package surreal

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/tally-app/tally/internal/common"
	"github.com/tally-app/tally/internal/interfaces"
	"github.com/tally-app/tally/internal/models"
)

// PositionStore manages tracked positions in SurrealDB.
type PositionStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// Compile-time check
var _ interfaces.PositionStore = (*PositionStore)(nil)

func NewPositionStore(db *surrealdb.DB, logger *common.Logger) *PositionStore {
	return &PositionStore{db: db, logger: logger}
}

func (s *PositionStore) Get(ctx context.Context, userID, positionID string) (*models.Position, error) {
	position, err := surrealdb.Select[models.Position](ctx, s.db, surrealmodels.NewRecordID("position", positionID))
	if err != nil {
		return nil, fmt.Errorf("failed to select position: %w", err)
	}
	if position == nil || position.ID == "" || position.UserID != userID {
		return nil, fmt.Errorf("position '%s' not found", positionID)
	}
	return position, nil
}

func (s *PositionStore) List(ctx context.Context, userID string, includeArchived bool) ([]*models.Position, error) {
	sql := "SELECT * FROM position WHERE user_id = $user_id"
	if !includeArchived {
		sql += " AND archived = false"
	}
	vars := map[string]any{"user_id": userID}

	results, err := surrealdb.Query[[]models.Position](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}

	rows := firstResult(results)
	mapped := make([]*models.Position, 0, len(rows))
	for i := range rows {
		mapped = append(mapped, &rows[i])
	}
	return mapped, nil
}

func (s *PositionStore) Save(ctx context.Context, position *models.Position) error {
	sql := "UPSERT $rid CONTENT $position"
	vars := map[string]any{
		"rid":      surrealmodels.NewRecordID("position", position.ID),
		"position": position,
	}
	if _, err := surrealdb.Query[[]models.Position](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save position '%s': %w", position.ID, err)
	}
	s.logger.Debug().Str("position", position.ID).Msg("Position saved")
	return nil
}

func (s *PositionStore) Delete(ctx context.Context, userID, positionID string) error {
	if _, err := s.Get(ctx, userID, positionID); err != nil {
		return err
	}
	_, err := surrealdb.Delete[models.Position](ctx, s.db, surrealmodels.NewRecordID("position", positionID))
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete position '%s': %w", positionID, err)
	}
	s.logger.Debug().Str("position", positionID).Msg("Position deleted")
	return nil
}
