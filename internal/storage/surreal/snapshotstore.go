package surreal

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/tally-app/tally/internal/common"
	"github.com/tally-app/tally/internal/interfaces"
	"github.com/tally-app/tally/internal/models"
	"github.com/tally-app/tally/internal/valuation"
)

// SnapshotStore manages derived valuation snapshots in SurrealDB.
type SnapshotStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// Compile-time check
var _ interfaces.SnapshotStore = (*SnapshotStore)(nil)

func NewSnapshotStore(db *surrealdb.DB, logger *common.Logger) *SnapshotStore {
	return &SnapshotStore{db: db, logger: logger}
}

func (s *SnapshotStore) GetAtOrBefore(ctx context.Context, userID, positionID, date string, excludeEventIDs []string) (*models.Snapshot, error) {
	sql := "SELECT * FROM snapshot WHERE user_id = $user_id AND position_id = $position_id AND date <= $date"
	vars := map[string]any{
		"user_id":     userID,
		"position_id": positionID,
		"date":        date,
	}

	results, err := surrealdb.Query[[]models.Snapshot](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots for '%s': %w", positionID, err)
	}

	excluded := make(map[string]bool, len(excludeEventIDs))
	for _, id := range excludeEventIDs {
		excluded[id] = true
	}

	rows := firstResult(results)
	var matches []*models.Snapshot
	for i := range rows {
		if rows[i].EventID != "" && excluded[rows[i].EventID] {
			continue
		}
		matches = append(matches, &rows[i])
	}
	if len(matches) == 0 {
		return nil, nil
	}
	valuation.SortSnapshotsDesc(matches)
	return matches[0], nil
}

func (s *SnapshotStore) GetByEvents(ctx context.Context, userID, positionID string, eventIDs []string) (map[string]*models.Snapshot, error) {
	sql := "SELECT * FROM snapshot WHERE user_id = $user_id AND position_id = $position_id AND event_id IN $event_ids"
	vars := map[string]any{
		"user_id":     userID,
		"position_id": positionID,
		"event_ids":   eventIDs,
	}

	results, err := surrealdb.Query[[]models.Snapshot](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots by event: %w", err)
	}

	rows := firstResult(results)
	mapped := make(map[string]*models.Snapshot, len(rows))
	for i := range rows {
		if rows[i].EventID != "" {
			mapped[rows[i].EventID] = &rows[i]
		}
	}
	return mapped, nil
}

func (s *SnapshotStore) List(ctx context.Context, userID, positionID string) ([]*models.Snapshot, error) {
	sql := "SELECT * FROM snapshot WHERE user_id = $user_id AND position_id = $position_id"
	vars := map[string]any{
		"user_id":     userID,
		"position_id": positionID,
	}

	results, err := surrealdb.Query[[]models.Snapshot](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots for '%s': %w", positionID, err)
	}

	rows := firstResult(results)
	mapped := make([]*models.Snapshot, 0, len(rows))
	for i := range rows {
		mapped = append(mapped, &rows[i])
	}
	return mapped, nil
}

func (s *SnapshotStore) ListRange(ctx context.Context, userID, positionID, fromDate, toDate string) ([]*models.Snapshot, error) {
	sql := "SELECT * FROM snapshot WHERE user_id = $user_id AND position_id = $position_id"
	vars := map[string]any{
		"user_id":     userID,
		"position_id": positionID,
	}
	if fromDate != "" {
		sql += " AND date >= $from_date"
		vars["from_date"] = fromDate
	}
	if toDate != "" {
		sql += " AND date < $to_date"
		vars["to_date"] = toDate
	}

	results, err := surrealdb.Query[[]models.Snapshot](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot range for '%s': %w", positionID, err)
	}

	rows := firstResult(results)
	mapped := make([]*models.Snapshot, 0, len(rows))
	for i := range rows {
		mapped = append(mapped, &rows[i])
	}
	return mapped, nil
}

func (s *SnapshotStore) Upsert(ctx context.Context, snapshot *models.Snapshot) error {
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

	sql := "UPSERT $rid CONTENT $snapshot"
	vars := map[string]any{
		"rid":      surrealmodels.NewRecordID("snapshot", snapshot.ID),
		"snapshot": snapshot,
	}
	if _, err := surrealdb.Query[[]models.Snapshot](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to upsert snapshot '%s': %w", snapshot.ID, err)
	}
	return nil
}

func (s *SnapshotStore) DeleteByEvent(ctx context.Context, userID, positionID, eventID string) error {
	sql := "DELETE snapshot WHERE user_id = $user_id AND position_id = $position_id AND event_id = $event_id"
	vars := map[string]any{
		"user_id":     userID,
		"position_id": positionID,
		"event_id":    eventID,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to delete snapshot for event '%s': %w", eventID, err)
	}
	return nil
}

func (s *SnapshotStore) DeleteByPosition(ctx context.Context, userID, positionID string) (int, error) {
	sql := "DELETE snapshot WHERE user_id = $user_id AND position_id = $position_id RETURN BEFORE"
	vars := map[string]any{
		"user_id":     userID,
		"position_id": positionID,
	}

	results, err := surrealdb.Query[[]models.Snapshot](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to clear snapshots for '%s': %w", positionID, err)
	}
	count := len(firstResult(results))
	s.logger.Debug().Str("position", positionID).Int("count", count).Msg("Snapshots cleared")
	return count, nil
}
