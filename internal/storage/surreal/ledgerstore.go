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

// LedgerStore manages the per-position event ledger in SurrealDB.
type LedgerStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// Compile-time check
var _ interfaces.LedgerStore = (*LedgerStore)(nil)

func NewLedgerStore(db *surrealdb.DB, logger *common.Logger) *LedgerStore {
	return &LedgerStore{db: db, logger: logger}
}

func (s *LedgerStore) GetEvent(ctx context.Context, userID, eventID string) (*models.LedgerEvent, error) {
	event, err := surrealdb.Select[models.LedgerEvent](ctx, s.db, surrealmodels.NewRecordID("ledger_event", eventID))
	if err != nil {
		return nil, fmt.Errorf("failed to select ledger event: %w", err)
	}
	if event == nil || event.ID == "" || event.UserID != userID {
		return nil, fmt.Errorf("ledger event '%s' not found", eventID)
	}
	return event, nil
}

func (s *LedgerStore) GetEvents(ctx context.Context, userID, positionID, fromDate, toDate string) ([]*models.LedgerEvent, error) {
	sql := "SELECT * FROM ledger_event WHERE user_id = $user_id AND position_id = $position_id"
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

	results, err := surrealdb.Query[[]models.LedgerEvent](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger for '%s': %w", positionID, err)
	}

	rows := firstResult(results)
	mapped := make([]*models.LedgerEvent, 0, len(rows))
	for i := range rows {
		mapped = append(mapped, &rows[i])
	}
	valuation.SortEvents(mapped)
	return mapped, nil
}

func (s *LedgerStore) NextUpdateEvent(ctx context.Context, userID, positionID, afterDate string) (*models.LedgerEvent, error) {
	sql := "SELECT * FROM ledger_event WHERE user_id = $user_id AND position_id = $position_id AND type = 'update' AND date > $after_date"
	vars := map[string]any{
		"user_id":     userID,
		"position_id": positionID,
		"after_date":  afterDate,
	}

	results, err := surrealdb.Query[[]models.LedgerEvent](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to find boundary event: %w", err)
	}

	rows := firstResult(results)
	if len(rows) == 0 {
		return nil, nil
	}
	candidates := make([]*models.LedgerEvent, 0, len(rows))
	for i := range rows {
		candidates = append(candidates, &rows[i])
	}
	valuation.SortEvents(candidates)
	return candidates[0], nil
}

func (s *LedgerStore) InsertEvents(ctx context.Context, events []*models.LedgerEvent) error {
	for _, e := range events {
		sql := "UPSERT $rid CONTENT $event"
		vars := map[string]any{
			"rid":   surrealmodels.NewRecordID("ledger_event", e.ID),
			"event": e,
		}
		if _, err := surrealdb.Query[[]models.LedgerEvent](ctx, s.db, sql, vars); err != nil {
			return fmt.Errorf("failed to insert ledger event '%s': %w", e.ID, err)
		}
	}
	s.logger.Debug().Int("count", len(events)).Msg("Ledger events inserted")
	return nil
}

func (s *LedgerStore) DeleteEvent(ctx context.Context, userID, eventID string) error {
	if _, err := s.GetEvent(ctx, userID, eventID); err != nil {
		return err
	}
	_, err := surrealdb.Delete[models.LedgerEvent](ctx, s.db, surrealmodels.NewRecordID("ledger_event", eventID))
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete ledger event '%s': %w", eventID, err)
	}
	return nil
}

func (s *LedgerStore) DeleteByPosition(ctx context.Context, userID, positionID string) (int, error) {
	sql := "DELETE ledger_event WHERE user_id = $user_id AND position_id = $position_id RETURN BEFORE"
	vars := map[string]any{
		"user_id":     userID,
		"position_id": positionID,
	}

	results, err := surrealdb.Query[[]models.LedgerEvent](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to clear ledger for '%s': %w", positionID, err)
	}
	count := len(firstResult(results))
	s.logger.Debug().Str("position", positionID).Int("count", count).Msg("Ledger cleared")
	return count, nil
}
