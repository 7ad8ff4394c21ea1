package badger

import (
	"context"
	"fmt"

	"github.com/tally-app/tally/internal/common"
	"github.com/tally-app/tally/internal/models"
	"github.com/tally-app/tally/internal/valuation"
	"github.com/timshannon/badgerhold/v4"
)

type ledgerStorage struct {
	store  *Store
	logger *common.Logger
}

// NewLedgerStorage creates a new LedgerStore backed by BadgerHold.
func NewLedgerStorage(store *Store, logger *common.Logger) *ledgerStorage {
	return &ledgerStorage{store: store, logger: logger}
}

func (s *ledgerStorage) GetEvent(_ context.Context, userID, eventID string) (*models.LedgerEvent, error) {
	var event models.LedgerEvent
	err := s.store.db.Get(eventID, &event)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("ledger event '%s' not found", eventID)
		}
		return nil, fmt.Errorf("failed to get ledger event '%s': %w", eventID, err)
	}
	if event.UserID != userID {
		return nil, fmt.Errorf("ledger event '%s' not found", eventID)
	}
	return &event, nil
}

func (s *ledgerStorage) GetEvents(_ context.Context, userID, positionID, fromDate, toDate string) ([]*models.LedgerEvent, error) {
	var all []models.LedgerEvent
	query := badgerhold.Where("PositionID").Eq(positionID).And("UserID").Eq(userID)
	if err := s.store.db.Find(&all, query); err != nil {
		return nil, fmt.Errorf("failed to load ledger for '%s': %w", positionID, err)
	}

	var result []*models.LedgerEvent
	for i := range all {
		if fromDate != "" && all[i].Date < fromDate {
			continue
		}
		if toDate != "" && all[i].Date >= toDate {
			continue
		}
		e := all[i]
		result = append(result, &e)
	}
	valuation.SortEvents(result)
	return result, nil
}

func (s *ledgerStorage) NextUpdateEvent(ctx context.Context, userID, positionID, afterDate string) (*models.LedgerEvent, error) {
	events, err := s.GetEvents(ctx, userID, positionID, "", "")
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		if e.Type == models.EventTypeUpdate && e.Date > afterDate {
			return e, nil
		}
	}
	return nil, nil
}

func (s *ledgerStorage) InsertEvents(_ context.Context, events []*models.LedgerEvent) error {
	for _, e := range events {
		if err := s.store.db.Upsert(e.ID, e); err != nil {
			return fmt.Errorf("failed to insert ledger event '%s': %w", e.ID, err)
		}
	}
	s.logger.Debug().Int("count", len(events)).Msg("Ledger events inserted")
	return nil
}

func (s *ledgerStorage) DeleteEvent(ctx context.Context, userID, eventID string) error {
	if _, err := s.GetEvent(ctx, userID, eventID); err != nil {
		return err
	}
	err := s.store.db.Delete(eventID, models.LedgerEvent{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete ledger event '%s': %w", eventID, err)
	}
	return nil
}

func (s *ledgerStorage) DeleteByPosition(ctx context.Context, userID, positionID string) (int, error) {
	events, err := s.GetEvents(ctx, userID, positionID, "", "")
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range events {
		if err := s.store.db.Delete(e.ID, models.LedgerEvent{}); err == nil {
			count++
		}
	}
	s.logger.Debug().Str("position", positionID).Int("count", count).Msg("Ledger cleared")
	return count, nil
}
