// Package ledger gates all position ledger mutations through timeline
// validation and keeps valuation snapshots consistent via recalculation.
package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tally-app/tally/internal/common"
	"github.com/tally-app/tally/internal/interfaces"
	"github.com/tally-app/tally/internal/models"
)

// ErrPositionNotFound marks a recalculation or mutation aimed at a position
// that does not exist or is not owned by the caller.
var ErrPositionNotFound = errors.New("position not found")

// ErrEventNotFound marks an edit or delete aimed at a ledger event that does
// not exist or is not owned by the caller.
var ErrEventNotFound = errors.New("ledger event not found")

// Compile-time interface check
var _ interfaces.LedgerService = (*Service)(nil)

// Service implements LedgerService
type Service struct {
	storage interfaces.StorageManager
	prices  interfaces.PriceProvider
	logger  *common.Logger

	// Per-(user, position) mutation serialization. The engine itself holds
	// no locks during reads; only mutations funnel through here.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a new ledger service
func NewService(storage interfaces.StorageManager, prices interfaces.PriceProvider, logger *common.Logger) *Service {
	return &Service{
		storage: storage,
		prices:  prices,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

// positionLock returns the mutex serializing mutations for one position.
func (s *Service) positionLock(userID, positionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + "/" + positionID
	if l, ok := s.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[key] = l
	return l
}

// generateID returns a unique ID with the given prefix + 8 hex chars.
func generateID(prefix string) string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return prefix + "00000000"
	}
	return prefix + hex.EncodeToString(b)
}

// checkDate validates a date-only "YYYY-MM-DD" string.
func checkDate(date string) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
	}
	return nil
}

// nextDay returns the day after a "YYYY-MM-DD" date string.
func nextDay(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, 1).Format("2006-01-02")
}

// AddEvent validates and persists one new ledger event, then recalculates
// the affected window.
func (s *Service) AddEvent(ctx context.Context, candidate models.CandidateEvent) (*models.LedgerEvent, *models.ValidationResult, error) {
	userID := common.ResolveUserID(ctx)

	position, err := s.storage.PositionStore().Get(ctx, userID, candidate.PositionID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrPositionNotFound, candidate.PositionID)
	}

	lock := s.positionLock(userID, position.ID)
	lock.Lock()
	defer lock.Unlock()

	result, err := s.ValidateWindow(ctx, position.ID, []models.CandidateEvent{candidate}, nil)
	if err != nil {
		return nil, nil, err
	}
	if !result.Valid {
		return nil, result, nil
	}

	event := candidate.Event()
	event.ID = generateID("ev_")
	event.UserID = userID
	event.CreatedAt = time.Now()

	if err := s.storage.LedgerStore().InsertEvents(ctx, []*models.LedgerEvent{event}); err != nil {
		return nil, nil, fmt.Errorf("failed to insert ledger event: %w", err)
	}

	if _, err := s.recalculateLocked(ctx, userID, position, event.Date, models.RecalcOptions{
		OverrideCostBasisPerUnit: candidate.OverrideCostBasisPerUnit,
		OverrideEventID:          event.ID,
	}); err != nil {
		return nil, nil, err
	}

	s.logger.Info().Str("position", position.ID).Str("event", event.ID).
		Str("type", string(event.Type)).Str("date", event.Date).
		Float64("quantity", event.Quantity).Msg("Ledger event added")

	return event, result, nil
}

// EditEvent replaces an existing event with a new version under a single
// validation pass. The replacement gets a fresh ID and creation timestamp;
// snapshots are rebuilt first by replaying with the old event excluded and
// the replacement injected, then the ledger rows are swapped.
func (s *Service) EditEvent(ctx context.Context, eventID string, candidate models.CandidateEvent) (*models.LedgerEvent, *models.ValidationResult, error) {
	userID := common.ResolveUserID(ctx)

	existing, err := s.storage.LedgerStore().GetEvent(ctx, userID, eventID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	if candidate.PositionID == "" {
		candidate.PositionID = existing.PositionID
	}
	if candidate.PositionID != existing.PositionID {
		return nil, nil, fmt.Errorf("event %s belongs to position %s, not %s", eventID, existing.PositionID, candidate.PositionID)
	}

	position, err := s.storage.PositionStore().Get(ctx, userID, existing.PositionID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrPositionNotFound, existing.PositionID)
	}

	lock := s.positionLock(userID, position.ID)
	lock.Lock()
	defer lock.Unlock()

	result, err := s.ValidateWindow(ctx, position.ID, []models.CandidateEvent{candidate}, []string{eventID})
	if err != nil {
		return nil, nil, err
	}
	if !result.Valid {
		return nil, result, nil
	}

	replacement := candidate.Event()
	replacement.ID = generateID("ev_")
	replacement.UserID = userID
	replacement.CreatedAt = time.Now()

	// Rebuild snapshots before touching the ledger rows: the replay drops
	// the old event and injects the replacement, starting from whichever
	// date moved earlier.
	fromDate := replacement.Date
	if existing.Date < fromDate {
		fromDate = existing.Date
	}
	opts := models.RecalcOptions{
		ExcludeEventID:           eventID,
		InjectEvent:              replacement,
		OverrideCostBasisPerUnit: candidate.OverrideCostBasisPerUnit,
		OverrideEventID:          replacement.ID,
	}
	res, err := s.recalculateLocked(ctx, userID, position, fromDate, opts)
	if err != nil {
		return nil, nil, err
	}
	// Either date may land beyond the next update boundary; those segments
	// replay separately with the same exclusion and injection.
	if res.BoundaryDate != "" {
		for _, d := range []string{existing.Date, replacement.Date} {
			if d >= res.BoundaryDate {
				if _, err := s.recalculateLocked(ctx, userID, position, d, opts); err != nil {
					return nil, nil, err
				}
			}
		}
	}

	if err := s.storage.LedgerStore().InsertEvents(ctx, []*models.LedgerEvent{replacement}); err != nil {
		return nil, nil, fmt.Errorf("failed to insert replacement event: %w", err)
	}
	if err := s.storage.LedgerStore().DeleteEvent(ctx, userID, eventID); err != nil {
		return nil, nil, fmt.Errorf("failed to delete event %s: %w", eventID, err)
	}
	if err := s.storage.SnapshotStore().DeleteByEvent(ctx, userID, position.ID, eventID); err != nil {
		return nil, nil, fmt.Errorf("failed to delete snapshot for event %s: %w", eventID, err)
	}

	s.logger.Info().Str("position", position.ID).Str("old", eventID).
		Str("new", replacement.ID).Msg("Ledger event edited")

	return replacement, result, nil
}

// DeleteEvent removes an event and its snapshot, then recalculates the
// window the event used to anchor.
func (s *Service) DeleteEvent(ctx context.Context, eventID string) error {
	userID := common.ResolveUserID(ctx)

	event, err := s.storage.LedgerStore().GetEvent(ctx, userID, eventID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}

	position, err := s.storage.PositionStore().Get(ctx, userID, event.PositionID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPositionNotFound, event.PositionID)
	}

	lock := s.positionLock(userID, position.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.storage.LedgerStore().DeleteEvent(ctx, userID, eventID); err != nil {
		return fmt.Errorf("failed to delete event %s: %w", eventID, err)
	}
	if err := s.storage.SnapshotStore().DeleteByEvent(ctx, userID, position.ID, eventID); err != nil {
		return fmt.Errorf("failed to delete snapshot for event %s: %w", eventID, err)
	}

	if _, err := s.recalculateLocked(ctx, userID, position, event.Date, models.RecalcOptions{}); err != nil {
		return err
	}

	s.logger.Info().Str("position", position.ID).Str("event", eventID).
		Str("date", event.Date).Msg("Ledger event deleted")
	return nil
}

// ListEvents returns a position's events in timeline order.
func (s *Service) ListEvents(ctx context.Context, positionID, fromDate, toDate string) ([]*models.LedgerEvent, error) {
	userID := common.ResolveUserID(ctx)
	if _, err := s.storage.PositionStore().Get(ctx, userID, positionID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, positionID)
	}
	return s.storage.LedgerStore().GetEvents(ctx, userID, positionID, fromDate, toDate)
}

// ImportEvents validates and persists a batch of candidate events, all or
// nothing. Candidates may span multiple positions; each position's window
// is validated and recalculated independently.
func (s *Service) ImportEvents(ctx context.Context, candidates []models.CandidateEvent) (*models.ImportResult, *models.ValidationResult, error) {
	userID := common.ResolveUserID(ctx)

	if len(candidates) == 0 {
		return &models.ImportResult{}, models.ValidationOK(), nil
	}

	byPosition := make(map[string][]models.CandidateEvent)
	var order []string
	for _, c := range candidates {
		if _, seen := byPosition[c.PositionID]; !seen {
			order = append(order, c.PositionID)
		}
		byPosition[c.PositionID] = append(byPosition[c.PositionID], c)
	}
	sort.Strings(order)

	positions := make(map[string]*models.Position, len(order))
	for _, positionID := range order {
		position, err := s.storage.PositionStore().Get(ctx, userID, positionID)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrPositionNotFound, positionID)
		}
		positions[positionID] = position
	}

	// Every window stays pinned from validation through settlement, so a
	// concurrent mutation cannot consume quantity the batch validated
	// against. Locks are taken in sorted order; concurrent imports cannot
	// deadlock.
	for _, positionID := range order {
		lock := s.positionLock(userID, positionID)
		lock.Lock()
		defer lock.Unlock()
	}

	// Validate every position's window before touching the store, so a
	// failure anywhere rejects the whole batch.
	for _, positionID := range order {
		result, err := s.ValidateWindow(ctx, positionID, byPosition[positionID], nil)
		if err != nil {
			return nil, nil, err
		}
		if !result.Valid {
			return nil, result, nil
		}
	}

	importResult := &models.ImportResult{}
	for _, positionID := range order {
		group := byPosition[positionID]
		events := make([]*models.LedgerEvent, len(group))
		now := time.Now()
		for i, c := range group {
			e := c.Event()
			e.ID = generateID("ev_")
			e.UserID = userID
			// Monotonic creation timestamps preserve the batch's own order
			// among same-day rows.
			e.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
			events[i] = e
		}

		if err := s.storage.LedgerStore().InsertEvents(ctx, events); err != nil {
			return nil, nil, fmt.Errorf("failed to insert imported events for %s: %w", positionID, err)
		}
		importResult.EventsImported += len(events)

		written, err := s.recalculateSegments(ctx, userID, positions[positionID], events)
		if err != nil {
			return nil, nil, err
		}
		importResult.SnapshotsWritten += written
		importResult.PositionsRecalced = append(importResult.PositionsRecalced, positionID)
	}

	s.logger.Info().Int("events", importResult.EventsImported).
		Int("positions", len(importResult.PositionsRecalced)).
		Msg("Ledger import settled")

	return importResult, models.ValidationOK(), nil
}

// recalculateSegments runs one recalculation per boundary-delimited segment
// touched by the inserted events. Inserted update events move boundaries,
// so the loop chases each recalculation's reported boundary until every
// inserted date is covered.
func (s *Service) recalculateSegments(ctx context.Context, userID string, position *models.Position, inserted []*models.LedgerEvent) (int, error) {
	dates := make([]string, 0, len(inserted))
	for _, e := range inserted {
		dates = append(dates, e.Date)
	}
	sort.Strings(dates)

	written := 0
	idx := 0
	for idx < len(dates) {
		res, err := s.recalculateLocked(ctx, userID, position, dates[idx], models.RecalcOptions{})
		if err != nil {
			return written, err
		}
		written += res.SnapshotsWritten

		if res.BoundaryDate == "" {
			break
		}
		next := idx + 1
		for next < len(dates) && dates[next] < res.BoundaryDate {
			next++
		}
		if next == idx {
			next++
		}
		idx = next
	}
	return written, nil
}

// Recalculate rebuilds snapshots for one boundary-delimited segment of a
// position's ledger, starting at fromDate.
func (s *Service) Recalculate(ctx context.Context, positionID, fromDate string, opts models.RecalcOptions) (*models.RecalcResult, error) {
	userID := common.ResolveUserID(ctx)

	position, err := s.storage.PositionStore().Get(ctx, userID, positionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, positionID)
	}

	lock := s.positionLock(userID, positionID)
	lock.Lock()
	defer lock.Unlock()

	return s.recalculateLocked(ctx, userID, position, fromDate, opts)
}

// RefreshPrices writes one price-only refresh snapshot per market-linked
// position, dated today, carrying the running quantity forward with a nil
// cost basis (inherited at read time). Returns the number written.
func (s *Service) RefreshPrices(ctx context.Context) (int, error) {
	userID := common.ResolveUserID(ctx)

	positions, err := s.storage.PositionStore().List(ctx, userID, false)
	if err != nil {
		return 0, fmt.Errorf("failed to list positions: %w", err)
	}

	now := time.Now()
	today := now.Format("2006-01-02")

	var marketIDs []string
	var linked []*models.Position
	for _, p := range positions {
		if p.IsMarketLinked() {
			marketIDs = append(marketIDs, p.MarketID())
			linked = append(linked, p)
		}
	}
	if len(linked) == 0 {
		return 0, nil
	}

	priceMap, err := s.prices.GetPrices(ctx, marketIDs, []string{today})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch prices: %w", err)
	}

	written := 0
	for _, p := range linked {
		price, ok := priceMap.Lookup(p.MarketID(), today)
		if !ok {
			s.logger.Warn().Str("position", p.ID).Str("marketID", p.MarketID()).
				Str("date", today).Msg("Price unavailable for refresh")
			continue
		}

		latest, err := s.storage.SnapshotStore().GetAtOrBefore(ctx, userID, p.ID, today, nil)
		if err != nil {
			return written, fmt.Errorf("failed to load latest snapshot for %s: %w", p.ID, err)
		}
		if latest == nil || latest.Quantity == 0 {
			continue
		}

		// No backing event and a nil basis: the basis is inherited from
		// prior history at read time.
		snapshot := &models.Snapshot{
			PositionID: p.ID,
			UserID:     userID,
			Date:       today,
			Quantity:   latest.Quantity,
			UnitValue:  price,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		// Same-day refreshes collapse onto one row, updated in place.
		dayRows, err := s.storage.SnapshotStore().ListRange(ctx, userID, p.ID, today, nextDay(today))
		if err != nil {
			return written, fmt.Errorf("failed to load same-day snapshots for %s: %w", p.ID, err)
		}
		for _, row := range dayRows {
			if row.EventID == "" {
				snapshot.ID = row.ID
				snapshot.CreatedAt = row.CreatedAt
				break
			}
		}
		if snapshot.ID == "" {
			snapshot.ID = generateID("sn_")
		}
		if err := s.storage.SnapshotStore().Upsert(ctx, snapshot); err != nil {
			return written, fmt.Errorf("failed to upsert refresh snapshot for %s: %w", p.ID, err)
		}
		written++
	}

	s.logger.Info().Int("snapshots", written).Str("date", today).Msg("Price refresh complete")
	return written, nil
}
