package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tally-app/tally/internal/models"
	"github.com/tally-app/tally/internal/valuation"
)

// recalculateLocked rebuilds snapshots for the ledger window between
// fromDate and the next update-type boundary event. The caller holds the
// position lock.
//
// The boundary is exclusive: an update event strictly after fromDate is an
// absolute reset that is authoritative for everything after it, so
// recalculation never crosses into its window. The replay is idempotent —
// one snapshot per (position, event), updated in place on re-runs.
func (s *Service) recalculateLocked(ctx context.Context, userID string, position *models.Position, fromDate string, opts models.RecalcOptions) (*models.RecalcResult, error) {
	if err := checkDate(fromDate); err != nil {
		return nil, err
	}

	result := &models.RecalcResult{PositionID: position.ID, FromDate: fromDate}

	boundary, err := s.storage.LedgerStore().NextUpdateEvent(ctx, userID, position.ID, fromDate)
	if err != nil {
		return nil, fmt.Errorf("failed to find boundary event: %w", err)
	}
	// A boundary that is itself the excluded event is vacating; look past it.
	for boundary != nil && boundary.ID == opts.ExcludeEventID {
		boundary, err = s.storage.LedgerStore().NextUpdateEvent(ctx, userID, position.ID, boundary.Date)
		if err != nil {
			return nil, fmt.Errorf("failed to find boundary event: %w", err)
		}
	}
	toDate := ""
	if boundary != nil {
		result.BoundaryDate = boundary.Date
		// Fetch through the boundary's day; same-day events that order
		// before the boundary still belong to this window.
		toDate = nextDay(boundary.Date)
	}

	events, err := s.storage.LedgerStore().GetEvents(ctx, userID, position.ID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger window: %w", err)
	}

	var window []*models.LedgerEvent
	for _, e := range events {
		if opts.ExcludeEventID != "" && e.ID == opts.ExcludeEventID {
			continue
		}
		if boundary != nil && !valuation.EventLess(e, boundary) {
			continue
		}
		window = append(window, e)
	}
	if inj := opts.InjectEvent; inj != nil {
		if inj.Date >= fromDate && (boundary == nil || valuation.EventLess(inj, boundary)) {
			window = append(window, inj)
		}
	}
	valuation.SortEvents(window)

	if len(window) == 0 {
		return result, nil
	}

	windowIDs := make([]string, 0, len(window))
	dateSeen := make(map[string]bool)
	var dates []string
	for _, e := range window {
		if e.ID != "" {
			windowIDs = append(windowIDs, e.ID)
		}
		if !dateSeen[e.Date] {
			dateSeen[e.Date] = true
			dates = append(dates, e.Date)
		}
	}

	// Gather the seed snapshot, existing snapshots, and market prices for
	// the whole window up front, concurrently: O(1) store round trips and
	// O(distinct dates) price lookups, not O(events).
	var (
		wg       sync.WaitGroup
		base     *models.Snapshot
		baseErr  error
		existing map[string]*models.Snapshot
		existErr error
		prices   models.PriceMap
		priceErr error
	)

	excludes := windowIDs
	if opts.ExcludeEventID != "" {
		excludes = append(excludes, opts.ExcludeEventID)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		base, baseErr = s.storage.SnapshotStore().GetAtOrBefore(ctx, userID, position.ID, fromDate, excludes)
	}()
	go func() {
		defer wg.Done()
		existing, existErr = s.storage.SnapshotStore().GetByEvents(ctx, userID, position.ID, windowIDs)
	}()
	if position.IsMarketLinked() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prices, priceErr = s.prices.GetPrices(ctx, []string{position.MarketID()}, dates)
		}()
	}
	wg.Wait()

	if baseErr != nil {
		return nil, fmt.Errorf("failed to load base snapshot: %w", baseErr)
	}
	if existErr != nil {
		return nil, fmt.Errorf("failed to load window snapshots: %w", existErr)
	}
	if priceErr != nil {
		// Degraded pricing beats blocking the mutation that triggered the
		// recalculation; the fallback chain below takes over.
		s.logger.Warn().Err(priceErr).Str("position", position.ID).
			Msg("Price fetch failed, falling back to ledger pricing")
		prices = nil
	}

	state := valuation.RunningState{}
	if base != nil {
		state.Quantity = base.Quantity
		if base.CostBasisPerUnit != nil {
			state.CostBasisPerUnit = *base.CostBasisPerUnit
		}
	}

	now := time.Now()
	for _, e := range window {
		var override *float64
		if opts.OverrideCostBasisPerUnit != nil && opts.OverrideEventID != "" && e.ID == opts.OverrideEventID {
			override = opts.OverrideCostBasisPerUnit
		}
		state = valuation.Apply(state, e, override)
		result.EventsProcessed++

		unitValue, fellBack := resolveUnitValue(position, e, state, prices)
		if fellBack {
			result.PriceFallbacks++
			s.logger.Debug().Str("position", position.ID).Str("marketID", position.MarketID()).
				Str("date", e.Date).Str("code", string(models.ErrCodePriceUnavailable)).
				Msg("No market price for date, using fallback")
		}

		// Injected preview events advance the running state but have no
		// identity to key a snapshot on yet.
		if e.ID == "" {
			continue
		}

		snapshot := existing[e.ID]
		if snapshot == nil {
			snapshot = &models.Snapshot{
				ID:         generateID("sn_"),
				PositionID: position.ID,
				UserID:     userID,
				EventID:    e.ID,
				CreatedAt:  now,
			}
		}
		basis := state.CostBasisPerUnit
		snapshot.Date = e.Date
		snapshot.Quantity = state.Quantity
		snapshot.UnitValue = unitValue
		snapshot.CostBasisPerUnit = &basis
		snapshot.UpdatedAt = now

		if err := s.storage.SnapshotStore().Upsert(ctx, snapshot); err != nil {
			return nil, fmt.Errorf("failed to upsert snapshot for event %s: %w", e.ID, err)
		}
		result.SnapshotsWritten++
	}

	result.FinalQuantity = state.Quantity
	result.FinalCostBasis = state.CostBasisPerUnit

	s.logger.Debug().Str("position", position.ID).Str("from", fromDate).
		Str("boundary", result.BoundaryDate).Int("events", result.EventsProcessed).
		Int("snapshots", result.SnapshotsWritten).Msg("Recalculation complete")

	return result, nil
}

// resolveUnitValue picks the unit value stored on a snapshot, in order:
// the as-of market price for the event's date (market-linked positions
// only), the event's own unit value, the running cost basis, then 1 as the
// final floor so downstream percentage math never divides by zero. The
// second return is true when a market-linked position had no resolvable
// price for the date.
func resolveUnitValue(position *models.Position, event *models.LedgerEvent, state valuation.RunningState, prices models.PriceMap) (float64, bool) {
	fellBack := false
	if position.IsMarketLinked() {
		if p, ok := prices.Lookup(position.MarketID(), event.Date); ok && p > 0 {
			return p, false
		}
		fellBack = true
	}
	if event.UnitValue > 0 {
		return event.UnitValue, fellBack
	}
	if state.CostBasisPerUnit > 0 {
		return state.CostBasisPerUnit, fellBack
	}
	return 1, fellBack
}
