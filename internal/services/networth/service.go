// Package networth aggregates snapshots, market prices, and FX rates into
// valuations and report series.
package networth

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tally-app/tally/internal/common"
	"github.com/tally-app/tally/internal/interfaces"
	"github.com/tally-app/tally/internal/models"
	"github.com/tally-app/tally/internal/valuation"
)

// Compile-time interface check
var _ interfaces.ValuationService = (*Service)(nil)

// Service implements ValuationService
type Service struct {
	storage  interfaces.StorageManager
	prices   interfaces.PriceProvider
	fx       interfaces.FXProvider
	logger   *common.Logger
	currency string // default display currency
}

// NewService creates a new net worth service
func NewService(storage interfaces.StorageManager, prices interfaces.PriceProvider, fx interfaces.FXProvider, logger *common.Logger, displayCurrency string) *Service {
	return &Service{
		storage:  storage,
		prices:   prices,
		fx:       fx,
		logger:   logger,
		currency: displayCurrency,
	}
}

// loadSnapshots fetches every position's snapshot history concurrently and
// returns them sorted oldest first, keyed by position ID.
func (s *Service) loadSnapshots(ctx context.Context, userID string, positions []*models.Position) (map[string][]*models.Snapshot, error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	out := make(map[string][]*models.Snapshot, len(positions))

	for _, p := range positions {
		wg.Add(1)
		go func(p *models.Position) {
			defer wg.Done()
			snaps, err := s.storage.SnapshotStore().List(ctx, userID, p.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("failed to load snapshots for %s: %w", p.ID, err)
				}
				return
			}
			sort.Slice(snaps, func(i, j int) bool {
				return valuation.SnapshotLess(snaps[i], snaps[j])
			})
			out[p.ID] = snaps
		}(p)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// snapshotAtOrBefore returns the latest snapshot dated at or before date
// from an ascending history, or nil.
func snapshotAtOrBefore(snapshots []*models.Snapshot, date string) *models.Snapshot {
	var found *models.Snapshot
	for _, snap := range snapshots {
		if snap.Date > date {
			break
		}
		found = snap
	}
	return found
}

// fetchRates batch-resolves every (currency, date) pair the report needs
// into the display currency. Identity pairs are skipped.
func (s *Service) fetchRates(ctx context.Context, display string, positions []*models.Position, dates []string) (models.RateMap, error) {
	seen := make(map[string]bool)
	var requests []models.RateRequest
	for _, p := range positions {
		if p.Currency == display {
			continue
		}
		for _, d := range dates {
			key := models.RateKey(p.Currency, d)
			if !seen[key] {
				seen[key] = true
				requests = append(requests, models.RateRequest{Currency: p.Currency, Date: d})
			}
		}
	}
	if len(requests) == 0 {
		return models.RateMap{}, nil
	}
	return s.fx.GetRates(ctx, display, requests)
}

// convert converts a native amount to the display currency, falling back to
// the native amount with a warning when no rate is available.
func (s *Service) convert(amount float64, from, display string, rates models.RateMap, date string) float64 {
	converted, ok := valuation.Convert(amount, from, display, rates, date)
	if !ok {
		s.logger.Warn().Str("from", from).Str("to", display).Str("date", date).
			Msg("No FX rate for date, using native amount")
		return amount
	}
	return converted
}

// CurrentValuations returns every active position valued as of today in the
// display currency, with unrealized profit/loss.
func (s *Service) CurrentValuations(ctx context.Context) ([]*models.PositionValuation, error) {
	userID := common.ResolveUserID(ctx)
	display := common.ResolveDisplayCurrency(ctx, s.currency)
	today := time.Now().Format("2006-01-02")

	positions, err := s.storage.PositionStore().List(ctx, userID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	if len(positions) == 0 {
		return []*models.PositionValuation{}, nil
	}

	snapshotsByPosition, err := s.loadSnapshots(ctx, userID, positions)
	if err != nil {
		return nil, err
	}

	var marketIDs []string
	for _, p := range positions {
		if p.IsMarketLinked() {
			marketIDs = append(marketIDs, p.MarketID())
		}
	}

	// Prices and FX rates are independent fetches.
	var (
		wg       sync.WaitGroup
		prices   models.PriceMap
		priceErr error
		rates    models.RateMap
		rateErr  error
	)
	if len(marketIDs) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prices, priceErr = s.prices.GetPrices(ctx, marketIDs, []string{today})
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		rates, rateErr = s.fetchRates(ctx, display, positions, []string{today})
	}()
	wg.Wait()

	if priceErr != nil {
		s.logger.Warn().Err(priceErr).Msg("Price fetch failed, valuing from snapshots")
		prices = nil
	}
	if rateErr != nil {
		return nil, fmt.Errorf("failed to fetch FX rates: %w", rateErr)
	}

	valuations := make([]*models.PositionValuation, 0, len(positions))
	for _, p := range positions {
		snaps := snapshotsByPosition[p.ID]

		v := &models.PositionValuation{Position: p}
		if latest := snapshotAtOrBefore(snaps, today); latest != nil {
			v.Quantity = latest.Quantity
			v.UnitValue = latest.UnitValue
		}
		if p.IsMarketLinked() {
			if price, ok := prices.Lookup(p.MarketID(), today); ok && price > 0 {
				v.UnitValue = price
			}
		}
		v.NativeValue = v.Quantity * v.UnitValue
		v.Value = s.convert(v.NativeValue, p.Currency, display, rates, today)
		valuations = append(valuations, v)
	}

	valuation.Project(valuations, snapshotsByPosition)

	sort.Slice(valuations, func(i, j int) bool {
		if valuations[i].Value != valuations[j].Value {
			return valuations[i].Value > valuations[j].Value
		}
		return valuations[i].Position.Name < valuations[j].Position.Name
	})
	return valuations, nil
}

// dateGrid builds the report dates from fromDate to toDate inclusive,
// stepping intervalDays. The final date is always present.
func dateGrid(fromDate, toDate string, intervalDays int) ([]string, error) {
	from, err := time.Parse("2006-01-02", fromDate)
	if err != nil {
		return nil, fmt.Errorf("invalid from date %q", fromDate)
	}
	to, err := time.Parse("2006-01-02", toDate)
	if err != nil {
		return nil, fmt.Errorf("invalid to date %q", toDate)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("date range %s..%s is inverted", fromDate, toDate)
	}
	if intervalDays <= 0 {
		intervalDays = 7
	}

	var dates []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, intervalDays) {
		dates = append(dates, d.Format("2006-01-02"))
	}
	if dates[len(dates)-1] != toDate {
		dates = append(dates, toDate)
	}
	return dates, nil
}

// resolveRange fills report range defaults: an empty fromDate starts at the
// earliest snapshot, an empty toDate ends today.
func resolveRange(fromDate, toDate string, snapshotsByPosition map[string][]*models.Snapshot) (string, string) {
	if toDate == "" {
		toDate = time.Now().Format("2006-01-02")
	}
	if fromDate == "" {
		for _, snaps := range snapshotsByPosition {
			if len(snaps) > 0 && (fromDate == "" || snaps[0].Date < fromDate) {
				fromDate = snaps[0].Date
			}
		}
		if fromDate == "" {
			fromDate = toDate
		}
	}
	return fromDate, toDate
}

// NetWorthSeries computes assets, liabilities, and net worth over time in
// the display currency. Snapshots carry forward between report dates.
func (s *Service) NetWorthSeries(ctx context.Context, fromDate, toDate string, intervalDays int) (*models.NetWorthSeries, error) {
	userID := common.ResolveUserID(ctx)
	display := common.ResolveDisplayCurrency(ctx, s.currency)

	positions, err := s.storage.PositionStore().List(ctx, userID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}

	snapshotsByPosition, err := s.loadSnapshots(ctx, userID, positions)
	if err != nil {
		return nil, err
	}

	fromDate, toDate = resolveRange(fromDate, toDate, snapshotsByPosition)
	dates, err := dateGrid(fromDate, toDate, intervalDays)
	if err != nil {
		return nil, err
	}

	rates, err := s.fetchRates(ctx, display, positions, dates)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch FX rates: %w", err)
	}

	series := &models.NetWorthSeries{
		Currency:   display,
		Points:     make([]models.NetWorthPoint, 0, len(dates)),
		ComputedAt: time.Now(),
	}
	for _, date := range dates {
		point := models.NetWorthPoint{Date: date}
		for _, p := range positions {
			snap := snapshotAtOrBefore(snapshotsByPosition[p.ID], date)
			if snap == nil {
				continue
			}
			value := s.convert(snap.Value(), p.Currency, display, rates, date)
			if p.Type == models.PositionTypeLiability {
				point.Liabilities += value
			} else {
				point.Assets += value
			}
		}
		point.NetWorth = point.Assets - point.Liabilities
		series.Points = append(series.Points, point)
	}
	return series, nil
}

// Allocation breaks current asset value down by category in the display
// currency. Uncategorized positions group under "uncategorized".
func (s *Service) Allocation(ctx context.Context) (*models.Allocation, error) {
	display := common.ResolveDisplayCurrency(ctx, s.currency)

	valuations, err := s.CurrentValuations(ctx)
	if err != nil {
		return nil, err
	}

	byCategory := make(map[string]*models.AllocationSlice)
	total := 0.0
	for _, v := range valuations {
		if v.Position.Type != models.PositionTypeAsset {
			continue
		}
		category := v.Position.Category
		if category == "" {
			category = "uncategorized"
		}
		slice, ok := byCategory[category]
		if !ok {
			slice = &models.AllocationSlice{Category: category}
			byCategory[category] = slice
		}
		slice.Value += v.Value
		slice.Positions = append(slice.Positions, v.Position.ID)
		total += v.Value
	}

	allocation := &models.Allocation{Currency: display, TotalValue: total}
	for _, slice := range byCategory {
		if total > 0 {
			slice.WeightPct = (slice.Value / total) * 100
		}
		allocation.Slices = append(allocation.Slices, *slice)
	}
	sort.Slice(allocation.Slices, func(i, j int) bool {
		if allocation.Slices[i].Value != allocation.Slices[j].Value {
			return allocation.Slices[i].Value > allocation.Slices[j].Value
		}
		return allocation.Slices[i].Category < allocation.Slices[j].Category
	})
	return allocation, nil
}

// Performance computes asset value against total cost basis over time in
// the display currency.
func (s *Service) Performance(ctx context.Context, fromDate, toDate string, intervalDays int) ([]models.PerformancePoint, error) {
	userID := common.ResolveUserID(ctx)
	display := common.ResolveDisplayCurrency(ctx, s.currency)

	positions, err := s.storage.PositionStore().List(ctx, userID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}

	var assets []*models.Position
	for _, p := range positions {
		if p.Type == models.PositionTypeAsset {
			assets = append(assets, p)
		}
	}

	snapshotsByPosition, err := s.loadSnapshots(ctx, userID, assets)
	if err != nil {
		return nil, err
	}

	fromDate, toDate = resolveRange(fromDate, toDate, snapshotsByPosition)
	dates, err := dateGrid(fromDate, toDate, intervalDays)
	if err != nil {
		return nil, err
	}

	rates, err := s.fetchRates(ctx, display, assets, dates)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch FX rates: %w", err)
	}

	points := make([]models.PerformancePoint, 0, len(dates))
	for _, date := range dates {
		point := models.PerformancePoint{Date: date}
		for _, p := range assets {
			snaps := snapshotsByPosition[p.ID]
			snap := snapshotAtOrBefore(snaps, date)
			if snap == nil {
				continue
			}

			// Basis selection runs over the history up to this date, so a
			// refresh snapshot with an inherited basis leans on the last
			// explicit one before it.
			var prefix []*models.Snapshot
			for _, sn := range snaps {
				if sn.Date > date {
					break
				}
				prefix = append(prefix, sn)
			}
			_, basis := valuation.SelectBasisSnapshot(prefix)

			point.Value += s.convert(snap.Value(), p.Currency, display, rates, date)
			point.TotalCostBasis += s.convert(basis*snap.Quantity, p.Currency, display, rates, date)
		}
		point.ProfitLoss = point.Value - point.TotalCostBasis
		if point.TotalCostBasis > 0 {
			point.ProfitLossPct = (point.ProfitLoss / point.TotalCostBasis) * 100
		}
		points = append(points, point)
	}
	return points, nil
}

// ProjectedIncome estimates annual income from positions carrying a yield,
// in the display currency.
func (s *Service) ProjectedIncome(ctx context.Context) (*models.ProjectedIncome, error) {
	display := common.ResolveDisplayCurrency(ctx, s.currency)

	valuations, err := s.CurrentValuations(ctx)
	if err != nil {
		return nil, err
	}

	income := &models.ProjectedIncome{Currency: display}
	for _, v := range valuations {
		yield := v.Position.AnnualYieldPct
		if yield == nil || *yield <= 0 {
			continue
		}
		annual := v.Value * (*yield / 100)
		income.Items = append(income.Items, models.ProjectedIncomeItem{
			PositionID:     v.Position.ID,
			PositionName:   v.Position.Name,
			Value:          v.Value,
			AnnualYieldPct: *yield,
			AnnualIncome:   annual,
		})
		income.AnnualTotal += annual
		income.PositionsWithYield++
	}
	income.MonthlyTotal = income.AnnualTotal / 12
	return income, nil
}
