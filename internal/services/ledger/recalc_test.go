package ledger

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tally-app/tally/internal/models"
)

func mustTime(t *testing.T, date string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", date)
	require.NoError(t, err)
	return ts
}

// addEvent drives the full mutation path and fails the test on any
// validation rejection.
func addEvent(t *testing.T, svc *Service, c models.CandidateEvent) *models.LedgerEvent {
	t.Helper()
	event, result, err := svc.AddEvent(context.Background(), c)
	require.NoError(t, err)
	require.True(t, result.Valid, "unexpected rejection: %s", result.Message)
	return event
}

func snapshotsByDate(t *testing.T, storage *memStorage, positionID string) []*models.Snapshot {
	t.Helper()
	snaps, err := storage.SnapshotStore().List(context.Background(), "default", positionID)
	require.NoError(t, err)
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Date < snaps[j].Date })
	return snaps
}

func TestRecalculateScenario(t *testing.T) {
	storage := newMemStorage()
	seedPosition(storage, "pos1")
	svc := newTestService(storage, nil)

	addEvent(t, svc, models.CandidateEvent{PositionID: "pos1", Type: models.EventTypeBuy, Date: "2024-01-10", Quantity: 10, UnitValue: 100})
	addEvent(t, svc, models.CandidateEvent{PositionID: "pos1", Type: models.EventTypeBuy, Date: "2024-02-15", Quantity: 5, UnitValue: 200})
	addEvent(t, svc, models.CandidateEvent{PositionID: "pos1", Type: models.EventTypeSell, Date: "2024-03-01", Quantity: 12, UnitValue: 150})
	addEvent(t, svc, models.CandidateEvent{PositionID: "pos1", Type: models.EventTypeUpdate, Date: "2024-04-01", Quantity: 8, UnitValue: 90})

	snaps := snapshotsByDate(t, storage, "pos1")
	require.Len(t, snaps, 4)

	assert.Equal(t, 10.0, snaps[0].Quantity)
	require.NotNil(t, snaps[0].CostBasisPerUnit)
	assert.InDelta(t, 100.0, *snaps[0].CostBasisPerUnit, 1e-9)

	assert.Equal(t, 15.0, snaps[1].Quantity)
	assert.InDelta(t, 133.3333333333, *snaps[1].CostBasisPerUnit, 1e-6)

	assert.Equal(t, 3.0, snaps[2].Quantity)
	assert.InDelta(t, 133.3333333333, *snaps[2].CostBasisPerUnit, 1e-6)

	assert.Equal(t, 8.0, snaps[3].Quantity)
	assert.InDelta(t, 90.0, *snaps[3].CostBasisPerUnit, 1e-9)
}

func TestRecalculateIdempotent(t *testing.T) {
	storage := newMemStorage()
	seedPosition(storage, "pos1")
	svc := newTestService(storage, nil)

	addEvent(t, svc, models.CandidateEvent{PositionID: "pos1", Type: models.EventTypeBuy, Date: "2024-01-10", Quantity: 10, UnitValue: 100})
	addEvent(t, svc, models.CandidateEvent{PositionID: "pos1", Type: models.EventTypeSell, Date: "2024-02-01", Quantity: 4, UnitValue: 110})
	addEvent(t, svc, models.CandidateEvent{PositionID: "pos1", Type: models.EventTypeUpdate, Date: "2024-03-01", Quantity: 5, UnitValue: 95})

	before := snapshotsByDate(t, storage, "pos1")
	require.Len(t, before, 3)
	beforeIDs := make([]string, len(before))
	for i, s := range before {
		beforeIDs[i] = s.ID
	}

	// Rerunning both segments rewrites in place; nothing new appears.
	res, err := svc.Recalculate(context.Background(), "pos1", "2024-01-10", models.RecalcOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", res.BoundaryDate)
	assert.Equal(t, 2, res.EventsProcessed)

	res, err = svc.Recalculate(context.Background(), "pos1", "2024-03-01", models.RecalcOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.EventsProcessed)
	assert.Equal(t, 5.0, res.FinalQuantity)
	assert.InDelta(t, 95.0, res.FinalCostBasis, 1e-9)

	after := snapshotsByDate(t, storage, "pos1")
	require.Len(t, after, 3)
	for i, s := range after {
		assert.Equal(t, beforeIDs[i], s.ID)
		assert.Equal(t, before[i].Quantity, s.Quantity)
		assert.Equal(t, before[i].UnitValue, s.UnitValue)
	}
}

func TestRecalculateStopsAtUpdateBoundary(t *testing.T) {
	storage := newMemStorage()
	seedPosition(storage, "pos1")
	svc := newTestService(storage, nil)

	addEvent(t, svc, models.CandidateEvent{PositionID: "pos1", Type: models.EventTypeBuy, Date: "2024-01-10", Quantity: 10, UnitValue: 100})
	addEvent(t, svc, models.CandidateEvent{PositionID: "pos1", Type: models.EventTypeUpdate, Date: "2024-03-01", Quantity: 8, UnitValue: 90})
	addEvent(t, svc, models.CandidateEvent{PositionID: "pos1", Type: models.EventTypeBuy, Date: "2024-03-15", Quantity: 2, UnitValue: 120})

	snaps := snapshotsByDate(t, storage, "pos1")
	require.Len(t, snaps, 3)
	updateSnap := snaps[1]
	require.InDelta(t, 90.0, *updateSnap.CostBasisPerUnit, 1e-9)

	// Tamper with the segment past the boundary, then recalculate the
	// first segment: the later snapshots must stay untouched.
	updateSnap.UnitValue = 999

	res, err := svc.Recalculate(context.Background(), "pos1", "2024-01-10", models.RecalcOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", res.BoundaryDate)
	assert.Equal(t, 1, res.EventsProcessed)

	snaps = snapshotsByDate(t, storage, "pos1")
	assert.Equal(t, 999.0, snaps[1].UnitValue)
	assert.Equal(t, 10.0, res.FinalQuantity)
}

func TestRecalculateUsesMarketPrices(t *testing.T) {
	storage := newMemStorage()
	p := seedPosition(storage, "pos1")
	p.Symbol = "VAS.AX"
	prices := &stubPriceProvider{prices: models.PriceMap{
		models.PriceKey("VAS.AX", "2024-01-10"): 87.5,
	}}
	svc := newTestService(storage, prices)

	addEvent(t, svc, models.CandidateEvent{PositionID: "pos1", Type: models.EventTypeBuy, Date: "2024-01-10", Quantity: 10, UnitValue: 85})
	// No market price for this date: the event's own unit value is used.
	addEvent(t, svc, models.CandidateEvent{PositionID: "pos1", Type: models.EventTypeBuy, Date: "2024-02-10", Quantity: 5, UnitValue: 88})

	snaps := snapshotsByDate(t, storage, "pos1")
	require.Len(t, snaps, 2)
	assert.Equal(t, 87.5, snaps[0].UnitValue)
	assert.Equal(t, 88.0, snaps[1].UnitValue)
}

func TestRecalculateBatchesPriceLookups(t *testing.T) {
	storage := newMemStorage()
	p := seedPosition(storage, "pos1")
	p.Symbol = "VAS.AX"
	prices := &stubPriceProvider{prices: models.PriceMap{
		models.PriceKey("VAS.AX", "2024-01-10"): 87.5,
		models.PriceKey("VAS.AX", "2024-02-10"): 91.0,
	}}
	created := mustTime(t, "2024-01-10")
	seedEvent(storage, "ev1", "pos1", models.EventTypeBuy, "2024-01-10", 10, 85, created)
	seedEvent(storage, "ev2", "pos1", models.EventTypeBuy, "2024-02-10", 5, 88, created.AddDate(0, 1, 0))
	svc := newTestService(storage, prices)

	res, err := svc.Recalculate(context.Background(), "pos1", "2024-01-10", models.RecalcOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.EventsProcessed)
	assert.Equal(t, 0, res.PriceFallbacks)
	// One batched provider call covers the whole window.
	assert.Equal(t, 1, prices.batchCalls)
}

func TestRecalculateFallbackChain(t *testing.T) {
	storage := newMemStorage()
	p := seedPosition(storage, "pos1")
	p.Domain = "example.com"
	created := mustTime(t, "2024-01-10")
	// No market price, no event price, no prior basis: floor of 1.
	seedEvent(storage, "ev1", "pos1", models.EventTypeUpdate, "2024-01-10", 3, 0, created)
	svc := newTestService(storage, &stubPriceProvider{prices: models.PriceMap{}})

	res, err := svc.Recalculate(context.Background(), "pos1", "2024-01-10", models.RecalcOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.PriceFallbacks)

	snaps := snapshotsByDate(t, storage, "pos1")
	require.Len(t, snaps, 1)
	assert.Equal(t, 1.0, snaps[0].UnitValue)
}

func TestRecalculateOverrideBasis(t *testing.T) {
	storage := newMemStorage()
	seedPosition(storage, "pos1")
	svc := newTestService(storage, nil)

	override := 75.0
	event, result, err := svc.AddEvent(context.Background(), models.CandidateEvent{
		PositionID: "pos1", Type: models.EventTypeUpdate, Date: "2024-01-10",
		Quantity: 8, UnitValue: 90, OverrideCostBasisPerUnit: &override,
	})
	require.NoError(t, err)
	require.True(t, result.Valid)

	snaps := snapshotsByDate(t, storage, "pos1")
	require.Len(t, snaps, 1)
	assert.Equal(t, event.ID, snaps[0].EventID)
	require.NotNil(t, snaps[0].CostBasisPerUnit)
	assert.InDelta(t, 75.0, *snaps[0].CostBasisPerUnit, 1e-9)
	// The snapshot's displayed unit value still comes from the event.
	assert.Equal(t, 90.0, snaps[0].UnitValue)
}

func TestRecalculateExcludedEventDropsFromReplay(t *testing.T) {
	storage := newMemStorage()
	seedPosition(storage, "pos1")
	svc := newTestService(storage, nil)

	buy1 := addEvent(t, svc, models.CandidateEvent{PositionID: "pos1", Type: models.EventTypeBuy, Date: "2024-01-10", Quantity: 10, UnitValue: 100})
	addEvent(t, svc, models.CandidateEvent{PositionID: "pos1", Type: models.EventTypeBuy, Date: "2024-02-01", Quantity: 5, UnitValue: 120})

	res, err := svc.Recalculate(context.Background(), "pos1", "2024-01-10", models.RecalcOptions{
		ExcludeEventID: buy1.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.EventsProcessed)
	assert.Equal(t, 5.0, res.FinalQuantity)
	assert.InDelta(t, 120.0, res.FinalCostBasis, 1e-9)

	// Only the surviving event's snapshot is rewritten; disposing of the
	// excluded event's row is the mutation's own job.
	snaps := snapshotsByDate(t, storage, "pos1")
	require.Len(t, snaps, 2)
	assert.Equal(t, 5.0, snaps[1].Quantity)
}

func TestRecalculateInjectedEventAdvancesStateOnly(t *testing.T) {
	storage := newMemStorage()
	seedPosition(storage, "pos1")
	svc := newTestService(storage, nil)

	addEvent(t, svc, models.CandidateEvent{PositionID: "pos1", Type: models.EventTypeBuy, Date: "2024-01-10", Quantity: 10, UnitValue: 100})

	pending := &models.LedgerEvent{
		PositionID: "pos1", UserID: "default", Type: models.EventTypeBuy,
		Date: "2024-02-01", Quantity: 4, UnitValue: 150, CreatedAt: mustTime(t, "2024-02-01"),
	}
	res, err := svc.Recalculate(context.Background(), "pos1", "2024-01-10", models.RecalcOptions{
		InjectEvent: pending,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.EventsProcessed)
	assert.Equal(t, 14.0, res.FinalQuantity)
	assert.InDelta(t, 1600.0/14.0, res.FinalCostBasis, 1e-9)

	// An injected event has no identity yet, so it gets no snapshot.
	assert.Equal(t, 1, res.SnapshotsWritten)
	snaps := snapshotsByDate(t, storage, "pos1")
	require.Len(t, snaps, 1)
}

func TestRecalculateUnknownFromDate(t *testing.T) {
	storage := newMemStorage()
	seedPosition(storage, "pos1")
	svc := newTestService(storage, nil)

	_, err := svc.Recalculate(context.Background(), "pos1", "not-a-date", models.RecalcOptions{})
	assert.Error(t, err)
}

func TestRecalculateMissingPosition(t *testing.T) {
	storage := newMemStorage()
	svc := newTestService(storage, nil)

	_, err := svc.Recalculate(context.Background(), "ghost", "2024-01-10", models.RecalcOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPositionNotFound)
}
