package interfaces

import (
	"context"

	"github.com/tally-app/tally/internal/models"
)

// PositionService manages tracked positions.
type PositionService interface {
	Create(ctx context.Context, position *models.Position) (*models.Position, error)
	Get(ctx context.Context, positionID string) (*models.Position, error)
	List(ctx context.Context, includeArchived bool) ([]*models.Position, error)
	Update(ctx context.Context, position *models.Position) (*models.Position, error)
	Archive(ctx context.Context, positionID string) error
	// Delete hard-deletes the position together with its full ledger and
	// snapshot history.
	Delete(ctx context.Context, positionID string) error
}

// LedgerService gates all ledger mutations through timeline validation and
// keeps snapshots consistent via recalculation.
type LedgerService interface {
	// AddEvent validates and persists one new event, then recalculates the
	// affected window. A non-nil ValidationResult with Valid=false means
	// the mutation was rejected; error is reserved for I/O failures.
	AddEvent(ctx context.Context, candidate models.CandidateEvent) (*models.LedgerEvent, *models.ValidationResult, error)

	// EditEvent replaces an existing event (delete + recreate) under a
	// single validation pass.
	EditEvent(ctx context.Context, eventID string, candidate models.CandidateEvent) (*models.LedgerEvent, *models.ValidationResult, error)

	DeleteEvent(ctx context.Context, eventID string) error
	ListEvents(ctx context.Context, positionID, fromDate, toDate string) ([]*models.LedgerEvent, error)

	// ImportEvents validates and persists a batch of candidate events, all
	// or nothing per batch.
	ImportEvents(ctx context.Context, candidates []models.CandidateEvent) (*models.ImportResult, *models.ValidationResult, error)

	// Recalculate rebuilds snapshots for one boundary-delimited segment of
	// a position's ledger, starting at fromDate.
	Recalculate(ctx context.Context, positionID, fromDate string, opts models.RecalcOptions) (*models.RecalcResult, error)

	// RefreshPrices writes one price-only snapshot per market-linked
	// position at today's date, so valuations track fresh market data.
	// Returns the number of snapshots written.
	RefreshPrices(ctx context.Context) (int, error)
}

// ValuationService aggregates snapshots, prices, and FX rates into
// valuations and report series.
type ValuationService interface {
	CurrentValuations(ctx context.Context) ([]*models.PositionValuation, error)
	NetWorthSeries(ctx context.Context, fromDate, toDate string, intervalDays int) (*models.NetWorthSeries, error)
	Allocation(ctx context.Context) (*models.Allocation, error)
	Performance(ctx context.Context, fromDate, toDate string, intervalDays int) ([]models.PerformancePoint, error)
	ProjectedIncome(ctx context.Context) (*models.ProjectedIncome, error)
	NetWorthChartPNG(ctx context.Context, fromDate, toDate string, width, height int) ([]byte, error)
}
