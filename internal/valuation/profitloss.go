package valuation

import "github.com/tally-app/tally/internal/models"

// SelectBasisSnapshot picks the snapshot that prices unrealized P/L for a
// position. Preference order over the history, newest first:
//
//  1. linked to a ledger event and carrying an explicit cost basis,
//  2. carrying an explicit cost basis (event-linked or not),
//  3. any snapshot, falling back to its unit value as the basis.
//
// A nil cost basis means "inherit from an earlier snapshot" and is skipped,
// not treated as zero. Returns nil when the history is empty.
func SelectBasisSnapshot(snapshots []*models.Snapshot) (*models.Snapshot, float64) {
	if len(snapshots) == 0 {
		return nil, 0
	}

	ordered := make([]*models.Snapshot, len(snapshots))
	copy(ordered, snapshots)
	SortSnapshotsDesc(ordered)

	for _, s := range ordered {
		if s.EventID != "" && s.HasCostBasis() {
			return s, *s.CostBasisPerUnit
		}
	}
	for _, s := range ordered {
		if s.HasCostBasis() {
			return s, *s.CostBasisPerUnit
		}
	}
	latest := ordered[0]
	return latest, latest.UnitValue
}

// Project fills cost basis and unrealized profit/loss on each valuation
// from its snapshot history. Positions with no snapshots get zero P/L.
// Values and bases are in the position's native currency. Pure, no I/O.
func Project(valuations []*models.PositionValuation, snapshotsByPosition map[string][]*models.Snapshot) []*models.PositionValuation {
	for _, v := range valuations {
		snapshots := snapshotsByPosition[v.Position.ID]
		if len(snapshots) == 0 {
			v.CostBasisPerUnit = 0
			v.TotalCostBasis = 0
			v.ProfitLoss = 0
			v.ProfitLossPct = 0
		} else {
			_, basis := SelectBasisSnapshot(snapshots)
			v.CostBasisPerUnit = basis
			v.TotalCostBasis = basis * v.Quantity
			v.ProfitLoss = v.NativeValue - v.TotalCostBasis
			if v.TotalCostBasis > 0 {
				v.ProfitLossPct = (v.ProfitLoss / v.TotalCostBasis) * 100
			} else {
				v.ProfitLossPct = 0
			}
		}

		// Only gains are taxed; a loss passes through untouched.
		if rate := v.Position.CapitalGainsTaxRate; rate != nil {
			after := v.ProfitLoss
			if after > 0 {
				after = v.ProfitLoss * (1 - *rate)
			}
			v.AfterTaxProfitLoss = &after
		}
	}
	return valuations
}
