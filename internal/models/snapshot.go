package models

import "time"

// Snapshot is a derived, cached valuation of one position at one date.
// Exactly zero or one snapshot exists per (position, ledger event) pair;
// EventID is empty for price-only refresh snapshots.
//
// CostBasisPerUnit is nullable: nil means "inherit from the most recent
// prior snapshot with an explicit value". It is deliberately not a zero
// sentinel, so an explicit zero basis stays distinguishable from unset.
type Snapshot struct {
	ID         string    `json:"id"`
	PositionID string    `json:"position_id"`
	UserID     string    `json:"user_id"`
	Date       string    `json:"date"`
	Quantity   float64   `json:"quantity"`
	UnitValue  float64   `json:"unit_value"`
	EventID    string    `json:"event_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	CostBasisPerUnit *float64 `json:"cost_basis_per_unit"`
}

// Value returns quantity × unit value.
func (s *Snapshot) Value() float64 {
	return s.Quantity * s.UnitValue
}

// HasCostBasis returns true when the snapshot carries an explicit basis.
func (s *Snapshot) HasCostBasis() bool {
	return s.CostBasisPerUnit != nil
}
