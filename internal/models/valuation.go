package models

import "time"

// PositionValuation is one position's current valuation with unrealized P/L.
// Computed on response, not persisted.
type PositionValuation struct {
	Position *Position `json:"position"`

	Quantity    float64 `json:"quantity"`
	UnitValue   float64 `json:"unit_value"`
	NativeValue float64 `json:"native_value"` // in position currency
	Value       float64 `json:"value"`        // in display currency

	CostBasisPerUnit float64 `json:"cost_basis_per_unit"`
	TotalCostBasis   float64 `json:"total_cost_basis"`
	ProfitLoss       float64 `json:"profit_loss"`
	ProfitLossPct    float64 `json:"profit_loss_pct"`

	// AfterTaxProfitLoss is the gain net of the position's capital gains
	// tax rate; nil when the position carries no rate.
	AfterTaxProfitLoss *float64 `json:"after_tax_profit_loss,omitempty"`
}

// NetWorthPoint is one point in the net-worth time series.
type NetWorthPoint struct {
	Date        string  `json:"date"`
	Assets      float64 `json:"assets"`
	Liabilities float64 `json:"liabilities"`
	NetWorth    float64 `json:"net_worth"`
}

// NetWorthSeries is the full series plus its display currency.
type NetWorthSeries struct {
	Currency   string          `json:"currency"`
	Points     []NetWorthPoint `json:"points"`
	ComputedAt time.Time       `json:"computed_at"`
}

// AllocationSlice is one category's share of total asset value.
type AllocationSlice struct {
	Category  string   `json:"category"`
	Value     float64  `json:"value"`
	WeightPct float64  `json:"weight_pct"`
	Positions []string `json:"positions"`
}

// Allocation is the category breakdown of current asset value.
type Allocation struct {
	Currency   string            `json:"currency"`
	TotalValue float64           `json:"total_value"`
	Slices     []AllocationSlice `json:"slices"`
}

// PerformancePoint is one point in the value-versus-cost series used for
// performance reporting.
type PerformancePoint struct {
	Date           string  `json:"date"`
	Value          float64 `json:"value"`
	TotalCostBasis float64 `json:"total_cost_basis"`
	ProfitLoss     float64 `json:"profit_loss"`
	ProfitLossPct  float64 `json:"profit_loss_pct"`
}

// ProjectedIncomeItem is one position's estimated annual income.
type ProjectedIncomeItem struct {
	PositionID     string  `json:"position_id"`
	PositionName   string  `json:"position_name"`
	Value          float64 `json:"value"`
	AnnualYieldPct float64 `json:"annual_yield_pct"`
	AnnualIncome   float64 `json:"annual_income"`
}

// ProjectedIncome aggregates estimated annual income across positions that
// carry a yield, converted to the display currency.
type ProjectedIncome struct {
	Currency           string                `json:"currency"`
	AnnualTotal        float64               `json:"annual_total"`
	MonthlyTotal       float64               `json:"monthly_total"`
	Items              []ProjectedIncomeItem `json:"items"`
	PositionsWithYield int                   `json:"positions_with_yield"`
}
