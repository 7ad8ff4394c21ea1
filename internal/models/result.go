package models

import "fmt"

// ErrorCode classifies engine failures surfaced to callers. Validation
// failures travel as typed results so handlers can render them directly;
// they are never raised as Go errors.
type ErrorCode string

const (
	ErrCodeInvalidQuantity      ErrorCode = "INVALID_QUANTITY"
	ErrCodeInsufficientQuantity ErrorCode = "INSUFFICIENT_QUANTITY"
	ErrCodePositionNotFound     ErrorCode = "POSITION_NOT_FOUND"
	ErrCodePriceUnavailable     ErrorCode = "PRICE_UNAVAILABLE"
)

// ValidationResult is the typed outcome of a timeline validation.
type ValidationResult struct {
	Valid   bool      `json:"valid"`
	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
}

// ValidationOK returns a passing result.
func ValidationOK() *ValidationResult {
	return &ValidationResult{Valid: true}
}

// ValidationFail returns a failing result with a formatted message.
func ValidationFail(code ErrorCode, format string, args ...interface{}) *ValidationResult {
	return &ValidationResult{Valid: false, Code: code, Message: fmt.Sprintf(format, args...)}
}

// RecalcOptions adjusts a single recalculation call.
type RecalcOptions struct {
	// ExcludeEventID drops one persisted event from the replay window,
	// used while its edited or deleted version is in flight.
	ExcludeEventID string

	// InjectEvent adds one not-yet-persisted event to the window, used to
	// apply a new record while it is being committed.
	InjectEvent *LedgerEvent

	// OverrideCostBasisPerUnit forces the basis the update event identified
	// by OverrideEventID resets to, instead of its own unit value.
	OverrideCostBasisPerUnit *float64
	OverrideEventID          string
}

// RecalcResult reports what one recalculation call touched.
type RecalcResult struct {
	PositionID       string  `json:"position_id"`
	FromDate         string  `json:"from_date"`
	BoundaryDate     string  `json:"boundary_date,omitempty"`
	EventsProcessed  int     `json:"events_processed"`
	SnapshotsWritten int     `json:"snapshots_written"`
	PriceFallbacks   int     `json:"price_fallbacks"`
	FinalQuantity    float64 `json:"final_quantity"`
	FinalCostBasis   float64 `json:"final_cost_basis"`
}

// ImportResult reports a settled ledger import.
type ImportResult struct {
	EventsImported    int      `json:"events_imported"`
	PositionsRecalced []string `json:"positions_recalculated"`
	SnapshotsWritten  int      `json:"snapshots_written"`
}
