package models

import (
	"fmt"
	"math"
	"time"
)

// EventType categorizes a ledger event.
type EventType string

const (
	EventTypeBuy    EventType = "buy"
	EventTypeSell   EventType = "sell"
	EventTypeUpdate EventType = "update" // absolute reset of quantity and basis
)

// validEventTypes lists all accepted ledger event types.
var validEventTypes = map[EventType]bool{
	EventTypeBuy:    true,
	EventTypeSell:   true,
	EventTypeUpdate: true,
}

// ValidEventType returns true if t is a valid ledger event type.
func ValidEventType(t EventType) bool {
	return validEventTypes[t]
}

// LedgerEvent is one buy, sell, or update entry in a position's history.
// Date is date-only ("YYYY-MM-DD"); CreatedAt breaks ties between same-day
// events. Events are totally ordered by (Date, CreatedAt, ID).
type LedgerEvent struct {
	ID          string    `json:"id"`
	PositionID  string    `json:"position_id"`
	UserID      string    `json:"user_id"`
	Type        EventType `json:"type"`
	Date        string    `json:"date"`
	Quantity    float64   `json:"quantity"`
	UnitValue   float64   `json:"unit_value"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CheckQuantity validates the structural quantity constraint for the event's
// type: buy/sell require a finite quantity > 0, update requires >= 0.
func (e *LedgerEvent) CheckQuantity() error {
	if math.IsNaN(e.Quantity) || math.IsInf(e.Quantity, 0) {
		return fmt.Errorf("quantity must be a finite number")
	}
	switch e.Type {
	case EventTypeBuy, EventTypeSell:
		if e.Quantity <= 0 {
			return fmt.Errorf("%s quantity must be greater than zero", e.Type)
		}
	case EventTypeUpdate:
		if e.Quantity < 0 {
			return fmt.Errorf("update quantity must not be negative")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// CandidateEvent is one row of a proposed ledger mutation (manual entry,
// edit, or import) before it is settled. SourceLabel identifies the row in
// validation messages (e.g. "row 12" for an import).
type CandidateEvent struct {
	PositionID  string    `json:"position_id"`
	Type        EventType `json:"type"`
	Date        string    `json:"date"`
	Quantity    float64   `json:"quantity"`
	UnitValue   float64   `json:"unit_value"`
	Description string    `json:"description,omitempty"`
	SourceLabel string    `json:"source_label,omitempty"`

	// OverrideCostBasisPerUnit optionally forces the cost basis an update
	// event resets to, instead of its own unit value.
	OverrideCostBasisPerUnit *float64 `json:"override_cost_basis_per_unit,omitempty"`
}

// Event materializes the candidate as an unsaved LedgerEvent. The zero
// CreatedAt marks it as not yet persisted, which sorts it after persisted
// same-day events.
func (c *CandidateEvent) Event() *LedgerEvent {
	return &LedgerEvent{
		PositionID:  c.PositionID,
		Type:        c.Type,
		Date:        c.Date,
		Quantity:    c.Quantity,
		UnitValue:   c.UnitValue,
		Description: c.Description,
	}
}

// Label returns the source label, or a 1-based fallback for messages.
func (c *CandidateEvent) Label(index int) string {
	if c.SourceLabel != "" {
		return c.SourceLabel
	}
	return fmt.Sprintf("entry %d", index+1)
}
