package valuation

import "github.com/tally-app/tally/internal/models"

// RunningState is the (quantity, cost basis per unit) pair threaded through
// a ledger replay. The zero value is the state at a position's start.
type RunningState struct {
	Quantity         float64
	CostBasisPerUnit float64
}

// Apply returns the running state after one ledger event.
//
//   - buy: quantity adds; basis becomes the weighted average of the held
//     basis and the event price (or the event price on a fresh position).
//   - sell: quantity subtracts, floored at zero; basis unchanged. Oversells
//     are rejected upstream by the validator — the floor only keeps a replay
//     over inconsistent history from going negative.
//   - update: absolute reset to the event's quantity; basis resets to
//     overrideCostBasis when supplied, else the event's unit value.
func Apply(state RunningState, event *models.LedgerEvent, overrideCostBasis *float64) RunningState {
	switch event.Type {
	case models.EventTypeBuy:
		next := RunningState{Quantity: state.Quantity + event.Quantity}
		if state.Quantity > 0 {
			next.CostBasisPerUnit = (state.Quantity*state.CostBasisPerUnit + event.Quantity*event.UnitValue) / next.Quantity
		} else {
			next.CostBasisPerUnit = event.UnitValue
		}
		return next

	case models.EventTypeSell:
		quantity := state.Quantity - event.Quantity
		if quantity < 0 {
			quantity = 0
		}
		return RunningState{Quantity: quantity, CostBasisPerUnit: state.CostBasisPerUnit}

	case models.EventTypeUpdate:
		basis := event.UnitValue
		if overrideCostBasis != nil {
			basis = *overrideCostBasis
		}
		return RunningState{Quantity: event.Quantity, CostBasisPerUnit: basis}

	default:
		return state
	}
}

// Replay applies events (already in timeline order) to a seed state and
// returns the final state.
func Replay(seed RunningState, events []*models.LedgerEvent) RunningState {
	state := seed
	for _, e := range events {
		state = Apply(state, e, nil)
	}
	return state
}
