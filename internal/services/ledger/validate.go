package ledger

import (
	"context"
	"fmt"

	"github.com/tally-app/tally/internal/common"
	"github.com/tally-app/tally/internal/models"
	"github.com/tally-app/tally/internal/valuation"
)

// sellEpsilon tolerates floating point noise when comparing a sell quantity
// against the running quantity.
const sellEpsilon = 1e-9

// ValidateWindow replays a set of proposed events for one position against
// the persisted ledger and rejects the whole batch if any sell would exceed
// the quantity held at that point in the timeline, or if any quantity is
// structurally invalid for its event type.
//
// replaceEventIDs names persisted events the candidates supersede (edits,
// re-imports); those events and their snapshots are left out of the replay
// so the window isn't double counted. Read-only: the single store write
// gate is the caller's.
func (s *Service) ValidateWindow(ctx context.Context, positionID string, candidates []models.CandidateEvent, replaceEventIDs []string) (*models.ValidationResult, error) {
	userID := common.ResolveUserID(ctx)

	if len(candidates) == 0 {
		return models.ValidationOK(), nil
	}

	// Structural checks first: fail on the offending row before any I/O.
	firstDate := ""
	for i := range candidates {
		c := &candidates[i]
		if err := checkDate(c.Date); err != nil {
			return models.ValidationFail(models.ErrCodeInvalidQuantity, "%s: %v", c.Label(i), err), nil
		}
		if err := c.Event().CheckQuantity(); err != nil {
			return models.ValidationFail(models.ErrCodeInvalidQuantity, "%s: %v", c.Label(i), err), nil
		}
		if firstDate == "" || c.Date < firstDate {
			firstDate = c.Date
		}
	}

	// A superseded event may sit earlier than every candidate; its vacated
	// date still anchors the window, or a sell that depended on it would
	// escape the replay.
	for _, id := range replaceEventIDs {
		old, err := s.storage.LedgerStore().GetEvent(ctx, userID, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load replaced event %s: %w", id, err)
		}
		if old.Date < firstDate {
			firstDate = old.Date
		}
	}

	// Existing persisted history from the window start onward takes part in
	// the replay; superseded events drop out.
	replaced := make(map[string]bool, len(replaceEventIDs))
	for _, id := range replaceEventIDs {
		replaced[id] = true
	}

	existing, err := s.storage.LedgerStore().GetEvents(ctx, userID, positionID, firstDate, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger window: %w", err)
	}

	type windowEntry struct {
		event     *models.LedgerEvent
		candidate *models.CandidateEvent
		label     string
	}

	var window []windowEntry
	replayIDs := make([]string, 0, len(existing))
	for _, e := range existing {
		if replaced[e.ID] {
			continue
		}
		window = append(window, windowEntry{event: e})
		replayIDs = append(replayIDs, e.ID)
	}
	for i := range candidates {
		c := &candidates[i]
		window = append(window, windowEntry{event: c.Event(), candidate: c, label: c.Label(i)})
	}

	// Base running quantity: the latest snapshot at or before the window
	// start, excluding snapshots backed by events we are about to replay
	// (same-day events at the window start would otherwise count twice).
	excludes := append(replayIDs, replaceEventIDs...)
	base, err := s.storage.SnapshotStore().GetAtOrBefore(ctx, userID, positionID, firstDate, excludes)
	if err != nil {
		return nil, fmt.Errorf("failed to load base snapshot: %w", err)
	}

	state := valuation.RunningState{}
	if base != nil {
		state.Quantity = base.Quantity
		if base.CostBasisPerUnit != nil {
			state.CostBasisPerUnit = *base.CostBasisPerUnit
		}
	}

	events := make([]*models.LedgerEvent, len(window))
	byEvent := make(map[*models.LedgerEvent]windowEntry, len(window))
	for i, entry := range window {
		events[i] = entry.event
		byEvent[entry.event] = entry
	}
	valuation.SortEvents(events)

	for _, e := range events {
		if e.Type == models.EventTypeSell && e.Quantity-state.Quantity > sellEpsilon {
			entry := byEvent[e]
			where := entry.label
			if where == "" {
				where = fmt.Sprintf("event %s", e.ID)
			}
			return models.ValidationFail(models.ErrCodeInsufficientQuantity,
				"%s: cannot sell %g on %s, only %g available", where, e.Quantity, e.Date, state.Quantity), nil
		}

		var override *float64
		if entry := byEvent[e]; entry.candidate != nil {
			override = entry.candidate.OverrideCostBasisPerUnit
		}
		state = valuation.Apply(state, e, override)
	}

	return models.ValidationOK(), nil
}
