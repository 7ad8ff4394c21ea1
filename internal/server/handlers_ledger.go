package server

import (
	"errors"
	"net/http"

	"github.com/tally-app/tally/internal/models"
	"github.com/tally-app/tally/internal/services/ledger"
)

// writeValidationFailure renders a rejected mutation as 422 with the typed
// code so clients can address the offending row.
func writeValidationFailure(w http.ResponseWriter, result *models.ValidationResult) {
	WriteErrorWithCode(w, http.StatusUnprocessableEntity, result.Message, string(result.Code))
}

func (s *Server) writeLedgerError(w http.ResponseWriter, err error) {
	if errors.Is(err, ledger.ErrPositionNotFound) {
		WriteError(w, http.StatusNotFound, "position not found")
		return
	}
	if errors.Is(err, ledger.ErrEventNotFound) {
		WriteError(w, http.StatusNotFound, "event not found")
		return
	}
	s.logger.Error().Err(err).Msg("Ledger operation failed")
	WriteError(w, http.StatusInternalServerError, err.Error())
}

// handleEvents handles /api/positions/{id}/events — list and add.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, positionID string) {
	switch r.Method {
	case http.MethodGet:
		fromDate := r.URL.Query().Get("from")
		toDate := r.URL.Query().Get("to")
		events, err := s.app.LedgerService.ListEvents(r.Context(), positionID, fromDate, toDate)
		if err != nil {
			s.writeLedgerError(w, err)
			return
		}
		if events == nil {
			events = []*models.LedgerEvent{}
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"events": events})

	case http.MethodPost:
		var candidate models.CandidateEvent
		if !DecodeJSON(w, r, &candidate) {
			return
		}
		candidate.PositionID = positionID

		event, result, err := s.app.LedgerService.AddEvent(r.Context(), candidate)
		if err != nil {
			s.writeLedgerError(w, err)
			return
		}
		if !result.Valid {
			writeValidationFailure(w, result)
			return
		}
		WriteJSON(w, http.StatusCreated, event)

	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleEvent handles /api/positions/{id}/events/{eventID} — edit and delete.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request, positionID, eventID string) {
	switch r.Method {
	case http.MethodPut:
		var candidate models.CandidateEvent
		if !DecodeJSON(w, r, &candidate) {
			return
		}
		candidate.PositionID = positionID

		event, result, err := s.app.LedgerService.EditEvent(r.Context(), eventID, candidate)
		if err != nil {
			s.writeLedgerError(w, err)
			return
		}
		if !result.Valid {
			writeValidationFailure(w, result)
			return
		}
		WriteJSON(w, http.StatusOK, event)

	case http.MethodDelete:
		if err := s.app.LedgerService.DeleteEvent(r.Context(), eventID); err != nil {
			s.writeLedgerError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		RequireMethod(w, r, http.MethodPut, http.MethodDelete)
	}
}

// handleRecalculate handles POST /api/positions/{id}/recalculate.
func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request, positionID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		FromDate string `json:"from_date"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.FromDate == "" {
		WriteError(w, http.StatusBadRequest, "from_date is required")
		return
	}

	result, err := s.app.LedgerService.Recalculate(r.Context(), positionID, req.FromDate, models.RecalcOptions{})
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// handleLedgerImport handles POST /api/ledger/import — batch event import.
func (s *Server) handleLedgerImport(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Events []models.CandidateEvent `json:"events"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if len(req.Events) == 0 {
		WriteError(w, http.StatusBadRequest, "events is required")
		return
	}

	result, validation, err := s.app.LedgerService.ImportEvents(r.Context(), req.Events)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	if !validation.Valid {
		writeValidationFailure(w, validation)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// handleRefreshPrices handles POST /api/ledger/refresh-prices.
func (s *Server) handleRefreshPrices(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	written, err := s.app.LedgerService.RefreshPrices(r.Context())
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"snapshots_written": written})
}
