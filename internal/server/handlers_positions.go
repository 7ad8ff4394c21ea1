package server

import (
	"errors"
	"net/http"

	"github.com/tally-app/tally/internal/models"
	"github.com/tally-app/tally/internal/services/position"
)

// handlePositions handles /api/positions — list and create.
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		includeArchived := r.URL.Query().Get("include_archived") == "true"
		positions, err := s.app.PositionService.List(r.Context(), includeArchived)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to list positions")
			WriteError(w, http.StatusInternalServerError, "failed to list positions")
			return
		}
		if positions == nil {
			positions = []*models.Position{}
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"positions": positions})

	case http.MethodPost:
		var req models.Position
		if !DecodeJSON(w, r, &req) {
			return
		}
		created, err := s.app.PositionService.Create(r.Context(), &req)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		WriteJSON(w, http.StatusCreated, created)

	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

// handlePosition handles /api/positions/{id} — get, update, delete.
func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request, positionID string) {
	switch r.Method {
	case http.MethodGet:
		p, err := s.app.PositionService.Get(r.Context(), positionID)
		if err != nil {
			s.writePositionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, p)

	case http.MethodPut:
		var req models.Position
		if !DecodeJSON(w, r, &req) {
			return
		}
		req.ID = positionID
		updated, err := s.app.PositionService.Update(r.Context(), &req)
		if err != nil {
			if errors.Is(err, position.ErrNotFound) {
				WriteError(w, http.StatusNotFound, "position not found")
				return
			}
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, updated)

	case http.MethodDelete:
		if err := s.app.PositionService.Delete(r.Context(), positionID); err != nil {
			s.writePositionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// handlePositionArchive handles POST /api/positions/{id}/archive.
func (s *Server) handlePositionArchive(w http.ResponseWriter, r *http.Request, positionID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := s.app.PositionService.Archive(r.Context(), positionID); err != nil {
		s.writePositionError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

func (s *Server) writePositionError(w http.ResponseWriter, err error) {
	if errors.Is(err, position.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "position not found")
		return
	}
	s.logger.Error().Err(err).Msg("Position operation failed")
	WriteError(w, http.StatusInternalServerError, err.Error())
}
