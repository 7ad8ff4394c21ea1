package server

import (
	"net/http"
)

// handleValuations handles GET /api/valuations — current per-position values.
func (s *Server) handleValuations(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	valuations, err := s.app.ValuationService.CurrentValuations(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to compute valuations")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"valuations": valuations})
}

// handleNetWorth handles GET /api/networth — the net-worth time series.
func (s *Server) handleNetWorth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	fromDate := r.URL.Query().Get("from")
	toDate := r.URL.Query().Get("to")
	interval := queryInt(r, "interval", 0)

	series, err := s.app.ValuationService.NetWorthSeries(r.Context(), fromDate, toDate, interval)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, series)
}

// handleNetWorthChart handles GET /api/networth/chart — PNG chart render.
func (s *Server) handleNetWorthChart(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	fromDate := r.URL.Query().Get("from")
	toDate := r.URL.Query().Get("to")
	width := queryInt(r, "width", 0)
	height := queryInt(r, "height", 0)

	png, err := s.app.ValuationService.NetWorthChartPNG(r.Context(), fromDate, toDate, width, height)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// handleAllocation handles GET /api/allocation — category breakdown.
func (s *Server) handleAllocation(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	allocation, err := s.app.ValuationService.Allocation(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to compute allocation")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, allocation)
}

// handlePerformance handles GET /api/performance — value vs cost series.
func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	fromDate := r.URL.Query().Get("from")
	toDate := r.URL.Query().Get("to")
	interval := queryInt(r, "interval", 0)

	points, err := s.app.ValuationService.Performance(r.Context(), fromDate, toDate, interval)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"points": points})
}

// handleProjectedIncome handles GET /api/projected-income.
func (s *Server) handleProjectedIncome(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	income, err := s.app.ValuationService.ProjectedIncome(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to compute projected income")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, income)
}
