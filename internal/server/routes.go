package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/tally-app/tally/internal/common"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/shutdown", s.handleShutdown)

	// Auth
	mux.HandleFunc("/api/auth/register", s.handleAuthRegister)
	mux.HandleFunc("/api/auth/login", s.handleAuthLogin)
	mux.HandleFunc("/api/auth/me", s.handleAuthMe)

	// Positions and their ledgers
	mux.HandleFunc("/api/positions/", s.routePositions)
	mux.HandleFunc("/api/positions", s.handlePositions)

	// Ledger batch operations
	mux.HandleFunc("/api/ledger/import", s.handleLedgerImport)
	mux.HandleFunc("/api/ledger/refresh-prices", s.handleRefreshPrices)

	// Valuation and reporting
	mux.HandleFunc("/api/valuations", s.handleValuations)
	mux.HandleFunc("/api/networth/chart", s.handleNetWorthChart)
	mux.HandleFunc("/api/networth", s.handleNetWorth)
	mux.HandleFunc("/api/allocation", s.handleAllocation)
	mux.HandleFunc("/api/performance", s.handlePerformance)
	mux.HandleFunc("/api/projected-income", s.handleProjectedIncome)
}

// routePositions dispatches /api/positions/{id}/* to the appropriate handler.
func (s *Server) routePositions(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/positions/")
	if path == "" {
		s.handlePositions(w, r)
		return
	}

	parts := strings.SplitN(path, "/", 2)
	positionID := parts[0]
	subpath := ""
	if len(parts) > 1 {
		subpath = parts[1]
	}

	switch subpath {
	case "":
		s.handlePosition(w, r, positionID)
	case "archive":
		s.handlePositionArchive(w, r, positionID)
	case "events":
		s.handleEvents(w, r, positionID)
	case "recalculate":
		s.handleRecalculate(w, r, positionID)
	default:
		if strings.HasPrefix(subpath, "events/") {
			eventID := strings.TrimPrefix(subpath, "events/")
			s.handleEvent(w, r, positionID, eventID)
			return
		}
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

// --- System handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	cfg := s.app.Config
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"environment":           cfg.Environment,
		"display_currency":      common.ResolveDisplayCurrency(r.Context(), cfg.DisplayCurrency),
		"storage_backend":       cfg.Storage.Backend,
		"logging_level":         cfg.Logging.Level,
		"marketdata_configured": cfg.Clients.MarketData.APIKey != "",
		"uptime":                time.Since(s.app.StartupTime).Round(time.Second).String(),
	})
}

// handleShutdown handles POST /api/shutdown (dev mode only).
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if s.app.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}

	s.logger.Info().Msg("Shutdown requested via HTTP endpoint")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Shutting down gracefully...\n"))

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if s.shutdownChan != nil {
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.shutdownChan <- struct{}{}
		}()
	}
}
