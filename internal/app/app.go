// Package app wires configuration, storage, clients, and services into one
// application core shared by cmd/tally-server and the test harnesses.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tally-app/tally/internal/clients/fxrates"
	"github.com/tally-app/tally/internal/clients/marketdata"
	"github.com/tally-app/tally/internal/common"
	"github.com/tally-app/tally/internal/interfaces"
	"github.com/tally-app/tally/internal/services/ledger"
	"github.com/tally-app/tally/internal/services/networth"
	"github.com/tally-app/tally/internal/services/position"
	"github.com/tally-app/tally/internal/storage"
)

// App holds all initialized services, clients, and storage.
type App struct {
	Config           *common.Config
	Logger           *common.Logger
	Storage          interfaces.StorageManager
	PriceProvider    interfaces.PriceProvider
	FXProvider       interfaces.FXProvider
	PositionService  interfaces.PositionService
	LedgerService    interfaces.LedgerService
	ValuationService interfaces.ValuationService
	StartupTime      time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes configuration, storage, clients, and services.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	binDir := getBinaryDir()

	// Config path: argument, TALLY_CONFIG, binary dir, then dev fallback.
	if configPath == "" {
		configPath = os.Getenv("TALLY_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "tally.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/tally.toml"
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative storage paths to the binary directory
	if config.Storage.Internal.Path != "" && !filepath.IsAbs(config.Storage.Internal.Path) {
		config.Storage.Internal.Path = filepath.Join(binDir, config.Storage.Internal.Path)
	}
	if config.Storage.User.Path != "" && !filepath.IsAbs(config.Storage.User.Path) {
		config.Storage.User.Path = filepath.Join(binDir, config.Storage.User.Path)
	}

	// Resolve relative log file path to the binary directory
	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	storageManager, err := storage.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if config.Clients.MarketData.APIKey == "" {
		logger.Warn().Msg("Market data API key not configured - symbol-linked positions will fall back to ledger prices")
	}

	priceProvider := marketdata.NewClientFromConfig(config.Clients.MarketData, logger)
	fxProvider := fxrates.NewClientFromConfig(config.Clients.FX, logger)

	positionService := position.NewService(storageManager, logger)
	ledgerService := ledger.NewService(storageManager, priceProvider, logger)
	valuationService := networth.NewService(storageManager, priceProvider, fxProvider, logger, config.DisplayCurrency)

	a := &App{
		Config:           config,
		Logger:           logger,
		Storage:          storageManager,
		PriceProvider:    priceProvider,
		FXProvider:       fxProvider,
		PositionService:  positionService,
		LedgerService:    ledgerService,
		ValuationService: valuationService,
		StartupTime:      startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// Close releases storage and client resources.
func (a *App) Close() {
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("Failed to close storage")
		}
	}
}
