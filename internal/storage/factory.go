// Package storage provides the top-level StorageManager factory with
// pluggable backends.
package storage

import (
	"fmt"

	"github.com/tally-app/tally/internal/common"
	"github.com/tally-app/tally/internal/interfaces"
	"github.com/tally-app/tally/internal/storage/badger"
	"github.com/tally-app/tally/internal/storage/surreal"
)

// Backend type constants.
const (
	BackendBadger  = "badger"
	BackendSurreal = "surreal"
)

// NewManager creates a storage manager based on the configuration.
// Supported backends: "badger" (embedded, default) and "surreal".
func NewManager(logger *common.Logger, config *common.Config) (interfaces.StorageManager, error) {
	backend := config.Storage.Backend
	if backend == "" {
		backend = BackendBadger // Default to embedded backend
	}

	switch backend {
	case BackendBadger:
		return badger.NewManager(logger, config)

	case BackendSurreal:
		return surreal.NewManager(logger, config)

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: badger, surreal)", backend)
	}
}
