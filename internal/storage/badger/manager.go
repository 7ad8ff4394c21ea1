package badger

import (
	"fmt"

	"github.com/tally-app/tally/internal/common"
	"github.com/tally-app/tally/internal/interfaces"
)

// Manager implements interfaces.StorageManager over two embedded BadgerHold
// areas: internal (accounts, config KV) and user (positions, ledger,
// snapshots).
type Manager struct {
	internal *Store
	user     *Store
	logger   *common.Logger
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)

// NewManager creates a new StorageManager backed by BadgerHold.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	internalStore, err := NewStore(logger, config.Storage.Internal.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create internal store: %w", err)
	}

	userStore, err := NewStore(logger, config.Storage.User.Path)
	if err != nil {
		internalStore.Close()
		return nil, fmt.Errorf("failed to create user store: %w", err)
	}

	logger.Info().
		Str("internal", config.Storage.Internal.Path).
		Str("user", config.Storage.User.Path).
		Msg("Badger storage manager initialized")

	return &Manager{
		internal: internalStore,
		user:     userStore,
		logger:   logger,
	}, nil
}

func (m *Manager) InternalStore() interfaces.InternalStore {
	return NewInternalStorage(m.internal, m.logger)
}

func (m *Manager) PositionStore() interfaces.PositionStore {
	return NewPositionStorage(m.user, m.logger)
}

func (m *Manager) LedgerStore() interfaces.LedgerStore {
	return NewLedgerStorage(m.user, m.logger)
}

func (m *Manager) SnapshotStore() interfaces.SnapshotStore {
	return NewSnapshotStorage(m.user, m.logger)
}

func (m *Manager) Close() error {
	var firstErr error
	if err := m.internal.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := m.user.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
