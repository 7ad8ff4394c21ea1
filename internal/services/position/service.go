// Package position manages the catalog of tracked positions.
package position

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/tally-app/tally/internal/common"
	"github.com/tally-app/tally/internal/interfaces"
	"github.com/tally-app/tally/internal/models"
)

// ErrNotFound marks a lookup for a position that does not exist or is not
// owned by the caller.
var ErrNotFound = errors.New("position not found")

// Compile-time interface check
var _ interfaces.PositionService = (*Service)(nil)

// Service implements PositionService
type Service struct {
	storage interfaces.StorageManager
	logger  *common.Logger
}

// NewService creates a new position service
func NewService(storage interfaces.StorageManager, logger *common.Logger) *Service {
	return &Service{storage: storage, logger: logger}
}

func generateID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "pos_00000000"
	}
	return "pos_" + hex.EncodeToString(b)
}

// validate checks the structural constraints on a position record.
func validate(p *models.Position) error {
	if p.Name == "" {
		return fmt.Errorf("position name is required")
	}
	if !models.ValidPositionType(p.Type) {
		return fmt.Errorf("invalid position type %q", p.Type)
	}
	if p.Currency == "" {
		return fmt.Errorf("position currency is required")
	}
	if p.Symbol != "" && p.Domain != "" {
		return fmt.Errorf("position cannot have both a symbol and a domain")
	}
	if p.AnnualYieldPct != nil && *p.AnnualYieldPct < 0 {
		return fmt.Errorf("annual yield must not be negative")
	}
	return nil
}

// Create persists a new position owned by the calling user.
func (s *Service) Create(ctx context.Context, position *models.Position) (*models.Position, error) {
	userID := common.ResolveUserID(ctx)

	if err := validate(position); err != nil {
		return nil, err
	}

	now := time.Now()
	position.ID = generateID()
	position.UserID = userID
	position.Archived = false
	position.ArchivedAt = nil
	position.CreatedAt = now
	position.UpdatedAt = now

	if err := s.storage.PositionStore().Save(ctx, position); err != nil {
		return nil, fmt.Errorf("failed to save position: %w", err)
	}

	s.logger.Info().Str("position", position.ID).Str("name", position.Name).
		Str("type", string(position.Type)).Str("source", string(position.PricingSource())).
		Msg("Position created")
	return position, nil
}

// Get returns one position by ID.
func (s *Service) Get(ctx context.Context, positionID string) (*models.Position, error) {
	userID := common.ResolveUserID(ctx)
	position, err := s.storage.PositionStore().Get(ctx, userID, positionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, positionID)
	}
	return position, nil
}

// List returns the user's positions, optionally including archived ones.
func (s *Service) List(ctx context.Context, includeArchived bool) ([]*models.Position, error) {
	userID := common.ResolveUserID(ctx)
	return s.storage.PositionStore().List(ctx, userID, includeArchived)
}

// Update modifies a position's descriptive fields. Ownership, creation time,
// and archival state are preserved from the stored record.
func (s *Service) Update(ctx context.Context, position *models.Position) (*models.Position, error) {
	userID := common.ResolveUserID(ctx)

	existing, err := s.storage.PositionStore().Get(ctx, userID, position.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, position.ID)
	}
	if err := validate(position); err != nil {
		return nil, err
	}

	position.UserID = existing.UserID
	position.Archived = existing.Archived
	position.ArchivedAt = existing.ArchivedAt
	position.CreatedAt = existing.CreatedAt
	position.UpdatedAt = time.Now()

	if err := s.storage.PositionStore().Save(ctx, position); err != nil {
		return nil, fmt.Errorf("failed to save position: %w", err)
	}

	s.logger.Info().Str("position", position.ID).Msg("Position updated")
	return position, nil
}

// Archive soft-hides a position from listings and valuations. The ledger
// and snapshot history stay intact.
func (s *Service) Archive(ctx context.Context, positionID string) error {
	userID := common.ResolveUserID(ctx)

	position, err := s.storage.PositionStore().Get(ctx, userID, positionID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, positionID)
	}
	if position.Archived {
		return nil
	}

	now := time.Now()
	position.Archived = true
	position.ArchivedAt = &now
	position.UpdatedAt = now

	if err := s.storage.PositionStore().Save(ctx, position); err != nil {
		return fmt.Errorf("failed to archive position: %w", err)
	}

	s.logger.Info().Str("position", positionID).Msg("Position archived")
	return nil
}

// Delete hard-deletes a position together with its full ledger and snapshot
// history.
func (s *Service) Delete(ctx context.Context, positionID string) error {
	userID := common.ResolveUserID(ctx)

	if _, err := s.storage.PositionStore().Get(ctx, userID, positionID); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, positionID)
	}

	events, err := s.storage.LedgerStore().DeleteByPosition(ctx, userID, positionID)
	if err != nil {
		return fmt.Errorf("failed to delete ledger for %s: %w", positionID, err)
	}
	snapshots, err := s.storage.SnapshotStore().DeleteByPosition(ctx, userID, positionID)
	if err != nil {
		return fmt.Errorf("failed to delete snapshots for %s: %w", positionID, err)
	}
	if err := s.storage.PositionStore().Delete(ctx, userID, positionID); err != nil {
		return fmt.Errorf("failed to delete position %s: %w", positionID, err)
	}

	s.logger.Info().Str("position", positionID).Int("events", events).
		Int("snapshots", snapshots).Msg("Position deleted")
	return nil
}
