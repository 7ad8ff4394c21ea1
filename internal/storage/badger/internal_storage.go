package badger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tally-app/tally/internal/common"
	"github.com/tally-app/tally/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// keySep is the composite key separator. Using a null byte prevents
// collisions when user IDs or keys contain ":" characters.
const keySep = "\x00"

type internalStorage struct {
	store  *Store
	logger *common.Logger
}

// NewInternalStorage creates a new InternalStore backed by BadgerHold.
func NewInternalStorage(store *Store, logger *common.Logger) *internalStorage {
	return &internalStorage{store: store, logger: logger}
}

func (s *internalStorage) GetUser(_ context.Context, userID string) (*models.InternalUser, error) {
	var user models.InternalUser
	err := s.store.db.Get(userID, &user)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("user '%s' not found", userID)
		}
		return nil, fmt.Errorf("failed to get user '%s': %w", userID, err)
	}
	return &user, nil
}

func (s *internalStorage) GetUserByEmail(_ context.Context, email string) (*models.InternalUser, error) {
	var users []models.InternalUser
	if err := s.store.db.Find(&users, badgerhold.Where("Email").Eq(strings.ToLower(email))); err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("user with email '%s' not found", email)
	}
	return &users[0], nil
}

func (s *internalStorage) SaveUser(_ context.Context, user *models.InternalUser) error {
	user.Email = strings.ToLower(user.Email)
	user.ModifiedAt = time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = user.ModifiedAt
	}
	if err := s.store.db.Upsert(user.UserID, user); err != nil {
		return fmt.Errorf("failed to save user '%s': %w", user.UserID, err)
	}
	s.logger.Debug().Str("user", user.UserID).Msg("User saved")
	return nil
}

func (s *internalStorage) DeleteUser(_ context.Context, userID string) error {
	err := s.store.db.Delete(userID, models.InternalUser{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete user '%s': %w", userID, err)
	}
	return nil
}

func kvKey(userID, key string) string {
	return userID + keySep + key
}

func (s *internalStorage) GetUserKV(_ context.Context, userID, key string) (*models.UserKeyValue, error) {
	var entry models.UserKeyValue
	err := s.store.db.Get(kvKey(userID, key), &entry)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("key '%s' not found for user '%s'", key, userID)
		}
		return nil, fmt.Errorf("failed to get key '%s': %w", key, err)
	}
	return &entry, nil
}

func (s *internalStorage) SetUserKV(_ context.Context, userID, key, value string) error {
	entry := models.UserKeyValue{
		UserID:   userID,
		Key:      key,
		Value:    value,
		Version:  1,
		DateTime: time.Now(),
	}

	// Read existing to increment version
	var existing models.UserKeyValue
	if err := s.store.db.Get(kvKey(userID, key), &existing); err == nil {
		entry.Version = existing.Version + 1
	}

	if err := s.store.db.Upsert(kvKey(userID, key), &entry); err != nil {
		return fmt.Errorf("failed to set key '%s': %w", key, err)
	}
	return nil
}

func (s *internalStorage) DeleteUserKV(_ context.Context, userID, key string) error {
	err := s.store.db.Delete(kvKey(userID, key), models.UserKeyValue{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete key '%s': %w", key, err)
	}
	return nil
}

func (s *internalStorage) Close() error {
	return nil // the manager owns the underlying store
}
