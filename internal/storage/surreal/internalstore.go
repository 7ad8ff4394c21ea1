package surreal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/tally-app/tally/internal/common"
	"github.com/tally-app/tally/internal/interfaces"
	"github.com/tally-app/tally/internal/models"
)

// InternalStore manages user accounts and per-user config KV in SurrealDB.
type InternalStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// Compile-time check
var _ interfaces.InternalStore = (*InternalStore)(nil)

func NewInternalStore(db *surrealdb.DB, logger *common.Logger) *InternalStore {
	return &InternalStore{db: db, logger: logger}
}

func (s *InternalStore) GetUser(ctx context.Context, userID string) (*models.InternalUser, error) {
	user, err := surrealdb.Select[models.InternalUser](ctx, s.db, surrealmodels.NewRecordID("user", userID))
	if err != nil {
		return nil, fmt.Errorf("failed to select user: %w", err)
	}
	if user == nil || user.UserID == "" {
		return nil, fmt.Errorf("user '%s' not found", userID)
	}
	return user, nil
}

func (s *InternalStore) GetUserByEmail(ctx context.Context, email string) (*models.InternalUser, error) {
	sql := "SELECT * FROM user WHERE email = $email"
	vars := map[string]any{"email": strings.ToLower(email)}

	results, err := surrealdb.Query[[]models.InternalUser](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query user by email: %w", err)
	}
	users := firstResult(results)
	if len(users) == 0 {
		return nil, fmt.Errorf("user with email '%s' not found", email)
	}
	return &users[0], nil
}

func (s *InternalStore) SaveUser(ctx context.Context, user *models.InternalUser) error {
	user.Email = strings.ToLower(user.Email)
	user.ModifiedAt = time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = user.ModifiedAt
	}

	sql := "UPSERT $rid CONTENT $user"
	vars := map[string]any{
		"rid":  surrealmodels.NewRecordID("user", user.UserID),
		"user": user,
	}
	if _, err := surrealdb.Query[[]models.InternalUser](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save user '%s': %w", user.UserID, err)
	}
	s.logger.Debug().Str("user", user.UserID).Msg("User saved")
	return nil
}

func (s *InternalStore) DeleteUser(ctx context.Context, userID string) error {
	_, err := surrealdb.Delete[models.InternalUser](ctx, s.db, surrealmodels.NewRecordID("user", userID))
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete user '%s': %w", userID, err)
	}
	return nil
}

func kvRecordID(userID, key string) string {
	return userID + "_" + key
}

func (s *InternalStore) GetUserKV(ctx context.Context, userID, key string) (*models.UserKeyValue, error) {
	entry, err := surrealdb.Select[models.UserKeyValue](ctx, s.db, surrealmodels.NewRecordID("user_kv", kvRecordID(userID, key)))
	if err != nil {
		return nil, fmt.Errorf("failed to select user kv: %w", err)
	}
	if entry == nil || entry.Key == "" {
		return nil, fmt.Errorf("key '%s' not found for user '%s'", key, userID)
	}
	return entry, nil
}

func (s *InternalStore) SetUserKV(ctx context.Context, userID, key, value string) error {
	entry := models.UserKeyValue{
		UserID:   userID,
		Key:      key,
		Value:    value,
		Version:  1,
		DateTime: time.Now(),
	}
	if existing, err := s.GetUserKV(ctx, userID, key); err == nil {
		entry.Version = existing.Version + 1
	}

	sql := "UPSERT $rid CONTENT $entry"
	vars := map[string]any{
		"rid":   surrealmodels.NewRecordID("user_kv", kvRecordID(userID, key)),
		"entry": entry,
	}
	if _, err := surrealdb.Query[[]models.UserKeyValue](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to set key '%s': %w", key, err)
	}
	return nil
}

func (s *InternalStore) DeleteUserKV(ctx context.Context, userID, key string) error {
	_, err := surrealdb.Delete[models.UserKeyValue](ctx, s.db, surrealmodels.NewRecordID("user_kv", kvRecordID(userID, key)))
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete key '%s': %w", key, err)
	}
	return nil
}

func (s *InternalStore) Close() error {
	return nil // the manager owns the connection
}
