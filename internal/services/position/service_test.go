package position

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tally-app/tally/internal/common"
	"github.com/tally-app/tally/internal/interfaces"
	"github.com/tally-app/tally/internal/models"
)

// stubStorage holds positions in a map and counts cascade deletes.
type stubStorage struct {
	positions        map[string]*models.Position
	eventsDeleted    map[string]int
	snapshotsDeleted map[string]int
}

func newStubStorage() *stubStorage {
	return &stubStorage{
		positions:        make(map[string]*models.Position),
		eventsDeleted:    make(map[string]int),
		snapshotsDeleted: make(map[string]int),
	}
}

func (s *stubStorage) InternalStore() interfaces.InternalStore { return nil }
func (s *stubStorage) PositionStore() interfaces.PositionStore { return (*stubPositionStore)(s) }
func (s *stubStorage) LedgerStore() interfaces.LedgerStore     { return (*stubLedgerStore)(s) }
func (s *stubStorage) SnapshotStore() interfaces.SnapshotStore { return (*stubSnapshotStore)(s) }
func (s *stubStorage) Close() error                            { return nil }

type stubPositionStore stubStorage

func (s *stubPositionStore) Get(_ context.Context, userID, positionID string) (*models.Position, error) {
	p, ok := s.positions[positionID]
	if !ok || p.UserID != userID {
		return nil, fmt.Errorf("position %s not found", positionID)
	}
	return p, nil
}

func (s *stubPositionStore) List(_ context.Context, userID string, includeArchived bool) ([]*models.Position, error) {
	var out []*models.Position
	for _, p := range s.positions {
		if p.UserID != userID {
			continue
		}
		if p.Archived && !includeArchived {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *stubPositionStore) Save(_ context.Context, position *models.Position) error {
	s.positions[position.ID] = position
	return nil
}

func (s *stubPositionStore) Delete(_ context.Context, userID, positionID string) error {
	delete(s.positions, positionID)
	return nil
}

type stubLedgerStore stubStorage

func (s *stubLedgerStore) GetEvent(context.Context, string, string) (*models.LedgerEvent, error) {
	return nil, fmt.Errorf("not implemented")
}
func (s *stubLedgerStore) GetEvents(context.Context, string, string, string, string) ([]*models.LedgerEvent, error) {
	return nil, nil
}
func (s *stubLedgerStore) NextUpdateEvent(context.Context, string, string, string) (*models.LedgerEvent, error) {
	return nil, nil
}
func (s *stubLedgerStore) InsertEvents(context.Context, []*models.LedgerEvent) error { return nil }

func (s *stubLedgerStore) DeleteEvent(context.Context, string, string) error { return nil }
func (s *stubLedgerStore) DeleteByPosition(_ context.Context, userID, positionID string) (int, error) {
	s.eventsDeleted[positionID]++
	return 3, nil
}

type stubSnapshotStore stubStorage

func (s *stubSnapshotStore) GetAtOrBefore(context.Context, string, string, string, []string) (*models.Snapshot, error) {
	return nil, nil
}
func (s *stubSnapshotStore) GetByEvents(context.Context, string, string, []string) (map[string]*models.Snapshot, error) {
	return nil, nil
}
func (s *stubSnapshotStore) List(context.Context, string, string) ([]*models.Snapshot, error) {
	return nil, nil
}
func (s *stubSnapshotStore) ListRange(context.Context, string, string, string, string) ([]*models.Snapshot, error) {
	return nil, nil
}
func (s *stubSnapshotStore) Upsert(context.Context, *models.Snapshot) error { return nil }

func (s *stubSnapshotStore) DeleteByEvent(context.Context, string, string, string) error {
	return nil
}
func (s *stubSnapshotStore) DeleteByPosition(_ context.Context, userID, positionID string) (int, error) {
	s.snapshotsDeleted[positionID]++
	return 3, nil
}

func newTestService(storage *stubStorage) *Service {
	return NewService(storage, common.NewSilentLogger())
}

func TestCreatePosition(t *testing.T) {
	storage := newStubStorage()
	svc := newTestService(storage)

	created, err := svc.Create(context.Background(), &models.Position{
		Name:     "Vanguard ASX 300",
		Type:     models.PositionTypeAsset,
		Currency: "AUD",
		Symbol:   "VAS.AX",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "default", created.UserID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, models.PricingSourceSymbol, created.PricingSource())
	assert.Contains(t, storage.positions, created.ID)
}

func TestCreatePositionValidation(t *testing.T) {
	storage := newStubStorage()
	svc := newTestService(storage)

	cases := []struct {
		name     string
		position models.Position
	}{
		{"missing name", models.Position{Type: models.PositionTypeAsset, Currency: "AUD"}},
		{"bad type", models.Position{Name: "x", Type: "debt", Currency: "AUD"}},
		{"missing currency", models.Position{Name: "x", Type: models.PositionTypeAsset}},
		{"symbol and domain", models.Position{Name: "x", Type: models.PositionTypeAsset, Currency: "AUD", Symbol: "VAS.AX", Domain: "example.com"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), &tc.position)
			assert.Error(t, err)
		})
	}
	assert.Empty(t, storage.positions)
}

func TestUpdatePreservesOwnershipAndArchival(t *testing.T) {
	storage := newStubStorage()
	svc := newTestService(storage)

	created, err := svc.Create(context.Background(), &models.Position{
		Name: "Home", Type: models.PositionTypeAsset, Currency: "AUD",
	})
	require.NoError(t, err)
	require.NoError(t, svc.Archive(context.Background(), created.ID))

	updated, err := svc.Update(context.Background(), &models.Position{
		ID: created.ID, Name: "Home (PPOR)", Type: models.PositionTypeAsset, Currency: "AUD",
	})
	require.NoError(t, err)
	assert.Equal(t, "Home (PPOR)", updated.Name)
	assert.Equal(t, created.UserID, updated.UserID)
	assert.True(t, updated.Archived)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
}

func TestArchiveHidesFromDefaultListing(t *testing.T) {
	storage := newStubStorage()
	svc := newTestService(storage)

	a, err := svc.Create(context.Background(), &models.Position{Name: "A", Type: models.PositionTypeAsset, Currency: "AUD"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), &models.Position{Name: "B", Type: models.PositionTypeLiability, Currency: "AUD"})
	require.NoError(t, err)

	require.NoError(t, svc.Archive(context.Background(), a.ID))

	active, err := svc.List(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	all, err := svc.List(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// Archiving twice is a no-op.
	require.NoError(t, svc.Archive(context.Background(), a.ID))
}

func TestDeleteCascades(t *testing.T) {
	storage := newStubStorage()
	svc := newTestService(storage)

	created, err := svc.Create(context.Background(), &models.Position{Name: "A", Type: models.PositionTypeAsset, Currency: "AUD"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), created.ID))
	assert.NotContains(t, storage.positions, created.ID)
	assert.Equal(t, 1, storage.eventsDeleted[created.ID])
	assert.Equal(t, 1, storage.snapshotsDeleted[created.ID])
}

func TestGetUnknownPosition(t *testing.T) {
	storage := newStubStorage()
	svc := newTestService(storage)

	_, err := svc.Get(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}
