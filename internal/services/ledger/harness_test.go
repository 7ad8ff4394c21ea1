package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/tally-app/tally/internal/common"
	"github.com/tally-app/tally/internal/interfaces"
	"github.com/tally-app/tally/internal/models"
	"github.com/tally-app/tally/internal/valuation"
)

// memStorage is an in-memory StorageManager for engine tests.
type memStorage struct {
	mu        sync.Mutex
	positions map[string]*models.Position
	events    map[string]*models.LedgerEvent
	snapshots map[string]*models.Snapshot // keyed by snapshot ID
}

func newMemStorage() *memStorage {
	return &memStorage{
		positions: make(map[string]*models.Position),
		events:    make(map[string]*models.LedgerEvent),
		snapshots: make(map[string]*models.Snapshot),
	}
}

func (m *memStorage) InternalStore() interfaces.InternalStore { return nil }
func (m *memStorage) PositionStore() interfaces.PositionStore { return (*memPositionStore)(m) }
func (m *memStorage) LedgerStore() interfaces.LedgerStore     { return (*memLedgerStore)(m) }
func (m *memStorage) SnapshotStore() interfaces.SnapshotStore { return (*memSnapshotStore)(m) }
func (m *memStorage) Close() error                            { return nil }

type memPositionStore memStorage

func (s *memPositionStore) Get(_ context.Context, userID, positionID string) (*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[positionID]
	if !ok || p.UserID != userID {
		return nil, fmt.Errorf("position %s not found", positionID)
	}
	return p, nil
}

func (s *memPositionStore) List(_ context.Context, userID string, includeArchived bool) ([]*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
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

func (s *memPositionStore) Save(_ context.Context, position *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[position.ID] = position
	return nil
}

func (s *memPositionStore) Delete(_ context.Context, userID, positionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, positionID)
	return nil
}

type memLedgerStore memStorage

func (s *memLedgerStore) GetEvent(_ context.Context, userID, eventID string) (*models.LedgerEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok || e.UserID != userID {
		return nil, fmt.Errorf("event %s not found", eventID)
	}
	return e, nil
}

func (s *memLedgerStore) GetEvents(_ context.Context, userID, positionID, fromDate, toDate string) ([]*models.LedgerEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.LedgerEvent
	for _, e := range s.events {
		if e.UserID != userID || e.PositionID != positionID {
			continue
		}
		if fromDate != "" && e.Date < fromDate {
			continue
		}
		if toDate != "" && e.Date >= toDate {
			continue
		}
		out = append(out, e)
	}
	valuation.SortEvents(out)
	return out, nil
}

func (s *memLedgerStore) NextUpdateEvent(_ context.Context, userID, positionID, afterDate string) (*models.LedgerEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var candidates []*models.LedgerEvent
	for _, e := range s.events {
		if e.UserID != userID || e.PositionID != positionID {
			continue
		}
		if e.Type == models.EventTypeUpdate && e.Date > afterDate {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	valuation.SortEvents(candidates)
	return candidates[0], nil
}

func (s *memLedgerStore) InsertEvents(_ context.Context, events []*models.LedgerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		s.events[e.ID] = e
	}
	return nil
}

func (s *memLedgerStore) DeleteEvent(_ context.Context, userID, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, eventID)
	return nil
}

func (s *memLedgerStore) DeleteByPosition(_ context.Context, userID, positionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, e := range s.events {
		if e.UserID == userID && e.PositionID == positionID {
			delete(s.events, id)
			count++
		}
	}
	return count, nil
}

type memSnapshotStore memStorage

func (s *memSnapshotStore) GetAtOrBefore(_ context.Context, userID, positionID, date string, excludeEventIDs []string) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	excluded := make(map[string]bool, len(excludeEventIDs))
	for _, id := range excludeEventIDs {
		excluded[id] = true
	}
	var matches []*models.Snapshot
	for _, snap := range s.snapshots {
		if snap.UserID != userID || snap.PositionID != positionID {
			continue
		}
		if snap.Date > date {
			continue
		}
		if snap.EventID != "" && excluded[snap.EventID] {
			continue
		}
		matches = append(matches, snap)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	valuation.SortSnapshotsDesc(matches)
	return matches[0], nil
}

func (s *memSnapshotStore) GetByEvents(_ context.Context, userID, positionID string, eventIDs []string) (map[string]*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]bool, len(eventIDs))
	for _, id := range eventIDs {
		wanted[id] = true
	}
	out := make(map[string]*models.Snapshot)
	for _, snap := range s.snapshots {
		if snap.UserID == userID && snap.PositionID == positionID && snap.EventID != "" && wanted[snap.EventID] {
			out[snap.EventID] = snap
		}
	}
	return out, nil
}

func (s *memSnapshotStore) List(_ context.Context, userID, positionID string) ([]*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Snapshot
	for _, snap := range s.snapshots {
		if snap.UserID == userID && snap.PositionID == positionID {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *memSnapshotStore) ListRange(_ context.Context, userID, positionID, fromDate, toDate string) ([]*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Snapshot
	for _, snap := range s.snapshots {
		if snap.UserID != userID || snap.PositionID != positionID {
			continue
		}
		if fromDate != "" && snap.Date < fromDate {
			continue
		}
		if toDate != "" && snap.Date >= toDate {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

func (s *memSnapshotStore) Upsert(_ context.Context, snapshot *models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// One snapshot per (position, event) pair.
	if snapshot.EventID != "" {
		for id, existing := range s.snapshots {
			if existing.PositionID == snapshot.PositionID && existing.EventID == snapshot.EventID {
				snapshot.ID = existing.ID
				s.snapshots[id] = snapshot
				return nil
			}
		}
	}
	s.snapshots[snapshot.ID] = snapshot
	return nil
}

func (s *memSnapshotStore) DeleteByEvent(_ context.Context, userID, positionID, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, snap := range s.snapshots {
		if snap.UserID == userID && snap.PositionID == positionID && snap.EventID == eventID {
			delete(s.snapshots, id)
		}
	}
	return nil
}

func (s *memSnapshotStore) DeleteByPosition(_ context.Context, userID, positionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, snap := range s.snapshots {
		if snap.UserID == userID && snap.PositionID == positionID {
			delete(s.snapshots, id)
			count++
		}
	}
	return count, nil
}

// stubPriceProvider serves canned prices and counts batch calls.
type stubPriceProvider struct {
	mu         sync.Mutex
	prices     models.PriceMap
	batchCalls int
}

func (p *stubPriceProvider) GetPrice(_ context.Context, marketID, date string) (float64, bool, error) {
	price, ok := p.prices.Lookup(marketID, date)
	return price, ok, nil
}

func (p *stubPriceProvider) GetPrices(_ context.Context, marketIDs []string, dates []string) (models.PriceMap, error) {
	p.mu.Lock()
	p.batchCalls++
	p.mu.Unlock()
	out := make(models.PriceMap)
	for _, id := range marketIDs {
		for _, d := range dates {
			if price, ok := p.prices.Lookup(id, d); ok {
				out[models.PriceKey(id, d)] = price
			}
		}
	}
	return out, nil
}

func newTestService(storage *memStorage, prices *stubPriceProvider) *Service {
	if prices == nil {
		prices = &stubPriceProvider{prices: models.PriceMap{}}
	}
	return NewService(storage, prices, common.NewSilentLogger())
}
