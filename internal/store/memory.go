package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-hail/internal/feed"
	"github.com/example/ride-hail/internal/models"
)

// MemoryStore keeps rides in a map guarded by a mutex. Conditional updates
// are linearized by the lock, matching the Postgres store's per-row
// guarantee. Used for tests and redis/postgres-free local runs.
type MemoryStore struct {
	mu    sync.Mutex
	rides map[string]*models.Ride
	pub   Publisher
	now   func() time.Time
}

func NewMemoryStore(pub Publisher) *MemoryStore {
	if pub == nil {
		pub = nopPublisher{}
	}
	return &MemoryStore{rides: make(map[string]*models.Ride), pub: pub, now: time.Now}
}

func (m *MemoryStore) Create(ctx context.Context, d Draft) (*models.Ride, error) {
	r := &models.Ride{
		ID:           newID(),
		PassengerID:  d.PassengerID,
		Pickup:       d.Pickup,
		Drop:         d.Drop,
		FareEstimate: d.FareEstimate,
		Status:       models.StatusPending,
		CreatedAt:    m.now(),
	}
	m.mu.Lock()
	m.rides[r.ID] = r
	snap := *r
	m.pub.Publish(feed.Event{Op: feed.OpInsert, Ride: snap})
	m.mu.Unlock()
	return &snap, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	snap := *r
	return &snap, nil
}

func (m *MemoryStore) ConditionalUpdate(ctx context.Context, id string, expected models.RideStatus, p Patch) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != expected {
		return nil, &NotAppliedError{Current: r.Status}
	}
	r.Status = p.Status
	if p.DriverID != "" {
		r.DriverID = p.DriverID
	}
	if p.FareFinal > 0 {
		r.FareFinal = p.FareFinal
	}
	switch p.Status {
	case models.StatusAccepted:
		if r.AcceptedAt.IsZero() {
			r.AcceptedAt = m.now()
		}
	case models.StatusCompleted:
		if r.CompletedAt.IsZero() {
			r.CompletedAt = m.now()
		}
	}
	snap := *r
	m.pub.Publish(feed.Event{Op: feed.OpUpdate, Ride: snap})
	return &snap, nil
}

func (m *MemoryStore) Query(ctx context.Context, f Filter) ([]*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Ride, 0)
	for _, r := range m.rides {
		if f.matches(r) {
			snap := *r
			out = append(out, &snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Delete removes a ride and emits a delete event. Not part of the
// RideStore contract; exists for the feed boundary and tests.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.rides, id)
	m.pub.Publish(feed.Event{Op: feed.OpDelete, Ride: *r})
	return nil
}
