// Package presence tracks driver availability: one upsertable row per
// driver for location/online state, plus the read side of driver document
// approval. The matcher reads through these; it never owns the data.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/example/ride-hail/internal/models"
)

// Tracker is the driver presence registry. Upsert is keyed by driver id
// and last-write-wins; no history is retained.
type Tracker interface {
	Upsert(ctx context.Context, p models.DriverPresence) error
	Get(ctx context.Context, driverID string) (models.DriverPresence, bool, error)
	Online(ctx context.Context) ([]models.DriverPresence, error)
}

// Approvals exposes driver verification state. Only approved drivers may
// go online or be offered rides.
type Approvals interface {
	Status(ctx context.Context, driverID string) (models.ApprovalStatus, error)
	SetStatus(ctx context.Context, driverID string, s models.ApprovalStatus) error
}

// Index is the in-memory tracker.
type Index struct {
	mu      sync.RWMutex
	drivers map[string]models.DriverPresence
}

func NewIndex() *Index {
	return &Index{drivers: make(map[string]models.DriverPresence)}
}

func (i *Index) Upsert(ctx context.Context, p models.DriverPresence) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if p.LastUpdated.IsZero() {
		p.LastUpdated = time.Now()
	}
	i.drivers[p.DriverID] = p
	return nil
}

func (i *Index) Get(ctx context.Context, driverID string) (models.DriverPresence, bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	p, ok := i.drivers[driverID]
	return p, ok, nil
}

func (i *Index) Online(ctx context.Context) ([]models.DriverPresence, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]models.DriverPresence, 0, len(i.drivers))
	for _, p := range i.drivers {
		if p.Status == models.PresenceOnline {
			out = append(out, p)
		}
	}
	return out, nil
}

// ApprovalIndex is the in-memory approval store. Unknown drivers are
// not_submitted.
type ApprovalIndex struct {
	mu       sync.RWMutex
	statuses map[string]models.ApprovalStatus
}

func NewApprovalIndex() *ApprovalIndex {
	return &ApprovalIndex{statuses: make(map[string]models.ApprovalStatus)}
}

func (a *ApprovalIndex) Status(ctx context.Context, driverID string) (models.ApprovalStatus, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if s, ok := a.statuses[driverID]; ok {
		return s, nil
	}
	return models.ApprovalNotSubmitted, nil
}

func (a *ApprovalIndex) SetStatus(ctx context.Context, driverID string, s models.ApprovalStatus) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statuses[driverID] = s
	return nil
}
