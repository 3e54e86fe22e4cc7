package match

import (
	"sort"
	"sync"

	"github.com/example/ride-hail/internal/feed"
	"github.com/example/ride-hail/internal/models"
)

// OfferBoard is the driver-side view of the pending ride stream: a local,
// derived cache of offers the driver may accept. It reconciles rather than
// appends — feed events are hints, the store stays authoritative.
type OfferBoard struct {
	mu       sync.Mutex
	offers   map[string]models.Ride
	rejected map[string]struct{}
}

func NewOfferBoard() *OfferBoard {
	return &OfferBoard{offers: make(map[string]models.Ride), rejected: make(map[string]struct{})}
}

// Apply reconciles one change event into the board.
//
//   - insert of a pending ride adds it; duplicate inserts for a known id
//     are an idempotent merge keyed by id
//   - any event showing a ride outside pending removes it
//   - deletes remove it
//   - locally rejected rides stay hidden even if re-announced
func (b *OfferBoard) Apply(ev feed.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := ev.Ride
	if ev.Op == feed.OpDelete || r.Status != models.StatusPending {
		delete(b.offers, r.ID)
		return
	}
	if _, rejected := b.rejected[r.ID]; rejected {
		return
	}
	b.offers[r.ID] = r
}

// Sync replaces the board with an authoritative snapshot of pending rides,
// e.g. after (re)connecting to the feed. Local rejections survive.
func (b *OfferBoard) Sync(rides []*models.Ride) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offers = make(map[string]models.Ride, len(rides))
	for _, r := range rides {
		if r.Status != models.StatusPending {
			continue
		}
		if _, rejected := b.rejected[r.ID]; rejected {
			continue
		}
		b.offers[r.ID] = *r
	}
}

// Reject hides a ride from this driver's board. Purely local: it has no
// effect on the store and does not stop other drivers from accepting.
func (b *OfferBoard) Reject(rideID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejected[rideID] = struct{}{}
	delete(b.offers, rideID)
}

// List returns the visible offers, oldest first.
func (b *OfferBoard) List() []models.Ride {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Ride, 0, len(b.offers))
	for _, r := range b.offers {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
