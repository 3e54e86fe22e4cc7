// Package expiry arms one countdown per pending ride and force-expires
// rides no driver accepted in time. The expire write races driver accepts
// on the store's conditional update; whichever write lands first wins and
// the other side observes NotApplied. No lock exists outside the store.
package expiry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ride-hail/internal/feed"
	"github.com/example/ride-hail/internal/models"
	"github.com/example/ride-hail/internal/observability"
	"github.com/example/ride-hail/internal/store"
)

// DefaultTTL is how long a ride may sit in pending before it expires.
const DefaultTTL = 120 * time.Second

const (
	defaultAttempts = 3
	defaultBackoff  = 200 * time.Millisecond
)

type Scheduler struct {
	store    store.RideStore
	ttl      time.Duration
	attempts int
	backoff  time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewScheduler(st store.RideStore, ttl time.Duration, logger *slog.Logger) *Scheduler {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    st,
		ttl:      ttl,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
	}
}

// Arm starts the countdown for a ride. Re-arming a ride resets its timer.
func (s *Scheduler) Arm(rideID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[rideID]; ok {
		t.Stop()
	}
	s.timers[rideID] = time.AfterFunc(s.ttl, func() { s.expire(rideID) })
}

// Cancel stops a ride's countdown. Idempotent; never touches store state.
func (s *Scheduler) Cancel(rideID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[rideID]; ok {
		t.Stop()
		delete(s.timers, rideID)
	}
}

// Run consumes ride change events: a pending insert arms a countdown, any
// exit from pending disarms it. Returns when ctx is done or the stream
// closes; all timers are released on the way out.
func (s *Scheduler) Run(ctx context.Context, events <-chan feed.Event) {
	defer s.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch {
			case ev.Op == feed.OpInsert && ev.Ride.Status == models.StatusPending:
				s.Arm(ev.Ride.ID)
			case ev.Op == feed.OpDelete || ev.Ride.Status != models.StatusPending:
				s.Cancel(ev.Ride.ID)
			}
		}
	}
}

// Stop releases every armed timer without expiring anything.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// expire attempts the pending -> expired conditional write. Losing to an
// accept is a benign no-op. A transient store failure is retried with
// backoff and then abandoned: a delayed expiry beats pretending the ride
// is still live.
func (s *Scheduler) expire(rideID string) {
	s.Cancel(rideID)
	ctx := context.Background()
	delay := s.backoff
	for i := 0; i < s.attempts; i++ {
		_, err := s.store.ConditionalUpdate(ctx, rideID, models.StatusPending,
			store.Patch{Status: models.StatusExpired})
		if err == nil {
			observability.RidesExpiredTotal.Inc()
			s.logger.Info("ride expired", "ride_id", rideID)
			return
		}
		if store.IsNotApplied(err) || errors.Is(err, store.ErrNotFound) {
			// someone accepted, cancelled, or removed it first
			return
		}
		s.logger.Warn("expire write failed", "ride_id", rideID, "attempt", i+1, "error", err)
		time.Sleep(delay)
		delay *= 2
	}
	s.logger.Error("abandoning expire after retries", "ride_id", rideID)
}
