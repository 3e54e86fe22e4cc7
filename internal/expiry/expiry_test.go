package expiry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-hail/internal/feed"
	"github.com/example/ride-hail/internal/models"
	"github.com/example/ride-hail/internal/store"
)

func newRide(t *testing.T, st *store.MemoryStore) *models.Ride {
	t.Helper()
	r, err := st.Create(context.Background(), store.Draft{PassengerID: "p1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return r
}

func waitForStatus(t *testing.T, st *store.MemoryStore, id string, want models.RideStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r, err := st.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if r.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	r, _ := st.Get(context.Background(), id)
	t.Fatalf("ride never reached %s, stuck at %s", want, r.Status)
}

func TestDeadlineExpiresUnacceptedRide(t *testing.T) {
	st := store.NewMemoryStore(nil)
	s := NewScheduler(st, 20*time.Millisecond, nil)
	defer s.Stop()

	r := newRide(t, st)
	s.Arm(r.ID)
	waitForStatus(t, st, r.ID, models.StatusExpired)

	// a late accept must lose to the expiry
	_, err := st.ConditionalUpdate(context.Background(), r.ID, models.StatusPending,
		store.Patch{Status: models.StatusAccepted, DriverID: "late"})
	if !store.IsNotApplied(err) {
		t.Fatalf("accept after expiry must be NotApplied, got %v", err)
	}
}

func TestCancelDisarmsTimer(t *testing.T) {
	st := store.NewMemoryStore(nil)
	s := NewScheduler(st, 20*time.Millisecond, nil)
	defer s.Stop()

	r := newRide(t, st)
	s.Arm(r.ID)
	s.Cancel(r.ID)

	time.Sleep(60 * time.Millisecond)
	got, _ := st.Get(context.Background(), r.ID)
	if got.Status != models.StatusPending {
		t.Fatalf("disarmed ride must stay pending, got %s", got.Status)
	}
}

func TestAcceptBeatsExpiry(t *testing.T) {
	st := store.NewMemoryStore(nil)
	s := NewScheduler(st, 30*time.Millisecond, nil)
	defer s.Stop()

	r := newRide(t, st)
	s.Arm(r.ID)
	if _, err := st.ConditionalUpdate(context.Background(), r.ID, models.StatusPending,
		store.Patch{Status: models.StatusAccepted, DriverID: "d1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	time.Sleep(80 * time.Millisecond)
	got, _ := st.Get(context.Background(), r.ID)
	if got.Status != models.StatusAccepted || got.DriverID != "d1" {
		t.Fatalf("expiry overwrote an accepted ride: %+v", got)
	}
}

func TestExactlyOneExitFromPending(t *testing.T) {
	// accept and expiry fire as close together as we can arrange; the
	// conditional update must let exactly one through.
	st := store.NewMemoryStore(nil)
	s := NewScheduler(st, 10*time.Millisecond, nil)
	defer s.Stop()

	r := newRide(t, st)
	s.Arm(r.ID)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		_, _ = st.ConditionalUpdate(context.Background(), r.ID, models.StatusPending,
			store.Patch{Status: models.StatusAccepted, DriverID: "d1"})
	}()
	wg.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := st.Get(context.Background(), r.ID)
		if got.Status != models.StatusPending {
			if got.Status != models.StatusAccepted && got.Status != models.StatusExpired {
				t.Fatalf("first exit from pending must be accept or expire, got %s", got.Status)
			}
			if got.Status == models.StatusAccepted && got.DriverID != "d1" {
				t.Fatalf("accepted without the accepting driver: %+v", got)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("ride never left pending")
}

func TestRunArmsAndDisarmsFromFeed(t *testing.T) {
	broker := feed.NewBroker()
	st := store.NewMemoryStore(broker)
	s := NewScheduler(st, 25*time.Millisecond, nil)

	sub := broker.Subscribe(feed.All())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, sub.C)

	ctxb := context.Background()
	expiring, _ := st.Create(ctxb, store.Draft{PassengerID: "p1"})
	accepted, _ := st.Create(ctxb, store.Draft{PassengerID: "p2"})
	if _, err := st.ConditionalUpdate(ctxb, accepted.ID, models.StatusPending,
		store.Patch{Status: models.StatusAccepted, DriverID: "d1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	waitForStatus(t, st, expiring.ID, models.StatusExpired)
	got, _ := st.Get(ctxb, accepted.ID)
	if got.Status != models.StatusAccepted {
		t.Fatalf("feed-driven scheduler expired an accepted ride: %+v", got)
	}
}

type flakyStore struct {
	*store.MemoryStore
	mu    sync.Mutex
	fails int
	calls int
}

func (f *flakyStore) ConditionalUpdate(ctx context.Context, id string, expected models.RideStatus, p store.Patch) (*models.Ride, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.fails
	f.mu.Unlock()
	if fail {
		return nil, errors.New("store unavailable")
	}
	return f.MemoryStore.ConditionalUpdate(ctx, id, expected, p)
}

func TestExpireRetriesTransientFailures(t *testing.T) {
	mem := store.NewMemoryStore(nil)
	fs := &flakyStore{MemoryStore: mem, fails: 2}
	s := NewScheduler(fs, 10*time.Millisecond, nil)
	s.backoff = 5 * time.Millisecond
	defer s.Stop()

	r := newRide(t, mem)
	s.Arm(r.ID)
	waitForStatus(t, mem, r.ID, models.StatusExpired)

	fs.mu.Lock()
	calls := fs.calls
	fs.mu.Unlock()
	if calls < 3 {
		t.Fatalf("expected retries before success, got %d calls", calls)
	}
}
