package match

import (
	"context"
	"sync"
	"testing"

	"github.com/example/ride-hail/internal/geo"
	"github.com/example/ride-hail/internal/models"
	"github.com/example/ride-hail/internal/presence"
	"github.com/example/ride-hail/internal/store"
)

// pickup at (12.68, 78.62); offsets in degrees latitude (1 deg ~ 111.19 km)
const (
	pickupLat = 12.68
	pickupLng = 78.62
	degPerKm  = 1.0 / 111.1949
)

func fixture(t *testing.T) (*Matcher, *store.MemoryStore, *presence.Index, *presence.ApprovalIndex) {
	t.Helper()
	st := store.NewMemoryStore(nil)
	tr := presence.NewIndex()
	ap := presence.NewApprovalIndex()
	return NewMatcher(st, tr, ap, 3.0), st, tr, ap
}

func addDriver(t *testing.T, tr *presence.Index, ap *presence.ApprovalIndex, id string, distKm float64, status models.PresenceStatus, approval models.ApprovalStatus) {
	t.Helper()
	ctx := context.Background()
	if err := tr.Upsert(ctx, models.DriverPresence{
		DriverID: id,
		Loc:      models.Coord{Lat: pickupLat + distKm*degPerKm, Lng: pickupLng},
		Status:   status,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := ap.SetStatus(ctx, id, approval); err != nil {
		t.Fatalf("approval: %v", err)
	}
}

func pendingRide(t *testing.T, st *store.MemoryStore) *models.Ride {
	t.Helper()
	r, err := st.Create(context.Background(), store.Draft{
		PassengerID: "p1",
		Pickup:      models.Place{Coord: models.Coord{Lat: pickupLat, Lng: pickupLng}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return r
}

func TestEligibleDriversGeofence(t *testing.T) {
	m, st, tr, ap := fixture(t)
	addDriver(t, tr, ap, "A", 0.5, models.PresenceOnline, models.ApprovalApproved)
	addDriver(t, tr, ap, "B", 10, models.PresenceOnline, models.ApprovalApproved)
	r := pendingRide(t, st)

	got, err := m.EligibleDrivers(context.Background(), r)
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(got) != 1 || got[0] != "A" {
		t.Fatalf("expected {A}, got %v", got)
	}
}

func TestEligibleDriversFiltersApprovalAndPresence(t *testing.T) {
	m, st, tr, ap := fixture(t)
	addDriver(t, tr, ap, "offline", 0.5, models.PresenceOffline, models.ApprovalApproved)
	addDriver(t, tr, ap, "unverified", 0.5, models.PresenceOnline, models.ApprovalPendingVerification)
	addDriver(t, tr, ap, "rejected", 0.5, models.PresenceOnline, models.ApprovalRejected)
	addDriver(t, tr, ap, "good", 0.5, models.PresenceOnline, models.ApprovalApproved)
	r := pendingRide(t, st)

	got, err := m.EligibleDrivers(context.Background(), r)
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(got) != 1 || got[0] != "good" {
		t.Fatalf("expected {good}, got %v", got)
	}
}

func TestEligibleBoundaryInclusive(t *testing.T) {
	m, st, tr, ap := fixture(t)
	addDriver(t, tr, ap, "edge", 3.0, models.PresenceOnline, models.ApprovalApproved)
	r := pendingRide(t, st)

	// pin the radius to the exact computed distance so d == radius
	p, _, _ := m.Presence.Get(context.Background(), "edge")
	m.RadiusKm = geo.DistanceKm(r.Pickup.Coord, p.Loc)

	ok, err := m.Eligible(context.Background(), r, "edge")
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if !ok {
		t.Fatalf("driver at the radius boundary must be eligible")
	}
}

func TestAttemptAcceptRace(t *testing.T) {
	m, st, tr, ap := fixture(t)
	addDriver(t, tr, ap, "A", 0.5, models.PresenceOnline, models.ApprovalApproved)
	addDriver(t, tr, ap, "B", 1.0, models.PresenceOnline, models.ApprovalApproved)
	r := pendingRide(t, st)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan AcceptResult, 2)
	for _, id := range []string{"A", "B"} {
		wg.Add(1)
		go func(driver string) {
			defer wg.Done()
			res, err := m.AttemptAccept(ctx, r.ID, driver)
			if err != nil {
				t.Errorf("accept %s: %v", driver, err)
				return
			}
			results <- res
		}(id)
	}
	wg.Wait()
	close(results)

	var won, lost int
	var winner string
	for res := range results {
		switch res.Outcome {
		case Accepted:
			won++
			winner = res.Ride.DriverID
		case AlreadyTaken:
			lost++
			if res.Current != models.StatusAccepted {
				t.Fatalf("loser must observe accepted, got %s", res.Current)
			}
		default:
			t.Fatalf("unexpected outcome %s", res.Outcome)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("expected one winner one loser, got won=%d lost=%d", won, lost)
	}
	final, _ := st.Get(ctx, r.ID)
	if final.DriverID != winner {
		t.Fatalf("final driver_id %q does not match winner %q", final.DriverID, winner)
	}
}

func TestAttemptAcceptNotEligible(t *testing.T) {
	m, st, tr, ap := fixture(t)
	addDriver(t, tr, ap, "pendingdocs", 0.5, models.PresenceOnline, models.ApprovalPendingVerification)
	r := pendingRide(t, st)

	res, err := m.AttemptAccept(context.Background(), r.ID, "pendingdocs")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if res.Outcome != NotEligible {
		t.Fatalf("expected NotEligible, got %s", res.Outcome)
	}
	got, _ := st.Get(context.Background(), r.ID)
	if got.Status != models.StatusPending {
		t.Fatalf("ineligible accept must not touch the ride")
	}
}

func TestAcceptAfterExpiryIsAlreadyTaken(t *testing.T) {
	m, st, tr, ap := fixture(t)
	addDriver(t, tr, ap, "late", 0.5, models.PresenceOnline, models.ApprovalApproved)
	r := pendingRide(t, st)
	ctx := context.Background()

	if _, err := st.ConditionalUpdate(ctx, r.ID, models.StatusPending,
		store.Patch{Status: models.StatusExpired}); err != nil {
		t.Fatalf("expire: %v", err)
	}

	res, err := m.AttemptAccept(ctx, r.ID, "late")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if res.Outcome != AlreadyTaken || res.Current != models.StatusExpired {
		t.Fatalf("late accept should observe expired, got %+v", res)
	}
}
