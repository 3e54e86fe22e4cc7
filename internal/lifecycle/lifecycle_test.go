package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/example/ride-hail/internal/fare"
	"github.com/example/ride-hail/internal/models"
	"github.com/example/ride-hail/internal/store"
)

func newService() (*Service, *store.MemoryStore) {
	st := store.NewMemoryStore(nil)
	est := fare.NewEstimator(45)
	return NewService(st, est), st
}

func create(t *testing.T, s *Service) *models.Ride {
	t.Helper()
	r, err := s.Create(context.Background(), CreateInput{
		PassengerID: "p1",
		Pickup:      models.Place{Coord: models.Coord{Lat: 12.68, Lng: 78.62}, Address: "Bus Stand"},
		Drop:        models.Place{Coord: models.Coord{Lat: 12.70, Lng: 78.65}, Address: "Market"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return r
}

func TestCreateEstimatesFareOnce(t *testing.T) {
	s, _ := newService()
	r := create(t, s)
	if r.FareEstimate <= 0 {
		t.Fatalf("expected fare estimate from distance, got %d", r.FareEstimate)
	}
	if r.FareFinal != 0 {
		t.Fatalf("fare_final must be unset before completion")
	}
}

func TestHappyPathSetsFareFinalAtCompletion(t *testing.T) {
	ctx := context.Background()
	s, _ := newService()
	r := create(t, s)

	if _, err := s.Store.ConditionalUpdate(ctx, r.ID, models.StatusPending,
		store.Patch{Status: models.StatusAccepted, DriverID: "d1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	for _, target := range []models.RideStatus{models.StatusArrived, models.StatusInProgress, models.StatusCompleted} {
		if _, err := s.Transition(ctx, r.ID, target); err != nil {
			t.Fatalf("transition to %s: %v", target, err)
		}
	}

	got, _ := s.Get(ctx, r.ID)
	if got.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.FareFinal != got.FareEstimate {
		t.Fatalf("fare_final %d must be fixed at completion (estimate %d)", got.FareFinal, got.FareEstimate)
	}
	if got.CompletedAt.IsZero() {
		t.Fatalf("completed_at not set")
	}
}

func TestCompleteFromPendingRejected(t *testing.T) {
	s, _ := newService()
	r := create(t, s)
	_, err := s.Transition(context.Background(), r.ID, models.StatusCompleted)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected InvalidTransition, got %v", err)
	}
}

func TestTerminalStatesAbsorbUpdates(t *testing.T) {
	ctx := context.Background()
	s, _ := newService()
	r := create(t, s)
	if _, err := s.Cancel(ctx, r.ID, ActorPassenger); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// a transition attempt out of a terminal state is an invalid edge
	if _, err := s.Transition(ctx, r.ID, models.StatusAccepted); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected InvalidTransition from terminal, got %v", err)
	}
	// the store guard can also never match a terminal state again
	_, err := s.Store.ConditionalUpdate(ctx, r.ID, models.StatusPending,
		store.Patch{Status: models.StatusAccepted, DriverID: "d1"})
	if !store.IsNotApplied(err) {
		t.Fatalf("expected NotApplied from terminal guard, got %v", err)
	}
}

func TestCancelRoutesByActor(t *testing.T) {
	ctx := context.Background()
	s, _ := newService()

	r := create(t, s)
	got, err := s.Cancel(ctx, r.ID, ActorPassenger)
	if err != nil || got.Status != models.StatusCancelledByPassenger {
		t.Fatalf("passenger cancel: %v %+v", err, got)
	}

	r2 := create(t, s)
	if _, err := s.Store.ConditionalUpdate(ctx, r2.ID, models.StatusPending,
		store.Patch{Status: models.StatusAccepted, DriverID: "d1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	got, err = s.Cancel(ctx, r2.ID, ActorDriver)
	if err != nil || got.Status != models.StatusCancelledByDriver {
		t.Fatalf("driver cancel: %v %+v", err, got)
	}
}

func TestDriverCannotCancelPending(t *testing.T) {
	s, _ := newService()
	r := create(t, s)
	if _, err := s.Cancel(context.Background(), r.ID, ActorDriver); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("driver cancel of pending ride must be invalid, got %v", err)
	}
}

func TestCanTransitionTable(t *testing.T) {
	cases := []struct {
		from, to models.RideStatus
		ok       bool
	}{
		{models.StatusPending, models.StatusAccepted, true},
		{models.StatusPending, models.StatusExpired, true},
		{models.StatusPending, models.StatusArrived, false},
		{models.StatusAccepted, models.StatusArrived, true},
		{models.StatusAccepted, models.StatusExpired, false},
		{models.StatusArrived, models.StatusInProgress, true},
		{models.StatusInProgress, models.StatusCompleted, true},
		{models.StatusCompleted, models.StatusPending, false},
		{models.StatusExpired, models.StatusAccepted, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.ok {
			t.Fatalf("CanTransition(%s,%s) = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}
