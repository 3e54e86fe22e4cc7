// Package lifecycle owns the ride state machine. Every transition goes
// through the store's conditional update, so concurrent actors (driver
// accept, passenger cancel, expiry timer) resolve to exactly one winner
// without any client-side lock.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ride-hail/internal/models"
	"github.com/example/ride-hail/internal/observability"
	"github.com/example/ride-hail/internal/store"
)

// ErrInvalidTransition means the caller asked for a transition the state
// machine does not define from the ride's current state. Surfaced to the
// caller, never silently coerced.
var ErrInvalidTransition = errors.New("invalid ride transition")

// Actor identifies who is driving a transition; cancellation routes to a
// different terminal state per actor.
type Actor string

const (
	ActorPassenger Actor = "passenger"
	ActorDriver    Actor = "driver"
	ActorSystem    Actor = "system"
)

// transitions is the full state flow. Terminal states have no entry.
var transitions = map[models.RideStatus][]models.RideStatus{
	models.StatusPending:    {models.StatusAccepted, models.StatusExpired, models.StatusCancelledByPassenger},
	models.StatusAccepted:   {models.StatusArrived, models.StatusCancelledByPassenger, models.StatusCancelledByDriver},
	models.StatusArrived:    {models.StatusInProgress, models.StatusCancelledByPassenger, models.StatusCancelledByDriver},
	models.StatusInProgress: {models.StatusCompleted, models.StatusCancelledByPassenger, models.StatusCancelledByDriver},
}

// CanTransition reports whether the machine defines from -> to.
func CanTransition(from, to models.RideStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type FareEstimator interface {
	EstimateTrip(pickup, drop models.Coord) int64
}

// Service exposes the client-facing ride operations over a RideStore.
type Service struct {
	Store store.RideStore
	Fare  FareEstimator
}

func NewService(st store.RideStore, fare FareEstimator) *Service {
	return &Service{Store: st, Fare: fare}
}

// CreateInput carries what a passenger submits when booking.
type CreateInput struct {
	PassengerID string
	Pickup      models.Place
	Drop        models.Place
	// FareEstimate, if > 0, is taken as-is (the client priced the route via
	// the directions provider). Otherwise estimated from great-circle distance.
	FareEstimate int64
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Ride, error) {
	if in.PassengerID == "" {
		return nil, fmt.Errorf("passenger_id required")
	}
	est := in.FareEstimate
	if est <= 0 && s.Fare != nil {
		est = s.Fare.EstimateTrip(in.Pickup.Coord, in.Drop.Coord)
	}
	r, err := s.Store.Create(ctx, store.Draft{
		PassengerID:  in.PassengerID,
		Pickup:       in.Pickup,
		Drop:         in.Drop,
		FareEstimate: est,
	})
	if err != nil {
		return nil, err
	}
	observability.RidesCreatedTotal.Inc()
	return r, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Ride, error) {
	return s.Store.Get(ctx, id)
}

// Transition moves a ride to target from whatever state it is currently
// in, provided the machine defines that edge. The read establishes the
// expected status for the conditional write; if another actor moves the
// ride between read and write, the store reports NotApplied and the
// caller re-reads.
func (s *Service) Transition(ctx context.Context, id string, target models.RideStatus) (*models.Ride, error) {
	cur, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(cur.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, target)
	}
	patch := store.Patch{Status: target}
	if target == models.StatusCompleted {
		// fare_final is fixed exactly here; everything earlier is an estimate
		// and must never be used for settlement.
		patch.FareFinal = cur.FareEstimate
	}
	return s.Store.ConditionalUpdate(ctx, id, cur.Status, patch)
}

// Cancel routes to the terminal cancel state for the given actor. A
// passenger may cancel any non-terminal ride; a driver only one they are
// already attached to (accepted or later).
func (s *Service) Cancel(ctx context.Context, id string, actor Actor) (*models.Ride, error) {
	target := models.StatusCancelledByPassenger
	if actor == ActorDriver {
		target = models.StatusCancelledByDriver
	}
	return s.Transition(ctx, id, target)
}
