// Package match decides which drivers see a pending ride and adjudicates
// the accept race. All filtering is a pure read over the current presence
// and approval snapshots; the only write is the conditional accept.
package match

import (
	"context"
	"errors"

	"github.com/example/ride-hail/internal/geo"
	"github.com/example/ride-hail/internal/models"
	"github.com/example/ride-hail/internal/observability"
	"github.com/example/ride-hail/internal/presence"
	"github.com/example/ride-hail/internal/store"
)

// DefaultRadiusKm is the geofence around a pickup point.
const DefaultRadiusKm = 3.0

type Outcome string

const (
	// Accepted: this driver won the ride.
	Accepted Outcome = "accepted"
	// AlreadyTaken: the conditional write lost the race. Expected, not a fault.
	AlreadyTaken Outcome = "already_taken"
	// NotEligible: driver fails approval or online checks at accept time.
	NotEligible Outcome = "not_eligible"
)

// AcceptResult reports how an accept attempt resolved. Current carries the
// status observed when the write did not apply, so a client can tell
// "another driver took it" from "it expired under you".
type AcceptResult struct {
	Outcome Outcome
	Ride    *models.Ride
	Current models.RideStatus
}

type Matcher struct {
	Store     store.RideStore
	Presence  presence.Tracker
	Approvals presence.Approvals
	RadiusKm  float64
}

func NewMatcher(st store.RideStore, tr presence.Tracker, ap presence.Approvals, radiusKm float64) *Matcher {
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	return &Matcher{Store: st, Presence: tr, Approvals: ap, RadiusKm: radiusKm}
}

// EligibleDrivers returns the drivers a pending ride should be offered to:
// approved, online, and within the geofence radius of the pickup. The
// boundary is inclusive.
func (m *Matcher) EligibleDrivers(ctx context.Context, ride *models.Ride) ([]string, error) {
	online, err := m.Presence.Online(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(online))
	for _, p := range online {
		ok, err := m.approved(ctx, p.DriverID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if geo.WithinRadiusKm(ride.Pickup.Coord, p.Loc, m.RadiusKm) {
			out = append(out, p.DriverID)
		}
	}
	return out, nil
}

// Eligible reports whether one driver passes the offer-time checks for a ride.
// Used by the driver-side feed consumer to filter its offer board.
func (m *Matcher) Eligible(ctx context.Context, ride *models.Ride, driverID string) (bool, error) {
	ok, err := m.approved(ctx, driverID)
	if err != nil || !ok {
		return false, err
	}
	p, found, err := m.Presence.Get(ctx, driverID)
	if err != nil || !found || p.Status != models.PresenceOnline {
		return false, err
	}
	return geo.WithinRadiusKm(ride.Pickup.Coord, p.Loc, m.RadiusKm), nil
}

// AttemptAccept performs the first-accept-wins conditional write
// pending -> accepted. Approval and online state are re-checked (they are
// cheap local reads); distance is not, per the offer-time contract. A lost
// race is an expected outcome and never an error.
func (m *Matcher) AttemptAccept(ctx context.Context, rideID, driverID string) (AcceptResult, error) {
	ok, err := m.acceptEligible(ctx, driverID)
	if err != nil {
		return AcceptResult{}, err
	}
	if !ok {
		observability.AcceptAttemptsTotal.WithLabelValues(string(NotEligible)).Inc()
		return AcceptResult{Outcome: NotEligible}, nil
	}

	r, err := m.Store.ConditionalUpdate(ctx, rideID, models.StatusPending,
		store.Patch{Status: models.StatusAccepted, DriverID: driverID})
	if err != nil {
		var na *store.NotAppliedError
		if errors.As(err, &na) {
			observability.AcceptAttemptsTotal.WithLabelValues(string(AlreadyTaken)).Inc()
			return AcceptResult{Outcome: AlreadyTaken, Current: na.Current}, nil
		}
		if errors.Is(err, store.ErrNotFound) {
			// ride deleted out from under the offer; same answer for the driver
			observability.AcceptAttemptsTotal.WithLabelValues(string(AlreadyTaken)).Inc()
			return AcceptResult{Outcome: AlreadyTaken}, nil
		}
		return AcceptResult{}, err
	}
	observability.AcceptAttemptsTotal.WithLabelValues(string(Accepted)).Inc()
	return AcceptResult{Outcome: Accepted, Ride: r}, nil
}

func (m *Matcher) approved(ctx context.Context, driverID string) (bool, error) {
	s, err := m.Approvals.Status(ctx, driverID)
	if err != nil {
		return false, err
	}
	return s == models.ApprovalApproved, nil
}

func (m *Matcher) acceptEligible(ctx context.Context, driverID string) (bool, error) {
	ok, err := m.approved(ctx, driverID)
	if err != nil || !ok {
		return false, err
	}
	p, found, err := m.Presence.Get(ctx, driverID)
	if err != nil {
		return false, err
	}
	return found && p.Status == models.PresenceOnline, nil
}
