package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/example/ride-hail/internal/feed"
	"github.com/example/ride-hail/internal/models"
)

// ErrNotFound is returned when a ride id does not exist.
var ErrNotFound = errors.New("ride not found")

// NotAppliedError reports that a conditional update's status guard did not
// hold at write time. It is an expected outcome of the accept/expire/cancel
// races, not a fault. Current carries the status observed at the write so
// callers can tell "already accepted" from "expired" without a second read.
type NotAppliedError struct {
	Current models.RideStatus
}

func (e *NotAppliedError) Error() string {
	return fmt.Sprintf("conditional update not applied: current status %s", e.Current)
}

// IsNotApplied reports whether err is a lost conditional update.
func IsNotApplied(err error) bool {
	var na *NotAppliedError
	return errors.As(err, &na)
}

// Draft is a ride as submitted by a passenger, before the store assigns
// identity and lifecycle fields.
type Draft struct {
	PassengerID  string
	Pickup       models.Place
	Drop         models.Place
	FareEstimate int64
}

// Patch is the set of fields a status transition may change. Status is the
// target state; DriverID and FareFinal apply only when non-zero. Timestamps
// (accepted_at, completed_at) are set by the store from the target status,
// exactly once each.
type Patch struct {
	Status    models.RideStatus
	DriverID  string
	FareFinal int64
}

// Filter narrows Query results. Zero values match everything.
type Filter struct {
	Status      models.RideStatus
	PassengerID string
	DriverID    string
}

// RideStore is the single source of truth for ride state.
//
// ConditionalUpdate is the sole mutation path for status-bearing fields and
// must be atomic: it applies and returns the updated record only if the
// record's status equals expected at the moment of the write, and otherwise
// returns *NotAppliedError with no side effect. This is what guarantees at
// most one accept (or expire) wins per ride.
type RideStore interface {
	Create(ctx context.Context, d Draft) (*models.Ride, error)
	Get(ctx context.Context, id string) (*models.Ride, error)
	ConditionalUpdate(ctx context.Context, id string, expected models.RideStatus, p Patch) (*models.Ride, error)
	Query(ctx context.Context, f Filter) ([]*models.Ride, error)
}

// Publisher receives one event per applied insert/update/delete. Both store
// implementations emit after a successful write, in commit order per ride.
type Publisher interface {
	Publish(ev feed.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(feed.Event) {}

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func (f Filter) matches(r *models.Ride) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.PassengerID != "" && r.PassengerID != f.PassengerID {
		return false
	}
	if f.DriverID != "" && r.DriverID != f.DriverID {
		return false
	}
	return true
}
