package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Place is a coordinate plus the display address shown to riders.
// The address comes from the geocoding provider and is opaque to the core.
type Place struct {
	Coord   Coord  `json:"coord"`
	Address string `json:"address,omitempty"`
}

type RideStatus string

const (
	StatusPending              RideStatus = "pending"
	StatusAccepted             RideStatus = "accepted"
	StatusArrived              RideStatus = "arrived"
	StatusInProgress           RideStatus = "in_progress"
	StatusCompleted            RideStatus = "completed"
	StatusExpired              RideStatus = "expired"
	StatusCancelledByPassenger RideStatus = "cancelled_by_passenger"
	StatusCancelledByDriver    RideStatus = "cancelled_by_driver"
)

// Terminal reports whether no further status transition is allowed.
func (s RideStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusExpired, StatusCancelledByPassenger, StatusCancelledByDriver:
		return true
	}
	return false
}

type Ride struct {
	ID           string     `json:"id"`
	PassengerID  string     `json:"passenger_id"`
	DriverID     string     `json:"driver_id,omitempty"` // empty until accepted
	Pickup       Place      `json:"pickup"`
	Drop         Place      `json:"drop"`
	FareEstimate int64      `json:"fare_estimate"`
	FareFinal    int64      `json:"fare_final,omitempty"`
	Status       RideStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	AcceptedAt   time.Time  `json:"accepted_at,omitempty"`
	CompletedAt  time.Time  `json:"completed_at,omitempty"`
}

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// DriverPresence is one row per driver, keyed by DriverID. Last write wins;
// no history is kept.
type DriverPresence struct {
	DriverID    string         `json:"driver_id"`
	Loc         Coord          `json:"loc"`
	Status      PresenceStatus `json:"status"`
	LastUpdated time.Time      `json:"last_updated"`
}

type ApprovalStatus string

const (
	ApprovalNotSubmitted        ApprovalStatus = "not_submitted"
	ApprovalPendingVerification ApprovalStatus = "pending_verification"
	ApprovalApproved            ApprovalStatus = "approved"
	ApprovalRejected            ApprovalStatus = "rejected"
)
