package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/example/ride-hail/internal/lifecycle"
	"github.com/example/ride-hail/internal/match"
	"github.com/example/ride-hail/internal/models"
	"github.com/example/ride-hail/internal/observability"
	"github.com/example/ride-hail/internal/store"
)

type createRideRequest struct {
	PassengerID  string       `json:"passenger_id"`
	Pickup       models.Place `json:"pickup"`
	Drop         models.Place `json:"drop"`
	FareEstimate int64        `json:"fare_estimate,omitempty"`
}

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var req createRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ride, err := s.rides.Create(r.Context(), lifecycle.CreateInput{
		PassengerID:  req.PassengerID,
		Pickup:       req.Pickup,
		Drop:         req.Drop,
		FareEstimate: req.FareEstimate,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, ride)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.rides.Get(r.Context(), mux.Vars(r)["ride_id"])
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleListRides(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rides, err := s.store.Query(r.Context(), store.Filter{
		Status:      models.RideStatus(q.Get("status")),
		PassengerID: q.Get("passenger_id"),
		DriverID:    q.Get("driver_id"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rides": rides})
}

type acceptRequest struct {
	DriverID string `json:"driver_id"`
}

// acceptResponse tells the driver how the race resolved. On a lost race
// current carries the status that won, so the client can show "taken"
// versus "expired" without another round trip.
type acceptResponse struct {
	Outcome match.Outcome     `json:"outcome"`
	Ride    *models.Ride      `json:"ride,omitempty"`
	Current models.RideStatus `json:"current,omitempty"`
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DriverID == "" {
		writeError(w, http.StatusBadRequest, "driver_id required")
		return
	}
	res, err := s.matcher.AttemptAccept(r.Context(), mux.Vars(r)["ride_id"], req.DriverID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	switch res.Outcome {
	case match.Accepted:
		writeJSON(w, http.StatusOK, acceptResponse{Outcome: res.Outcome, Ride: res.Ride})
	case match.NotEligible:
		writeJSON(w, http.StatusForbidden, acceptResponse{Outcome: res.Outcome})
	default:
		writeJSON(w, http.StatusConflict, acceptResponse{Outcome: res.Outcome, Current: res.Current})
	}
}

type transitionRequest struct {
	Target models.RideStatus `json:"target"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Target == "" {
		writeError(w, http.StatusBadRequest, "target required")
		return
	}
	ride, err := s.rides.Transition(r.Context(), mux.Vars(r)["ride_id"], req.Target)
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

type cancelRequest struct {
	Actor lifecycle.Actor `json:"actor"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Actor != lifecycle.ActorDriver {
		req.Actor = lifecycle.ActorPassenger
	}
	ride, err := s.rides.Cancel(r.Context(), mux.Vars(r)["ride_id"], req.Actor)
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleEligibleDrivers(w http.ResponseWriter, r *http.Request) {
	ride, err := s.rides.Get(r.Context(), mux.Vars(r)["ride_id"])
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	ids, err := s.matcher.EligibleDrivers(r.Context(), ride)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ride_id": ride.ID, "driver_ids": ids})
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var p models.DriverPresence
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.DriverID == "" {
		writeError(w, http.StatusBadRequest, "driver_id required")
		return
	}
	if p.Status == "" {
		p.Status = models.PresenceOnline
	}
	// only approved drivers may go online; offline updates always land
	if p.Status == models.PresenceOnline {
		st, err := s.approvals.Status(r.Context(), p.DriverID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if st != models.ApprovalApproved {
			writeError(w, http.StatusForbidden, "driver not approved")
			return
		}
	}
	if s.kafka != nil {
		if err := s.kafka.PublishPresence(p); err != nil {
			s.logger.Warn("presence publish failed", "driver_id", p.DriverID, "error", err)
		}
	}
	if err := s.presence.Upsert(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if online, err := s.presence.Online(r.Context()); err == nil {
		observability.DriversOnline.Set(float64(len(online)))
	}
	w.WriteHeader(http.StatusNoContent)
}

type approvalRequest struct {
	DriverID string                `json:"driver_id"`
	Status   models.ApprovalStatus `json:"status"`
}

func (s *Server) handleDriverApproval(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DriverID == "" {
		writeError(w, http.StatusBadRequest, "driver_id required")
		return
	}
	switch req.Status {
	case models.ApprovalNotSubmitted, models.ApprovalPendingVerification, models.ApprovalApproved, models.ApprovalRejected:
	default:
		writeError(w, http.StatusBadRequest, "unknown approval status")
		return
	}
	if err := s.approvals.SetStatus(r.Context(), req.DriverID, req.Status); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDirections(w http.ResponseWriter, r *http.Request) {
	if s.directions == nil {
		writeError(w, http.StatusServiceUnavailable, "directions provider not configured")
		return
	}
	from, ok1 := coordFromQuery(r, "from_lat", "from_lng")
	to, ok2 := coordFromQuery(r, "to_lat", "to_lng")
	if !ok1 || !ok2 {
		writeError(w, http.StatusBadRequest, "from_lat, from_lng, to_lat, to_lng required")
		return
	}
	route, err := s.directions.Route(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (s *Server) handleReverseGeocode(w http.ResponseWriter, r *http.Request) {
	if s.directions == nil {
		writeError(w, http.StatusServiceUnavailable, "geocoding provider not configured")
		return
	}
	at, ok := coordFromQuery(r, "lat", "lng")
	if !ok {
		writeError(w, http.StatusBadRequest, "lat, lng required")
		return
	}
	addr, err := s.directions.ReverseGeocode(r.Context(), at)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": addr})
}

func (s *Server) writeRideError(w http.ResponseWriter, err error) {
	var na *store.NotAppliedError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "ride not found")
	case errors.As(err, &na):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "not applied", "current": string(na.Current)})
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func coordFromQuery(r *http.Request, latKey, lngKey string) (models.Coord, bool) {
	lat, err1 := strconv.ParseFloat(r.URL.Query().Get(latKey), 64)
	lng, err2 := strconv.ParseFloat(r.URL.Query().Get(lngKey), 64)
	if err1 != nil || err2 != nil {
		return models.Coord{}, false
	}
	return models.Coord{Lat: lat, Lng: lng}, true
}
