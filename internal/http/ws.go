package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/ride-hail/internal/dispatch"
	"github.com/example/ride-hail/internal/feed"
	"github.com/example/ride-hail/internal/match"
	"github.com/example/ride-hail/internal/models"
	"github.com/example/ride-hail/internal/store"
)

var upgrader = websocket.Upgrader{}

// wsCommand is what a driver client sends over its socket.
type wsCommand struct {
	Action string `json:"action"` // accept | reject
	RideID string `json:"ride_id"`
}

// handleDriverWS streams the driver's offer board. Each change event
// reconciles the board and the visible offers are re-sent in full, so a
// dropped event costs freshness, never correctness.
func (s *Server) handleDriverWS(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sess := s.drivers.Add(driverID, conn)
	defer func() {
		s.drivers.Remove(driverID, sess)
		_ = conn.Close()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	board := match.NewOfferBoard()
	if pending, err := s.store.Query(ctx, store.Filter{Status: models.StatusPending}); err == nil {
		board.Sync(pending)
	}

	sub := s.feed.Subscribe(feed.All())
	defer sub.Close()

	go s.driverReadLoop(ctx, cancel, conn, driverID, board, sess)

	s.pushOffers(ctx, sess, board, driverID)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			board.Apply(ev)
			s.pushOffers(ctx, sess, board, driverID)
		}
	}
}

// driverReadLoop handles accept/reject commands and doubles as the
// disconnect detector.
func (s *Server) driverReadLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, driverID string, board *match.OfferBoard, sess *dispatch.Session) {
	defer cancel()
	for {
		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		switch cmd.Action {
		case "reject":
			board.Reject(cmd.RideID)
		case "accept":
			res, err := s.matcher.AttemptAccept(ctx, cmd.RideID, driverID)
			if err != nil {
				s.logger.Error("ws accept failed", "ride_id", cmd.RideID, "driver_id", driverID, "error", err)
				continue
			}
			msg := map[string]any{"type": "accept_result", "outcome": res.Outcome}
			if res.Ride != nil {
				msg["ride"] = res.Ride
			}
			if res.Current != "" {
				msg["current"] = res.Current
			}
			if err := sess.Send(msg); err != nil {
				return
			}
		}
	}
}

func (s *Server) pushOffers(ctx context.Context, sess *dispatch.Session, board *match.OfferBoard, driverID string) {
	visible := make([]models.Ride, 0)
	for _, r := range board.List() {
		ok, err := s.matcher.Eligible(ctx, &r, driverID)
		if err != nil || !ok {
			continue
		}
		visible = append(visible, r)
	}
	if err := sess.Send(map[string]any{"type": "offers", "offers": visible}); err != nil {
		s.logger.Debug("offer push failed", "driver_id", driverID, "error", err)
	}
}

// handlePassengerWS streams every change on one ride to its passenger.
func (s *Server) handlePassengerWS(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	ride, err := s.rides.Get(r.Context(), rideID)
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sess := s.passengers.Add(rideID, conn)
	defer func() {
		s.passengers.Remove(rideID, sess)
		_ = conn.Close()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := s.feed.Subscribe(feed.ByRide(rideID))
	defer sub.Close()

	// re-read after subscribing: a transition landing between the early
	// Get and Subscribe would otherwise never reach this stream
	if cur, err := s.rides.Get(ctx, rideID); err == nil {
		ride = cur
	}
	if err := sess.Send(map[string]any{"type": "ride", "ride": ride}); err != nil {
		return
	}
	if ride.Status.Terminal() {
		return
	}

	// reader exists only to notice the close
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := sess.Send(map[string]any{"type": "ride", "op": ev.Op, "ride": ev.Ride}); err != nil {
				return
			}
			if ev.Ride.Status.Terminal() {
				return
			}
		}
	}
}
