package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-hail/internal/directions"
	"github.com/example/ride-hail/internal/dispatch"
	"github.com/example/ride-hail/internal/feed"
	"github.com/example/ride-hail/internal/ingest"
	"github.com/example/ride-hail/internal/lifecycle"
	"github.com/example/ride-hail/internal/match"
	"github.com/example/ride-hail/internal/presence"
	"github.com/example/ride-hail/internal/store"
)

// Deps is everything the API needs. Kafka and Directions are optional;
// their endpoints degrade gracefully when unset.
type Deps struct {
	Rides      *lifecycle.Service
	Matcher    *match.Matcher
	Store      store.RideStore
	Feed       *feed.Broker
	Presence   presence.Tracker
	Approvals  presence.Approvals
	Kafka      *ingest.KafkaProducer
	Directions *directions.Client
	Logger     *slog.Logger
}

type Server struct {
	rides      *lifecycle.Service
	matcher    *match.Matcher
	store      store.RideStore
	feed       *feed.Broker
	presence   presence.Tracker
	approvals  presence.Approvals
	kafka      *ingest.KafkaProducer
	directions *directions.Client

	drivers    *dispatch.Registry
	passengers *dispatch.Registry

	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		rides:      d.Rides,
		matcher:    d.Matcher,
		store:      d.Store,
		feed:       d.Feed,
		presence:   d.Presence,
		approvals:  d.Approvals,
		kafka:      d.Kafka,
		directions: d.Directions,
		drivers:    dispatch.NewRegistry(),
		passengers: dispatch.NewRegistry(),
		logger:     logger,
		mux:        mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/rides", s.handleCreateRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides", s.handleListRides).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}", s.handleGetRide).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/accept", s.handleAccept).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/transition", s.handleTransition).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/cancel", s.handleCancel).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/eligible-drivers", s.handleEligibleDrivers).Methods("GET")

	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/internal/driver/approval", s.handleDriverApproval).Methods("POST")

	s.mux.HandleFunc("/api/v1/directions", s.handleDirections).Methods("GET")
	s.mux.HandleFunc("/api/v1/geocode/reverse", s.handleReverseGeocode).Methods("GET")

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())

	s.mux.HandleFunc("/ws/driver/{driver_id}", s.handleDriverWS)
	s.mux.HandleFunc("/ws/passenger/{ride_id}", s.handlePassengerWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
