package fare

import (
	"testing"

	"github.com/example/ride-hail/internal/models"
)

func TestEstimateDeterministic(t *testing.T) {
	e := NewEstimator(45)
	a := e.EstimateKm(7.2)
	b := e.EstimateKm(7.2)
	if a != b {
		t.Fatalf("estimate not reproducible: %d vs %d", a, b)
	}
	if a != 324 { // round(7.2 * 45)
		t.Fatalf("expected 324, got %d", a)
	}
	if got := e.EstimateKm(7.38); got != 332 { // round(332.1) rounds down
		t.Fatalf("expected 332, got %d", got)
	}
}

func TestEstimateZeroDistance(t *testing.T) {
	e := NewEstimator(45)
	if got := e.EstimateKm(0); got != 0 {
		t.Fatalf("expected 0 fare for 0 km, got %d", got)
	}
}

func TestEstimatorDefaultsRate(t *testing.T) {
	e := NewEstimator(0)
	if e.PerKm != DefaultPerKm {
		t.Fatalf("expected default rate %v, got %v", DefaultPerKm, e.PerKm)
	}
}

func TestEstimateTripMatchesDistance(t *testing.T) {
	e := NewEstimator(45)
	p := models.Coord{Lat: 12.68, Lng: 78.62}
	d := models.Coord{Lat: 12.70, Lng: 78.65}
	if e.EstimateTrip(p, d) != e.EstimateTrip(p, d) {
		t.Fatal("trip estimate not deterministic")
	}
	if e.EstimateTrip(p, p) != 0 {
		t.Fatal("same pickup and drop must estimate 0")
	}
}
