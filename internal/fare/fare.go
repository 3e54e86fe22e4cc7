package fare

import (
	"math"

	"github.com/example/ride-hail/internal/geo"
	"github.com/example/ride-hail/internal/models"
)

// DefaultPerKm is the flat per-kilometer rate in whole currency units.
const DefaultPerKm = 45.0

// Estimator computes fares from trip distance at a fixed per-km rate.
// Estimates are display figures; settlement uses the final fare fixed
// at completion, never an earlier estimate.
type Estimator struct {
	PerKm float64
}

func NewEstimator(perKm float64) Estimator {
	if perKm <= 0 {
		perKm = DefaultPerKm
	}
	return Estimator{PerKm: perKm}
}

// EstimateKm returns the fare for a distance in km, rounded to whole units.
// Deterministic: identical inputs always produce identical fares.
func (e Estimator) EstimateKm(distanceKm float64) int64 {
	return int64(math.Round(distanceKm * e.PerKm))
}

// EstimateTrip computes the fare for a pickup/drop pair over the
// great-circle distance.
func (e Estimator) EstimateTrip(pickup, drop models.Coord) int64 {
	return e.EstimateKm(geo.DistanceKm(pickup, drop))
}
