package geo

import (
	"math"

	"github.com/example/ride-hail/internal/models"
)

const earthRadiusMeters = 6371000.0

// Haversine distance in meters on a spherical-earth approximation.
// No projection correction; city-scale geofencing doesn't need one.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// DistanceKm is Haversine between two coordinates in kilometers.
func DistanceKm(a, b models.Coord) float64 {
	return Haversine(a.Lat, a.Lng, b.Lat, b.Lng) / 1000.0
}

// WithinRadiusKm reports whether b lies within radiusKm of a.
// The boundary is inclusive: a driver exactly at the radius is eligible.
func WithinRadiusKm(a, b models.Coord, radiusKm float64) bool {
	return DistanceKm(a, b) <= radiusKm
}
