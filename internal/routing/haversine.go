package routing

import (
	"math"

	"github.com/Wbench12/logistic/internal/domain"
)

const (
	// EarthRadiusKm is the mean Earth radius used for great-circle distances
	EarthRadiusKm = 6371.0

	// FallbackSpeedKmh is the assumed truck speed when no routing engine
	// response is available
	FallbackSpeedKmh = 40.0
)

// HaversineKm computes the great-circle distance between two points in km
func HaversineKm(a, b domain.LatLng) float64 {
	phi1 := radians(a.Lat)
	phi2 := radians(b.Lat)
	dPhi := radians(b.Lat - a.Lat)
	dLambda := radians(b.Lng - a.Lng)

	x := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(x), math.Sqrt(1-x))

	return EarthRadiusKm * c
}

// FallbackDurationMin estimates travel time in minutes at the nominal
// truck speed
func FallbackDurationMin(distanceKm float64) float64 {
	return distanceKm / FallbackSpeedKmh * 60.0
}

// FallbackDurationS estimates travel time in seconds at the nominal
// truck speed
func FallbackDurationS(distanceKm float64) float64 {
	return distanceKm / FallbackSpeedKmh * 3600.0
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
