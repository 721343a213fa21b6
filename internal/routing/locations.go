package routing

import (
	"math"

	"github.com/Wbench12/logistic/internal/domain"
)

type coordKey struct {
	lat float64
	lng float64
}

func keyOf(p domain.LatLng) coordKey {
	return coordKey{
		lat: math.Round(p.Lat*1e6) / 1e6,
		lng: math.Round(p.Lng*1e6) / 1e6,
	}
}

// LocationIndex deduplicates coordinates (to 6 decimals) and assigns each
// unique point a stable matrix index in insertion order.
type LocationIndex struct {
	index  map[coordKey]int
	points []domain.LatLng
}

// NewLocationIndex creates an empty location index
func NewLocationIndex() *LocationIndex {
	return &LocationIndex{index: make(map[coordKey]int)}
}

// Add registers a point and returns its matrix index
func (x *LocationIndex) Add(p domain.LatLng) int {
	k := keyOf(p)
	if idx, ok := x.index[k]; ok {
		return idx
	}
	idx := len(x.points)
	x.index[k] = idx
	x.points = append(x.points, p)
	return idx
}

// Lookup returns the matrix index of a previously added point
func (x *LocationIndex) Lookup(p domain.LatLng) (int, bool) {
	idx, ok := x.index[keyOf(p)]
	return idx, ok
}

// Points returns the unique points in matrix order
func (x *LocationIndex) Points() []domain.LatLng {
	return x.points
}

// Len returns the number of unique points
func (x *LocationIndex) Len() int {
	return len(x.points)
}

// TravelMatrix binds a matrix result to its location index and answers
// travel queries between coordinates. Points missing from the index fall
// back to great-circle estimates so a lookup never fails.
type TravelMatrix struct {
	index  *LocationIndex
	result MatrixResult
}

// NewTravelMatrix creates a travel lookup over a fetched matrix
func NewTravelMatrix(index *LocationIndex, result MatrixResult) *TravelMatrix {
	return &TravelMatrix{index: index, result: result}
}

// OK reports whether the underlying matrix came from the routing engine
func (m *TravelMatrix) OK() bool {
	return m.result.OK
}

// FallbackUsed reports whether the haversine fallback produced the matrix
func (m *TravelMatrix) FallbackUsed() bool {
	return m.result.FallbackUsed
}

// Locations returns the number of unique points in the matrix
func (m *TravelMatrix) Locations() int {
	return m.index.Len()
}

// Seconds returns the travel time between two coordinates
func (m *TravelMatrix) Seconds(from, to domain.LatLng) float64 {
	fromIdx, okFrom := m.index.Lookup(from)
	toIdx, okTo := m.index.Lookup(to)
	if !okFrom || !okTo {
		return FallbackDurationS(HaversineKm(from, to))
	}
	return m.result.DurationsS[fromIdx][toIdx]
}

// Minutes returns the travel time between two coordinates, rounded up to
// whole minutes for the solver's integer timeline
func (m *TravelMatrix) Minutes(from, to domain.LatLng) int {
	s := m.Seconds(from, to)
	if s <= 0 {
		return 0
	}
	return int(math.Ceil(s / 60.0))
}

// Km returns the travel distance between two coordinates
func (m *TravelMatrix) Km(from, to domain.LatLng) float64 {
	fromIdx, okFrom := m.index.Lookup(from)
	toIdx, okTo := m.index.Lookup(to)
	if !okFrom || !okTo {
		return HaversineKm(from, to)
	}
	return m.result.DistancesM[fromIdx][toIdx] / 1000.0
}
