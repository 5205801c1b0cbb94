// Package geo provides great-circle distance math for impossible-travel
// detection. No geocoding or IP-intelligence lookups happen here — callers
// supply coordinates (or don't, in which case travel checks degrade to
// "no evidence").
package geo

import (
	"math"
	"time"
)

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsZero reports whether the point carries no location evidence.
// (0,0) is treated as absent — it is in the Gulf of Guinea and never
// produced by real clients.
func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lon == 0
}

// DistanceKm returns the haversine distance between a and b in kilometers.
// The formula is symmetric: DistanceKm(a, b) == DistanceKm(b, a).
func DistanceKm(a, b Point) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// ImpliedSpeedKmh returns the travel speed implied by covering distanceKm
// in elapsed. A non-positive elapsed means the two events are simultaneous
// or out of order; the implied speed is effectively infinite, so +Inf is
// returned for any positive distance.
func ImpliedSpeedKmh(distanceKm float64, elapsed time.Duration) float64 {
	if distanceKm <= 0 {
		return 0
	}
	hours := elapsed.Hours()
	if hours <= 0 {
		return math.Inf(1)
	}
	return distanceKm / hours
}
