package domain

import (
	"math"
	"time"
)

// earthRadiusMeters is the WGS84 equatorial radius.
const earthRadiusMeters = 6378137.0

// Location is a WGS84 coordinate with an optional free-form address.
type Location struct {
	Latitude  float64
	Longitude float64
	Address   string
}

// Valid reports whether the coordinate lies inside WGS84 bounds.
func (l Location) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}

// DistanceMeters returns the great-circle distance to other using the
// haversine formula.
func (l Location) DistanceMeters(other Location) float64 {
	lat1 := l.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	dLat := (other.Latitude - l.Latitude) * math.Pi / 180
	dLon := (other.Longitude - l.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// TravelTime estimates how long a unit takes to cover distanceMeters at the
// given average speed. A non-positive speed yields zero.
func TravelTime(distanceMeters, speedKMH float64) time.Duration {
	if speedKMH <= 0 {
		return 0
	}
	hours := distanceMeters / 1000 / speedKMH
	return time.Duration(hours * float64(time.Hour))
}
