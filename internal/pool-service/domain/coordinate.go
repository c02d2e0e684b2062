package domain

import (
	"errors"
	"math"
)

// Coordinate errors
var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
)

const earthRadiusKm = 6371.0

// Coordinate is an immutable geographic point.
type Coordinate struct {
	latitude  float64
	longitude float64
}

// NewCoordinate creates a new coordinate with validation
func NewCoordinate(lat, lng float64) (Coordinate, error) {
	if lat < -90 || lat > 90 {
		return Coordinate{}, ErrInvalidLatitude
	}
	if lng < -180 || lng > 180 {
		return Coordinate{}, ErrInvalidLongitude
	}
	return Coordinate{latitude: lat, longitude: lng}, nil
}

// MustCoordinate is NewCoordinate for literals known to be valid.
func MustCoordinate(lat, lng float64) Coordinate {
	c, err := NewCoordinate(lat, lng)
	if err != nil {
		panic(err)
	}
	return c
}

// Validate checks if the coordinate is valid
func (c Coordinate) Validate() error {
	_, err := NewCoordinate(c.latitude, c.longitude)
	return err
}

// DistanceTo is the great-circle distance to other in kilometers.
func (c Coordinate) DistanceTo(other Coordinate) float64 {
	return haversineDistance(c.latitude, c.longitude, other.latitude, other.longitude)
}

func (c Coordinate) Latitude() float64  { return c.latitude }
func (c Coordinate) Longitude() float64 { return c.longitude }

func haversineDistance(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
