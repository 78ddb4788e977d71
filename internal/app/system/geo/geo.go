// internal/app/system/geo/geo.go
package geo

import (
	"errors"
	"math"

	"github.com/bloodbridge/bloodbridge/internal/domain/models"
)

// ErrInvalidCoordinate is returned for pairs outside [-180,180]/[-90,90].
// Out-of-range coordinates are rejected, never clamped.
var ErrInvalidCoordinate = errors.New("invalid coordinate pair")

// earthRadiusMeters is the mean Earth radius used by the haversine distance.
// MongoDB's $geoNear uses the same WGS84-derived sphere, which keeps the two
// distance definitions within rounding tolerance of each other.
const earthRadiusMeters = 6371008.8

// ValidateLngLat checks a longitude/latitude pair.
func ValidateLngLat(lng, lat float64) error {
	if lng < -180 || lng > 180 || lat < -90 || lat > 90 ||
		math.IsNaN(lng) || math.IsNaN(lat) {
		return ErrInvalidCoordinate
	}
	return nil
}

// ValidatePoint checks a GeoJSON point.
func ValidatePoint(p models.GeoPoint) error {
	if !p.Valid() {
		return ErrInvalidCoordinate
	}
	return nil
}

// DistanceMeters computes the great-circle (haversine) distance between two
// points in meters.
func DistanceMeters(a, b models.GeoPoint) float64 {
	lat1 := a.Lat() * math.Pi / 180
	lat2 := b.Lat() * math.Pi / 180
	dLat := (b.Lat() - a.Lat()) * math.Pi / 180
	dLng := (b.Lng() - a.Lng()) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng

	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
