// internal/domain/models/geopoint.go
package models

// GeoPoint is a GeoJSON Point as stored in MongoDB.
//
// Coordinates are [longitude, latitude], matching the GeoJSON spec and the
// order MongoDB's 2dsphere index expects. Keep that order straight: swapping
// the pair is the classic geo bug and passes every non-boundary validation.
type GeoPoint struct {
	Type        string    `bson:"type" json:"type"` // always "Point"
	Coordinates []float64 `bson:"coordinates" json:"coordinates"`
}

// NewGeoPoint builds a GeoJSON point from a longitude/latitude pair.
func NewGeoPoint(lng, lat float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: []float64{lng, lat}}
}

// Lng returns the longitude, or 0 if the point is malformed.
func (p GeoPoint) Lng() float64 {
	if len(p.Coordinates) != 2 {
		return 0
	}
	return p.Coordinates[0]
}

// Lat returns the latitude, or 0 if the point is malformed.
func (p GeoPoint) Lat() float64 {
	if len(p.Coordinates) != 2 {
		return 0
	}
	return p.Coordinates[1]
}

// Valid reports whether the point has exactly two coordinates inside the
// WGS84 ranges: longitude [-180, 180], latitude [-90, 90].
func (p GeoPoint) Valid() bool {
	if p.Type != "Point" || len(p.Coordinates) != 2 {
		return false
	}
	lng, lat := p.Coordinates[0], p.Coordinates[1]
	return lng >= -180 && lng <= 180 && lat >= -90 && lat <= 90
}
