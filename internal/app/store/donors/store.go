// internal/app/store/donors/store.go
package donorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/bloodbridge/bloodbridge/internal/app/system/geo"
	"github.com/bloodbridge/bloodbridge/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// DefaultRadiusMeters is the match radius used when the caller does not
// specify one. Shared by every match call site so routine and emergency
// matching behave the same.
const DefaultRadiusMeters = 10000

// DefaultMatchLimit caps how many donors one match returns.
const DefaultMatchLimit = 200

// ErrNotFound is returned when no donor exists for the given id.
var ErrNotFound = errors.New("donor not found")

// Store reads donor records from the donors collection.
//
// Donor documents are owned by the profile surface; this store is a derived,
// read-only view over them. The 2dsphere index on location (ensured at
// startup) makes $geoNear return matches in ascending distance order
// natively.
type Store struct {
	c *mongo.Collection
}

// New creates a Store over the donors collection.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("donors")}
}

// GetByID loads a donor by id.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Donor, error) {
	var d models.Donor
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// FindEligible returns donors within radiusMeters of point matching the
// blood type, ordered by ascending distance. requireAvailable additionally
// filters on the availability flag. A radius or limit of zero or below falls
// back to the defaults. No match is an empty slice, not an error.
func (s *Store) FindEligible(ctx context.Context, point models.GeoPoint, radiusMeters float64, bloodType models.BloodType, requireAvailable bool, limit int64) ([]models.Donor, error) {
	if err := geo.ValidatePoint(point); err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		radiusMeters = DefaultRadiusMeters
	}
	if limit <= 0 {
		limit = DefaultMatchLimit
	}

	query := bson.M{"blood_type": bloodType}
	if requireAvailable {
		query["available"] = true
	}

	pipeline := mongo.Pipeline{
		{{Key: "$geoNear", Value: bson.M{
			"near":          point,
			"distanceField": "distance_meters",
			"maxDistance":   radiusMeters,
			"spherical":     true,
			"query":         query,
		}}},
		{{Key: "$limit", Value: limit}},
	}

	cur, err := s.c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("geo match: %w", err)
	}
	defer cur.Close(ctx)

	out := []models.Donor{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
