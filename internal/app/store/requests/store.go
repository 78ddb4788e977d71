// internal/app/store/requests/store.go
package requeststore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bloodbridge/bloodbridge/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// maxApplyRetries bounds the optimistic-concurrency retry loop. Five
	// attempts is far beyond what bursty donor responses produce in
	// practice; hitting the bound indicates a pathological writer.
	maxApplyRetries = 5

	// DefaultNearbyRadiusMeters is the search radius used when the caller
	// does not specify one (10 km).
	DefaultNearbyRadiusMeters = 10000

	// DefaultNearbyLimit caps how many requests one nearby listing returns.
	DefaultNearbyLimit = 100
)

var (
	// ErrNotFound is returned when no request exists for the given id.
	ErrNotFound = errors.New("request not found")
	// ErrRevisionExhausted is returned when the revision-checked write kept
	// losing to concurrent writers for maxApplyRetries rounds.
	ErrRevisionExhausted = errors.New("request write contention: retries exhausted")
)

// Store persists blood requests (routine and emergency) in the
// blood_requests collection.
//
// All mutations go through revision-checked writes: the document is loaded
// with its revision, recomputed in memory with the models state machine, and
// written back conditioned on that revision with a $inc on the revision
// field. A lost race reloads and retries, bounded by maxApplyRetries.
type Store struct {
	c *mongo.Collection
}

// New creates a Store over the blood_requests collection.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("blood_requests")}
}

// Create inserts a new request. The caller supplies kind, requester, blood
// type, units, location, note and (for emergencies) expiry; Create assigns
// the id, initial status, revision, and timestamps.
func (s *Store) Create(ctx context.Context, req *models.Request) error {
	now := time.Now().UTC()
	req.ID = primitive.NewObjectID()
	req.Status = req.Kind.InitialStatus()
	req.Responses = []models.ResponseEntry{}
	req.Revision = 1
	req.CreatedAt = now
	req.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, req); err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// GetByID loads a request by id.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Request, error) {
	var req models.Request
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&req)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// ListByRequester returns the requester's requests, newest first.
func (s *Store) ListByRequester(ctx context.Context, requesterID primitive.ObjectID) ([]models.Request, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.c.Find(ctx, bson.M{"requester_id": requesterID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Request{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListNearby returns open requests within radiusMeters of point, ordered by
// ascending distance. Open means any non-terminal status. Non-positive
// radiusMeters or limit fall back to the package defaults.
func (s *Store) ListNearby(ctx context.Context, point models.GeoPoint, radiusMeters float64, limit int64) ([]models.Request, error) {
	if radiusMeters <= 0 {
		radiusMeters = DefaultNearbyRadiusMeters
	}
	if limit <= 0 {
		limit = DefaultNearbyLimit
	}
	pipeline := mongo.Pipeline{
		{{Key: "$geoNear", Value: bson.M{
			"near":          point,
			"distanceField": "distance_meters",
			"maxDistance":   radiusMeters,
			"spherical":     true,
			"query": bson.M{
				"status": bson.M{"$in": []string{
					models.StatusPending,
					models.StatusActive,
					models.StatusPartiallyFulfilled,
				}},
			},
		}}},
		{{Key: "$limit", Value: limit}},
	}

	cur, err := s.c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("nearby requests: %w", err)
	}
	defer cur.Close(ctx)

	out := []models.Request{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyResponse records a donor's response with the models state machine and
// persists the result atomically against the revision it loaded, retrying on
// conflict. Returns the updated request and the transition result.
//
// Conflict outcomes from the state machine (models.ErrRequestClosed,
// models.ErrRequestExpired, models.ErrBadResponseStatus) pass through
// unwrapped so callers can match them with errors.Is.
func (s *Store) ApplyResponse(ctx context.Context, requestID, donorID primitive.ObjectID, donorName, status string, now time.Time) (*models.Request, models.TransitionResult, error) {
	for attempt := 0; attempt < maxApplyRetries; attempt++ {
		req, err := s.GetByID(ctx, requestID)
		if err != nil {
			return nil, models.TransitionResult{}, err
		}

		loaded := req.Revision
		res, err := models.ApplyResponse(req, donorID, donorName, status, now)
		if err != nil {
			return nil, models.TransitionResult{}, err
		}

		ok, err := s.writeRevisioned(ctx, req, loaded)
		if err != nil {
			return nil, models.TransitionResult{}, err
		}
		if ok {
			req.Revision = loaded + 1
			return req, res, nil
		}
		// Lost the race: another response landed first. Reload and rerun the
		// recompute so donatedCount reflects the winner's write.
	}
	return nil, models.TransitionResult{}, ErrRevisionExhausted
}

// Cancel moves a request to cancelled via the same revision-checked write.
func (s *Store) Cancel(ctx context.Context, requestID primitive.ObjectID, now time.Time) (*models.Request, error) {
	for attempt := 0; attempt < maxApplyRetries; attempt++ {
		req, err := s.GetByID(ctx, requestID)
		if err != nil {
			return nil, err
		}

		loaded := req.Revision
		if err := models.Cancel(req, now); err != nil {
			return nil, err
		}

		ok, err := s.writeRevisioned(ctx, req, loaded)
		if err != nil {
			return nil, err
		}
		if ok {
			req.Revision = loaded + 1
			return req, nil
		}
	}
	return nil, ErrRevisionExhausted
}

// writeRevisioned persists the recomputed request conditioned on the
// revision it was loaded at. Returns false when the condition missed (a
// concurrent writer advanced the revision first).
func (s *Store) writeRevisioned(ctx context.Context, req *models.Request, loadedRevision int64) (bool, error) {
	result, err := s.c.UpdateOne(ctx,
		bson.M{"_id": req.ID, "revision": loadedRevision},
		bson.M{
			"$set": bson.M{
				"status":       req.Status,
				"responses":    req.Responses,
				"units_needed": req.UnitsNeeded,
				"updated_at":   req.UpdatedAt,
			},
			"$inc": bson.M{"revision": 1},
		},
	)
	if err != nil {
		return false, fmt.Errorf("revisioned write: %w", err)
	}
	return result.MatchedCount == 1, nil
}

// ExpireDue flips visibly-expired emergency requests to expired for listing
// purposes. Correctness never depends on this: ApplyResponse checks expiry
// lazily on every response.
func (s *Store) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.c.UpdateMany(ctx,
		bson.M{
			"kind":       models.KindEmergency,
			"status":     models.StatusActive,
			"expires_at": bson.M{"$lt": now},
		},
		bson.M{
			"$set": bson.M{"status": models.StatusExpired, "updated_at": now},
			"$inc": bson.M{"revision": 1},
		},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}
