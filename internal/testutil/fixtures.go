// internal/testutil/fixtures.go
package testutil

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bloodbridge/bloodbridge/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that call handlers directly without a router.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser inserts a minimal user record and returns its id.
func (f *Fixtures) CreateUser(ctx context.Context, fullName, email string) primitive.ObjectID {
	f.t.Helper()

	id := primitive.NewObjectID()
	now := time.Now().UTC()
	_, err := f.db.Collection("users").InsertOne(ctx, map[string]any{
		"_id":        id,
		"full_name":  fullName,
		"email":      strings.ToLower(email),
		"created_at": now,
		"updated_at": now,
	})
	if err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return id
}

// CreateDonor inserts a donor record at the given location.
func (f *Fixtures) CreateDonor(ctx context.Context, fullName string, bloodType models.BloodType, lng, lat float64, available bool) models.Donor {
	f.t.Helper()

	now := time.Now().UTC()
	d := models.Donor{
		ID:        primitive.NewObjectID(),
		UserID:    primitive.NewObjectID(),
		FullName:  fullName,
		Email:     strings.ToLower(fullName) + "@test.example",
		BloodType: bloodType,
		Location:  models.NewGeoPoint(lng, lat),
		Available: available,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := f.db.Collection("donors").InsertOne(ctx, d); err != nil {
		f.t.Fatalf("failed to create test donor: %v", err)
	}
	return d
}

// CreateRequest inserts a request in its initial status with revision 1,
// the shape the request store produces on Create.
func (f *Fixtures) CreateRequest(ctx context.Context, kind models.RequestKind, requesterID primitive.ObjectID, bloodType models.BloodType, units int, lng, lat float64, expiresAt *time.Time) models.Request {
	f.t.Helper()

	now := time.Now().UTC()
	req := models.Request{
		ID:            primitive.NewObjectID(),
		Kind:          kind,
		RequesterID:   requesterID,
		RequesterName: "Test Requester",
		BloodType:     bloodType,
		UnitsNeeded:   units,
		Location:      models.NewGeoPoint(lng, lat),
		Status:        kind.InitialStatus(),
		Responses:     []models.ResponseEntry{},
		ExpiresAt:     expiresAt,
		Revision:      1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := f.db.Collection("blood_requests").InsertOne(ctx, req); err != nil {
		f.t.Fatalf("failed to create test request: %v", err)
	}
	return req
}
