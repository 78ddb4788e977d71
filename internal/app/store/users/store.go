// internal/app/store/users/store.go

// Package userstore is a read-only view over the externally managed users
// collection. The engine only ever needs a contact lookup; account creation
// and profile management live outside this service.
package userstore

import (
	"context"
	"errors"

	"github.com/bloodbridge/bloodbridge/internal/app/system/normalize"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when no user exists with the given id.
var ErrNotFound = errors.New("user not found")

// Store reads user contact details from MongoDB.
type Store struct {
	col *mongo.Collection
}

// New creates a Store over the users collection of db.
func New(db *mongo.Database) *Store {
	return &Store{col: db.Collection("users")}
}

// Contact returns the display name and email address for a user id.
func (s *Store) Contact(ctx context.Context, userID primitive.ObjectID) (string, string, error) {
	var doc struct {
		FullName string `bson:"full_name"`
		Email    string `bson:"email"`
	}
	proj := options.FindOne().SetProjection(bson.M{"full_name": 1, "email": 1})
	err := s.col.FindOne(ctx, bson.M{"_id": userID}, proj).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", err
	}
	return normalize.Name(doc.FullName), normalize.Email(doc.Email), nil
}
