// internal/app/store/notifications/store.go
package notificationstore

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

// ErrNotFound is returned when no notification exists for the given id.
var ErrNotFound = errors.New("notification not found")

// Store persists delivered-notification records (read receipts) in the
// notifications collection. The dispatcher writes one record per successful
// channel delivery; the job queue itself is never persisted.
type Store struct {
	c *mongo.Collection
}

// New creates a Store over the notifications collection.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("notifications")}
}

// Record inserts a delivered-notification record.
func (s *Store) Record(ctx context.Context, n *models.Notification) error {
	n.ID = primitive.NewObjectID()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if _, err := s.c.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListByRecipient returns the recipient's notifications, newest first.
func (s *Store) ListByRecipient(ctx context.Context, recipientID primitive.ObjectID, limit int64) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cur, err := s.c.Find(ctx, bson.M{"recipient_id": recipientID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Notification{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead flags a notification as read by its recipient.
func (s *Store) MarkRead(ctx context.Context, id, recipientID primitive.ObjectID) error {
	result, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "recipient_id": recipientID},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UnreadCount returns how many unread notifications the recipient has.
func (s *Store) UnreadCount(ctx context.Context, recipientID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"recipient_id": recipientID, "read": false})
}
