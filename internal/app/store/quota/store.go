// internal/app/store/quota/store.go
package quotastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DailyRequestLimit is the number of non-emergency requests a requester may
// submit per calendar day. Emergency requests are never counted.
const DailyRequestLimit = 15

// ErrLimitExceeded is returned when a requester is over the daily limit.
var ErrLimitExceeded = errors.New("daily request limit exceeded")

// DayKey formats t as the calendar-day bucket key. The caller passes the
// time already shifted into the requester's local day (engine policy).
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// quotaDoc is one requester's counter for one calendar day.
type quotaDoc struct {
	RequesterID primitive.ObjectID `bson:"requester_id"`
	Day         string             `bson:"day"`
	Count       int                `bson:"count"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

// Store tracks per-requester, per-day submission counts in the
// request_quotas collection.
//
// CheckAndRecord is a single server-side increment-and-return, so two
// simultaneous submissions can never both slip under the limit: whichever
// $inc lands second observes the other's count. A TTL index on updated_at
// (ensured at startup) discards stale day buckets.
type Store struct {
	c     *mongo.Collection
	limit int
}

// New creates a Store over the request_quotas collection with the default
// daily limit.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("request_quotas"), limit: DailyRequestLimit}
}

// NewWithLimit creates a Store with a custom limit, for tests and staging.
func NewWithLimit(db *mongo.Database, limit int) *Store {
	if limit <= 0 {
		limit = DailyRequestLimit
	}
	return &Store{c: db.Collection("request_quotas"), limit: limit}
}

// Limit returns the configured daily limit.
func (s *Store) Limit() int { return s.limit }

// CheckAndRecord atomically increments the requester's counter for the given
// day and returns ErrLimitExceeded when the incremented count is over the
// limit. A denied attempt still counts; once over, a requester stays denied
// for the rest of the day.
func (s *Store) CheckAndRecord(ctx context.Context, requesterID primitive.ObjectID, day string) error {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc quotaDoc
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"requester_id": requesterID, "day": day},
		bson.M{
			"$inc": bson.M{"count": 1},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
		opts,
	).Decode(&doc)
	if err != nil {
		return fmt.Errorf("quota increment: %w", err)
	}

	if doc.Count > s.limit {
		return ErrLimitExceeded
	}
	return nil
}
