// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// quotaTTLSeconds drops quota counters two days after their last write. The
// day key makes stale counters harmless; the TTL just keeps the collection
// from growing forever.
const quotaTTLSeconds = 48 * 60 * 60

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
We aggregate errors so any problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	if err := ensureDonors(ctx, db); err != nil {
		problems = append(problems, "donors: "+err.Error())
	}
	if err := ensureRequests(ctx, db); err != nil {
		problems = append(problems, "blood_requests: "+err.Error())
	}
	if err := ensureQuotas(ctx, db); err != nil {
		problems = append(problems, "request_quotas: "+err.Error())
	}
	if err := ensureNotifications(ctx, db); err != nil {
		problems = append(problems, "notifications: "+err.Error())
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func ensureDonors(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection("donors")
	return ensureIndexSet(ctx, coll, []mongo.IndexModel{
		{
			// $geoNear requires exactly this geospatial index.
			Keys:    bson.D{{Key: "location", Value: "2dsphere"}},
			Options: options.Index().SetName("geo_donors_location"),
		},
		{
			// Covers the eligibility filter that runs alongside $geoNear.
			Keys: bson.D{
				{Key: "blood_type", Value: 1},
				{Key: "available", Value: 1},
			},
			Options: options.Index().SetName("idx_donors_bloodtype_available"),
		},
	})
}

func ensureRequests(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection("blood_requests")
	return ensureIndexSet(ctx, coll, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "location", Value: "2dsphere"}},
			Options: options.Index().SetName("geo_requests_location"),
		},
		{
			// Requester history listing, newest first.
			Keys: bson.D{
				{Key: "requester_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_requests_requester_created"),
		},
		{
			// The expiry sweeper scans active emergencies by deadline.
			Keys: bson.D{
				{Key: "kind", Value: 1},
				{Key: "status", Value: 1},
				{Key: "expires_at", Value: 1},
			},
			Options: options.Index().SetName("idx_requests_kind_status_expires"),
		},
	})
}

func ensureQuotas(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection("request_quotas")
	ttl := int32(quotaTTLSeconds)
	return ensureIndexSet(ctx, coll, []mongo.IndexModel{
		{
			// One counter document per requester per calendar day; the atomic
			// upsert in the quota store depends on this being unique.
			Keys: bson.D{
				{Key: "requester_id", Value: 1},
				{Key: "day", Value: 1},
			},
			Options: options.Index().SetName("uniq_quotas_requester_day").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetName("ttl_quotas_updated").SetExpireAfterSeconds(ttl),
		},
	})
}

func ensureNotifications(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection("notifications")
	return ensureIndexSet(ctx, coll, []mongo.IndexModel{
		{
			// Recipient history listing, newest first.
			Keys: bson.D{
				{Key: "recipient_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_notifications_recipient_created"),
		},
		{
			// Unread badge count.
			Keys: bson.D{
				{Key: "recipient_id", Value: 1},
				{Key: "read", Value: 1},
			},
			Options: options.Index().SetName("idx_notifications_recipient_read"),
		},
	})
}

/* -------------------------------------------------------------------------- */
/* Core helper: reconcile a set of desired indexes for one collection         */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func sameBoolPtr(a, b *bool) bool {
	av := a != nil && *a
	bv := b != nil && *b
	return av == bv
}

// Best-effort duplicate-detector (works cross-vendors)
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 { // E11000 duplicate key error index
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

// loadExisting maps key signature to the index that already carries it.
func loadExisting(ctx context.Context, coll *mongo.Collection) (map[string]existingIndex, error) {
	existing := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return existing, err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		existing[keySig(idx.Key)] = idx
	}
	return existing, cur.Err()
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, desired []mongo.IndexModel) error {
	var errs []string

	for _, m := range desired {
		var desiredName string
		var desiredUnique *bool
		if m.Options != nil {
			if m.Options.Name != nil {
				desiredName = *m.Options.Name
			}
			desiredUnique = m.Options.Unique
		}
		desiredSig := keySig(m.Keys.(bson.D))
		start := time.Now()

		existing, err := loadExisting(ctx, coll)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s(%s): list failed: %v", coll.Name(), desiredName, err))
			continue
		}

		if ex, ok := existing[desiredSig]; ok {
			if sameBoolPtr(desiredUnique, ex.Unique) && (desiredName == "" || ex.Name == desiredName) {
				zap.L().Info("reusing existing index",
					zap.String("collection", coll.Name()),
					zap.String("name", ex.Name),
					zap.String("keys", desiredSig))
				continue
			}
			// Name or options differ: drop and recreate under the desired shape.
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), desiredName, err))
				continue
			}
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			if isDuplicateKeyErr(err) && desiredUnique != nil && *desiredUnique {
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index, duplicates present", coll.Name(), desiredName))
			} else {
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), desiredName, err))
			}
			continue
		}
		zap.L().Info("index created",
			zap.String("collection", coll.Name()),
			zap.String("name", desiredName),
			zap.String("keys", desiredSig),
			zap.Bool("unique", desiredUnique != nil && *desiredUnique),
			zap.String("took", time.Since(start).String()))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
