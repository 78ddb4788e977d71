// internal/app/store/quota/store_test.go
package quotastore_test

import (
	"errors"
	"sync"
	"testing"

	quotastore "github.com/bloodbridge/bloodbridge/internal/app/store/quota"
	"github.com/bloodbridge/bloodbridge/internal/app/system/indexes"
	"github.com/bloodbridge/bloodbridge/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_DailyLimitEnforced(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := quotastore.NewWithLimit(db, 3)
	requester := primitive.NewObjectID()

	for i := 0; i < 3; i++ {
		if err := store.CheckAndRecord(ctx, requester, "2026-08-29"); err != nil {
			t.Fatalf("submission %d: %v", i+1, err)
		}
	}
	if err := store.CheckAndRecord(ctx, requester, "2026-08-29"); !errors.Is(err, quotastore.ErrLimitExceeded) {
		t.Fatalf("over-limit err = %v, want ErrLimitExceeded", err)
	}

	// A different day starts a fresh counter.
	if err := store.CheckAndRecord(ctx, requester, "2026-08-30"); err != nil {
		t.Fatalf("next day: %v", err)
	}
	// A different requester is unaffected.
	if err := store.CheckAndRecord(ctx, primitive.NewObjectID(), "2026-08-29"); err != nil {
		t.Fatalf("other requester: %v", err)
	}
}

// Concurrent submissions must be counted exactly: with limit n and 2n
// concurrent calls, exactly n succeed. The atomic upsert makes this hold
// without any locking in the caller.
func TestStore_ConcurrentExactness(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}

	const limit = 5
	store := quotastore.NewWithLimit(db, limit)
	requester := primitive.NewObjectID()

	var wg sync.WaitGroup
	results := make(chan error, 2*limit)
	for i := 0; i < 2*limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.CheckAndRecord(ctx, requester, "2026-08-29")
		}()
	}
	wg.Wait()
	close(results)

	allowed, denied := 0, 0
	for err := range results {
		switch {
		case err == nil:
			allowed++
		case errors.Is(err, quotastore.ErrLimitExceeded):
			denied++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if allowed != limit || denied != limit {
		t.Fatalf("allowed/denied = %d/%d, want %d/%d", allowed, denied, limit, limit)
	}
}
