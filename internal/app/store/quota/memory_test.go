package quotastore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestDayKey(t *testing.T) {
	at := time.Date(2025, 3, 7, 23, 59, 59, 0, time.UTC)
	if got := DayKey(at); got != "2025-03-07" {
		t.Errorf("DayKey = %q, want 2025-03-07", got)
	}
	// One second later is the next bucket.
	if got := DayKey(at.Add(time.Second)); got != "2025-03-08" {
		t.Errorf("DayKey after midnight = %q, want 2025-03-08", got)
	}
}

func TestMemory_LimitThenDeny(t *testing.T) {
	m := NewMemory(0) // default limit
	requester := primitive.NewObjectID()
	day := "2025-03-07"

	for i := 0; i < DailyRequestLimit; i++ {
		if err := m.CheckAndRecord(context.Background(), requester, day); err != nil {
			t.Fatalf("submission %d denied unexpectedly: %v", i+1, err)
		}
	}

	if err := m.CheckAndRecord(context.Background(), requester, day); !errors.Is(err, ErrLimitExceeded) {
		t.Errorf("submission %d: err = %v, want ErrLimitExceeded", DailyRequestLimit+1, err)
	}
}

func TestMemory_ResetsNextDay(t *testing.T) {
	m := NewMemory(2)
	requester := primitive.NewObjectID()

	for i := 0; i < 2; i++ {
		if err := m.CheckAndRecord(context.Background(), requester, "2025-03-07"); err != nil {
			t.Fatalf("day one submission failed: %v", err)
		}
	}
	if err := m.CheckAndRecord(context.Background(), requester, "2025-03-07"); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected denial on day one, got %v", err)
	}

	// Next calendar day starts a fresh bucket.
	if err := m.CheckAndRecord(context.Background(), requester, "2025-03-08"); err != nil {
		t.Errorf("day two submission denied: %v", err)
	}
}

func TestMemory_IndependentRequesters(t *testing.T) {
	m := NewMemory(1)
	day := "2025-03-07"

	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	if err := m.CheckAndRecord(context.Background(), a, day); err != nil {
		t.Fatalf("requester a denied: %v", err)
	}
	if err := m.CheckAndRecord(context.Background(), b, day); err != nil {
		t.Errorf("requester b shares a's bucket: %v", err)
	}
}

// Concurrent submissions from one requester must never jointly exceed the
// limit: with limit n and 2n goroutines, exactly n succeed.
func TestMemory_ConcurrentSubmissions(t *testing.T) {
	const limit = 8
	m := NewMemory(limit)
	requester := primitive.NewObjectID()
	day := "2025-03-07"

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 2*limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.CheckAndRecord(context.Background(), requester, day); err == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != limit {
		t.Errorf("allowed %d submissions, want exactly %d", allowed, limit)
	}
}
