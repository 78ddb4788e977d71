// internal/app/store/quota/memory.go
package quotastore

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is an in-memory quota counter with the same contract as Store.
type Memory struct {
	mu     sync.Mutex
	counts map[string]int
	limit  int
}

// NewMemory creates an in-memory quota store with the given limit; zero or
// below uses the default.
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = DailyRequestLimit
	}
	return &Memory{counts: make(map[string]int), limit: limit}
}

// Limit returns the configured daily limit.
func (m *Memory) Limit() int { return m.limit }

func (m *Memory) CheckAndRecord(_ context.Context, requesterID primitive.ObjectID, day string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := requesterID.Hex() + "/" + day
	m.counts[key]++
	if m.counts[key] > m.limit {
		return ErrLimitExceeded
	}
	return nil
}
