// internal/app/store/notifications/memory.go
package notificationstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bloodbridge/bloodbridge/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is an in-memory read-receipt store with the same contract as Store.
type Memory struct {
	mu    sync.Mutex
	notes map[primitive.ObjectID]models.Notification
}

// NewMemory creates an empty in-memory notification store.
func NewMemory() *Memory {
	return &Memory{notes: make(map[primitive.ObjectID]models.Notification)}
}

func (m *Memory) Record(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n.ID = primitive.NewObjectID()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	m.notes[n.ID] = *n
	return nil
}

func (m *Memory) ListByRecipient(_ context.Context, recipientID primitive.ObjectID, limit int64) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}
	out := []models.Notification{}
	for _, n := range m.notes {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) MarkRead(_ context.Context, id, recipientID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notes[id]
	if !ok || n.RecipientID != recipientID {
		return ErrNotFound
	}
	n.Read = true
	m.notes[id] = n
	return nil
}

func (m *Memory) UnreadCount(_ context.Context, recipientID primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, note := range m.notes {
		if note.RecipientID == recipientID && !note.Read {
			n++
		}
	}
	return n, nil
}
