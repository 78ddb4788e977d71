// internal/app/store/requests/memory.go
package requeststore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bloodbridge/bloodbridge/internal/app/system/geo"
	"github.com/bloodbridge/bloodbridge/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is an in-memory request store with the same contract as Store,
// including revision semantics. It backs engine and handler tests so the
// state-machine invariants run without a database.
type Memory struct {
	mu   sync.Mutex
	reqs map[primitive.ObjectID]*models.Request
}

// NewMemory creates an empty in-memory request store.
func NewMemory() *Memory {
	return &Memory{reqs: make(map[primitive.ObjectID]*models.Request)}
}

func (m *Memory) Create(_ context.Context, req *models.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	req.ID = primitive.NewObjectID()
	req.Status = req.Kind.InitialStatus()
	req.Responses = []models.ResponseEntry{}
	req.Revision = 1
	req.CreatedAt = now
	req.UpdatedAt = now

	cp := *req
	m.reqs[req.ID] = &cp
	return nil
}

func (m *Memory) GetByID(_ context.Context, id primitive.ObjectID) (*models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(id)
}

func (m *Memory) getLocked(id primitive.ObjectID) (*models.Request, error) {
	req, ok := m.reqs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *req
	cp.Responses = append([]models.ResponseEntry{}, req.Responses...)
	return &cp, nil
}

func (m *Memory) ListByRequester(_ context.Context, requesterID primitive.ObjectID) ([]models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.Request{}
	for _, req := range m.reqs {
		if req.RequesterID == requesterID {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListNearby(_ context.Context, point models.GeoPoint, radiusMeters float64, limit int64) ([]models.Request, error) {
	if radiusMeters <= 0 {
		radiusMeters = DefaultNearbyRadiusMeters
	}
	if limit <= 0 {
		limit = DefaultNearbyLimit
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	type withDist struct {
		req  models.Request
		dist float64
	}
	var matched []withDist
	for _, req := range m.reqs {
		switch req.Status {
		case models.StatusPending, models.StatusActive, models.StatusPartiallyFulfilled:
		default:
			continue
		}
		d := geo.DistanceMeters(point, req.Location)
		if d <= radiusMeters {
			matched = append(matched, withDist{req: *req, dist: d})
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].dist < matched[j].dist })

	out := []models.Request{}
	for i, mr := range matched {
		if int64(i) >= limit {
			break
		}
		out = append(out, mr.req)
	}
	return out, nil
}

// ApplyResponse mirrors Store.ApplyResponse. The single mutex already
// serializes writers, but the revision check is kept so the memory store
// exercises the same code path the Mongo store does.
func (m *Memory) ApplyResponse(ctx context.Context, requestID, donorID primitive.ObjectID, donorName, status string, now time.Time) (*models.Request, models.TransitionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.getLocked(requestID)
	if err != nil {
		return nil, models.TransitionResult{}, err
	}

	loaded := req.Revision
	res, err := models.ApplyResponse(req, donorID, donorName, status, now)
	if err != nil {
		return nil, models.TransitionResult{}, err
	}

	stored := m.reqs[requestID]
	if stored.Revision != loaded {
		return nil, models.TransitionResult{}, ErrRevisionExhausted
	}
	req.Revision = loaded + 1
	m.reqs[requestID] = req

	cp := *req
	cp.Responses = append([]models.ResponseEntry{}, req.Responses...)
	return &cp, res, nil
}

func (m *Memory) Cancel(_ context.Context, requestID primitive.ObjectID, now time.Time) (*models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.getLocked(requestID)
	if err != nil {
		return nil, err
	}
	if err := models.Cancel(req, now); err != nil {
		return nil, err
	}
	req.Revision++
	m.reqs[requestID] = req

	cp := *req
	return &cp, nil
}

func (m *Memory) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, req := range m.reqs {
		if models.Expire(req, now) {
			req.Revision++
			n++
		}
	}
	return n, nil
}
