// internal/app/store/donors/memory.go
package donorstore

import (
	"context"
	"sort"
	"sync"

	"github.com/bloodbridge/bloodbridge/internal/app/system/geo"
	"github.com/bloodbridge/bloodbridge/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is an in-memory donor index with the same contract as Store. The
// distance definition is the shared haversine, which stays within rounding
// tolerance of $geoNear so fixtures are portable between the two.
type Memory struct {
	mu     sync.RWMutex
	donors map[primitive.ObjectID]models.Donor
}

// NewMemory creates an empty in-memory donor index.
func NewMemory() *Memory {
	return &Memory{donors: make(map[primitive.ObjectID]models.Donor)}
}

// Put adds or replaces a donor record.
func (m *Memory) Put(d models.Donor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	m.donors[d.ID] = d
}

func (m *Memory) GetByID(_ context.Context, id primitive.ObjectID) (*models.Donor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.donors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *Memory) FindEligible(_ context.Context, point models.GeoPoint, radiusMeters float64, bloodType models.BloodType, requireAvailable bool, limit int64) ([]models.Donor, error) {
	if err := geo.ValidatePoint(point); err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		radiusMeters = DefaultRadiusMeters
	}
	if limit <= 0 {
		limit = DefaultMatchLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	type withDist struct {
		donor models.Donor
		dist  float64
	}
	var matched []withDist
	for _, d := range m.donors {
		if d.BloodType != bloodType {
			continue
		}
		if requireAvailable && !d.Available {
			continue
		}
		dist := geo.DistanceMeters(point, d.Location)
		if dist <= radiusMeters {
			matched = append(matched, withDist{donor: d, dist: dist})
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].dist < matched[j].dist })

	out := []models.Donor{}
	for i, md := range matched {
		if int64(i) >= limit {
			break
		}
		out = append(out, md.donor)
	}
	return out, nil
}
