// internal/app/features/donors/handler.go

// Package donors exposes the donor discovery query. Contact details stay
// out of the responses; reaching a donor happens through the notification
// channels, never by handing their email or phone to another user.
package donors

import (
	"net/http"
	"strconv"

	"github.com/bloodbridge/bloodbridge/internal/app/features/shared"
	"github.com/bloodbridge/bloodbridge/internal/app/system/match"
	"github.com/bloodbridge/bloodbridge/internal/app/system/normalize"
	"github.com/bloodbridge/bloodbridge/internal/domain/models"
	"go.uber.org/zap"
)

// Handler holds the dependencies for the donor endpoints.
type Handler struct {
	Engine *match.Engine
	Log    *zap.Logger
}

// NewHandler constructs a donors Handler.
func NewHandler(engine *match.Engine, logger *zap.Logger) *Handler {
	return &Handler{Engine: engine, Log: logger}
}

// donorView is the public projection of a donor record.
type donorView struct {
	ID        string          `json:"id"`
	FullName  string          `json:"full_name"`
	BloodType string          `json:"blood_type"`
	Location  models.GeoPoint `json:"location"`
	Available bool            `json:"available"`
}

// ServeNearby handles GET /donors/nearby?lng=&lat=&blood_type=&radius=&limit=.
// By default only available donors are returned; available=false widens the
// query to every registered donor of the blood type.
func (h *Handler) ServeNearby(w http.ResponseWriter, r *http.Request) {
	if _, err := shared.CurrentUserID(r); err != nil {
		shared.WriteDomainError(w, err)
		return
	}

	q := r.URL.Query()
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	if errLng != nil || errLat != nil {
		shared.WriteError(w, http.StatusBadRequest, "lng and lat are required")
		return
	}
	bloodType := normalize.BloodType(q.Get("blood_type"))
	radius, _ := strconv.ParseFloat(q.Get("radius"), 64)
	limit, _ := strconv.ParseInt(q.Get("limit"), 10, 64)
	requireAvailable := q.Get("available") != "false"

	matches, err := h.Engine.FindEligible(r.Context(), lng, lat, radius, bloodType, requireAvailable, limit)
	if err != nil {
		shared.WriteDomainError(w, err)
		return
	}

	views := make([]donorView, 0, len(matches))
	for _, d := range matches {
		views = append(views, donorView{
			ID:        d.ID.Hex(),
			FullName:  d.FullName,
			BloodType: string(d.BloodType),
			Location:  d.Location,
			Available: d.Available,
		})
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"donors": views})
}
