// internal/app/features/requests/handler.go

// Package requests is the HTTP surface for the request lifecycle: submit
// (routine and emergency), donor responses, cancellation, and the read
// queries.
package requests

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/bloodbridge/bloodbridge/internal/app/features/shared"
	"github.com/bloodbridge/bloodbridge/internal/app/system/match"
	"github.com/bloodbridge/bloodbridge/internal/app/system/normalize"
	"github.com/bloodbridge/bloodbridge/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Reader is the query-side store surface. Implemented by requeststore.Store
// and requeststore.Memory.
type Reader interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Request, error)
	ListByRequester(ctx context.Context, requesterID primitive.ObjectID) ([]models.Request, error)
	ListNearby(ctx context.Context, point models.GeoPoint, radiusMeters float64, limit int64) ([]models.Request, error)
}

// Handler holds the dependencies for the request endpoints.
type Handler struct {
	Engine *match.Engine
	Reader Reader
	Log    *zap.Logger
}

// NewHandler constructs a requests Handler.
func NewHandler(engine *match.Engine, reader Reader, logger *zap.Logger) *Handler {
	return &Handler{Engine: engine, Reader: reader, Log: logger}
}

// submitPayload is the request body for both submit endpoints. ExpiresAt is
// required for emergencies and ignored for routine requests.
type submitPayload struct {
	RequesterName string     `json:"requester_name"`
	BloodType     string     `json:"blood_type"`
	UnitsNeeded   int        `json:"units_needed"`
	Lng           float64    `json:"lng"`
	Lat           float64    `json:"lat"`
	Note          string     `json:"note"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// ServeSubmit handles POST /requests, creating a routine request.
func (h *Handler) ServeSubmit(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, models.KindRoutine)
}

// ServeSubmitEmergency handles POST /requests/emergency.
func (h *Handler) ServeSubmitEmergency(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, models.KindEmergency)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, kind models.RequestKind) {
	userID, err := shared.CurrentUserID(r)
	if err != nil {
		shared.WriteDomainError(w, err)
		return
	}

	var payload submitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	draft := match.RequestDraft{
		Kind:          kind,
		RequesterID:   userID,
		RequesterName: normalize.Name(payload.RequesterName),
		BloodType:     normalize.BloodType(payload.BloodType),
		UnitsNeeded:   payload.UnitsNeeded,
		Lng:           payload.Lng,
		Lat:           payload.Lat,
		Note:          payload.Note,
	}
	if kind == models.KindEmergency {
		draft.ExpiresAt = payload.ExpiresAt
	}

	req, err := h.Engine.SubmitRequest(r.Context(), draft)
	if err != nil {
		shared.WriteDomainError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, req)
}

// respondPayload is the body for POST /requests/{id}/respond. The donor id
// is the caller's donor record; status must belong to the request kind's
// response vocabulary.
type respondPayload struct {
	DonorID string `json:"donor_id"`
	Status  string `json:"status"`
}

// ServeRespond handles POST /requests/{id}/respond.
func (h *Handler) ServeRespond(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := shared.CurrentUserID(r); err != nil {
		shared.WriteDomainError(w, err)
		return
	}

	var payload respondPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	donorID, err := primitive.ObjectIDFromHex(payload.DonorID)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid donor id")
		return
	}

	req, err := h.Engine.RespondToRequest(r.Context(), requestID, donorID, normalize.Status(payload.Status))
	if err != nil {
		shared.WriteDomainError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, req)
}

// ServeCancel handles POST /requests/{id}/cancel.
func (h *Handler) ServeCancel(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r)
	if !ok {
		return
	}
	userID, err := shared.CurrentUserID(r)
	if err != nil {
		shared.WriteDomainError(w, err)
		return
	}

	req, err := h.Engine.CancelRequest(r.Context(), requestID, userID, shared.IsAdmin(r))
	if err != nil {
		shared.WriteDomainError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, req)
}

// ServeGet handles GET /requests/{id}.
func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r)
	if !ok {
		return
	}
	req, err := h.Reader.GetByID(r.Context(), requestID)
	if err != nil {
		shared.WriteDomainError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, req)
}

// ServeList handles GET /requests?requester={id}. With no requester
// parameter it lists the caller's own requests.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	userID, err := shared.CurrentUserID(r)
	if err != nil {
		shared.WriteDomainError(w, err)
		return
	}

	requesterID := userID
	if raw := r.URL.Query().Get("requester"); raw != "" {
		requesterID, err = primitive.ObjectIDFromHex(raw)
		if err != nil {
			shared.WriteError(w, http.StatusBadRequest, "invalid requester id")
			return
		}
	}

	list, err := h.Reader.ListByRequester(r.Context(), requesterID)
	if err != nil {
		shared.WriteDomainError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"requests": list})
}

// ServeNearby handles GET /requests/nearby?lng=&lat=&radius=&limit=. It
// returns open requests ordered by distance, for donors browsing what needs
// blood around them.
func (h *Handler) ServeNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	if errLng != nil || errLat != nil {
		shared.WriteError(w, http.StatusBadRequest, "lng and lat are required")
		return
	}
	radius, _ := strconv.ParseFloat(q.Get("radius"), 64)
	limit, _ := strconv.ParseInt(q.Get("limit"), 10, 64)

	list, err := h.Reader.ListNearby(r.Context(), models.NewGeoPoint(lng, lat), radius, limit)
	if err != nil {
		shared.WriteDomainError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"requests": list})
}

// pathID parses the {id} path segment, writing a 400 on malformed input.
func pathID(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid request id")
		return primitive.NilObjectID, false
	}
	return id, true
}
