// internal/app/system/match/engine.go

// Package match orchestrates the request lifecycle: validation and rate
// limiting on submit, geo matching and notification fan-out, and donor
// response handling through the optimistic request store.
package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	donorstore "github.com/bloodbridge/bloodbridge/internal/app/store/donors"
	quotastore "github.com/bloodbridge/bloodbridge/internal/app/store/quota"
	"github.com/bloodbridge/bloodbridge/internal/app/system/dispatch"
	"github.com/bloodbridge/bloodbridge/internal/app/system/geo"
	"github.com/bloodbridge/bloodbridge/internal/app/system/mailer"
	"github.com/bloodbridge/bloodbridge/internal/app/system/realtime"
	"github.com/bloodbridge/bloodbridge/internal/app/system/timeouts"
	"github.com/bloodbridge/bloodbridge/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ErrValidation marks malformed input: bad coordinates, unknown blood type,
// non-positive units, emergency expiry in the past. Never retried.
var ErrValidation = errors.New("invalid request")

// ErrNotOwner is returned when someone other than the requester (or an
// admin) tries to cancel a request.
var ErrNotOwner = errors.New("not the request owner")

// RequestStore is the persistence surface the engine needs for requests.
// Implemented by requeststore.Store and requeststore.Memory.
type RequestStore interface {
	Create(ctx context.Context, req *models.Request) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Request, error)
	ApplyResponse(ctx context.Context, requestID, donorID primitive.ObjectID, donorName, status string, now time.Time) (*models.Request, models.TransitionResult, error)
	Cancel(ctx context.Context, requestID primitive.ObjectID, now time.Time) (*models.Request, error)
}

// DonorFinder answers geo matching queries. Implemented by donorstore.Store
// and donorstore.Memory.
type DonorFinder interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Donor, error)
	FindEligible(ctx context.Context, point models.GeoPoint, radiusMeters float64, bloodType models.BloodType, requireAvailable bool, limit int64) ([]models.Donor, error)
}

// Quota is the daily submission limiter. Implemented by quotastore.Store and
// quotastore.Memory.
type Quota interface {
	CheckAndRecord(ctx context.Context, requesterID primitive.ObjectID, day string) error
}

// ContactLookup resolves a user id to a notification contact. Backed by the
// external user store; the engine only ever reads.
type ContactLookup interface {
	Contact(ctx context.Context, userID primitive.ObjectID) (name, email string, err error)
}

// Notifier accepts dispatch jobs. *dispatch.Dispatcher satisfies it.
type Notifier interface {
	Enqueue(job dispatch.Job)
}

// RequestDraft is the input to SubmitRequest.
type RequestDraft struct {
	Kind          models.RequestKind
	RequesterID   primitive.ObjectID
	RequesterName string
	BloodType     models.BloodType
	UnitsNeeded   int
	Lng, Lat      float64
	Note          string
	ExpiresAt     *time.Time // required for emergency requests
}

// Engine wires the stores and the dispatcher together. All notification
// work is fire-and-forget with respect to the engine's callers: Submit and
// Respond return as soon as the state change is durably persisted.
type Engine struct {
	requests RequestStore
	donors   DonorFinder
	quota    Quota
	users    ContactLookup
	notifier Notifier
	log      *zap.Logger

	loc *time.Location
	now func() time.Time
}

// New creates an Engine. loc determines the requester-local calendar day for
// rate limiting; nil uses the server's local time.
func New(requests RequestStore, donors DonorFinder, quota Quota, users ContactLookup, notifier Notifier, loc *time.Location, logger *zap.Logger) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{
		requests: requests,
		donors:   donors,
		quota:    quota,
		users:    users,
		notifier: notifier,
		log:      logger,
		loc:      loc,
		now:      time.Now,
	}
}

// SubmitRequest validates and persists a new request, then kicks off donor
// matching and notification fan-out in the background. The returned request
// reflects the persisted state; fan-out failures never surface here.
func (e *Engine) SubmitRequest(ctx context.Context, draft RequestDraft) (*models.Request, error) {
	if err := e.validateDraft(draft); err != nil {
		return nil, err
	}

	if draft.Kind != models.KindEmergency {
		day := quotastore.DayKey(e.now().In(e.loc))
		if err := e.quota.CheckAndRecord(ctx, draft.RequesterID, day); err != nil {
			return nil, err
		}
	}

	req := &models.Request{
		Kind:          draft.Kind,
		RequesterID:   draft.RequesterID,
		RequesterName: draft.RequesterName,
		BloodType:     draft.BloodType,
		UnitsNeeded:   draft.UnitsNeeded,
		Location:      models.NewGeoPoint(draft.Lng, draft.Lat),
		Note:          draft.Note,
		ExpiresAt:     draft.ExpiresAt,
	}
	if err := e.requests.Create(ctx, req); err != nil {
		return nil, err
	}

	// Fan-out runs detached from the caller's context: the request write
	// already succeeded and the API contract is bounded latency.
	snapshot := *req
	go e.fanOut(snapshot)

	return req, nil
}

func (e *Engine) validateDraft(draft RequestDraft) error {
	if draft.RequesterID.IsZero() {
		return fmt.Errorf("%w: missing requester", ErrValidation)
	}
	if !draft.BloodType.Valid() {
		return fmt.Errorf("%w: unknown blood type %q", ErrValidation, string(draft.BloodType))
	}
	if draft.UnitsNeeded <= 0 {
		return fmt.Errorf("%w: units needed must be positive", ErrValidation)
	}
	if err := geo.ValidateLngLat(draft.Lng, draft.Lat); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if draft.Kind == models.KindEmergency {
		if draft.ExpiresAt == nil {
			return fmt.Errorf("%w: emergency request needs an expiry", ErrValidation)
		}
		if !draft.ExpiresAt.After(e.now()) {
			return fmt.Errorf("%w: emergency expiry is in the past", ErrValidation)
		}
	}
	return nil
}

// RespondToRequest records a donor's response. On the transition into
// fulfilled it additionally queues a one-time, best-effort notification to
// the requester.
func (e *Engine) RespondToRequest(ctx context.Context, requestID, donorID primitive.ObjectID, status string) (*models.Request, error) {
	donor, err := e.donors.GetByID(ctx, donorID)
	if err != nil {
		return nil, err
	}

	req, res, err := e.requests.ApplyResponse(ctx, requestID, donorID, donor.FullName, status, e.now())
	if err != nil {
		return nil, err
	}

	if res.BecameFulfilled {
		snapshot := *req
		go e.notifyFulfilled(snapshot)
	}
	return req, nil
}

// CancelRequest cancels a request on behalf of its owner or an admin.
func (e *Engine) CancelRequest(ctx context.Context, requestID, byUserID primitive.ObjectID, isAdmin bool) (*models.Request, error) {
	req, err := e.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && req.RequesterID != byUserID {
		return nil, ErrNotOwner
	}
	return e.requests.Cancel(ctx, requestID, e.now())
}

// FindEligible is the read-only nearby-donor query exposed to the API layer.
func (e *Engine) FindEligible(ctx context.Context, lng, lat, radiusMeters float64, bloodType models.BloodType, requireAvailable bool, limit int64) ([]models.Donor, error) {
	if err := geo.ValidateLngLat(lng, lat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !bloodType.Valid() {
		return nil, fmt.Errorf("%w: unknown blood type %q", ErrValidation, string(bloodType))
	}
	return e.donors.FindEligible(ctx, models.NewGeoPoint(lng, lat), radiusMeters, bloodType, requireAvailable, limit)
}

// realtimePayload is the push message body. Purely informational and safe to
// receive more than once.
type realtimePayload struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	BloodType string `json:"blood_type"`
	Units     int    `json:"units"`
	Emergency bool   `json:"emergency"`
}

// fanOut matches eligible donors and queues one notification job per donor,
// plus a single blood-type-topic push for subscribed listeners. Runs on its
// own goroutine with its own deadline.
func (e *Engine) fanOut(req models.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Long())
	defer cancel()

	matches, err := e.donors.FindEligible(ctx, req.Location, donorstore.DefaultRadiusMeters, req.BloodType, true, donorstore.DefaultMatchLimit)
	if err != nil {
		e.log.Error("donor matching failed",
			zap.String("request_id", req.ID.Hex()),
			zap.Error(err))
		return
	}

	payload, _ := json.Marshal(realtimePayload{
		Type:      "new_request",
		RequestID: req.ID.Hex(),
		BloodType: string(req.BloodType),
		Units:     req.UnitsNeeded,
		Emergency: req.IsEmergency(),
	})

	var expiresIn string
	if req.IsEmergency() && req.ExpiresAt != nil {
		expiresIn = formatDuration(time.Until(*req.ExpiresAt))
	}

	for _, donor := range matches {
		email := mailer.BuildRequestEmail(mailer.RequestEmailData{
			DonorName:     donor.FullName,
			RequesterName: req.RequesterName,
			BloodType:     string(req.BloodType),
			Units:         req.UnitsNeeded,
			Emergency:     req.IsEmergency(),
			Note:          req.Note,
			ExpiresIn:     expiresIn,
		})
		email.To = donor.Email

		job := dispatch.NewJob(donor.UserID, req.ID)
		job.Email = email
		job.RealtimeTopic = realtime.UserTopic(donor.UserID)
		job.RealtimePayload = payload
		e.notifier.Enqueue(job)
	}

	// One push to the blood-type topic for listeners subscribed by group
	// rather than by identity.
	topicJob := dispatch.NewJob(primitive.NilObjectID, req.ID)
	topicJob.RealtimeTopic = realtime.BloodTypeTopic(string(req.BloodType))
	topicJob.RealtimePayload = payload
	e.notifier.Enqueue(topicJob)

	e.log.Info("request fan-out queued",
		zap.String("request_id", req.ID.Hex()),
		zap.String("blood_type", string(req.BloodType)),
		zap.Int("matched_donors", len(matches)))
}

// notifyFulfilled queues the one-time requester notification after a request
// transitions to fulfilled. Best effort.
func (e *Engine) notifyFulfilled(req models.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Medium())
	defer cancel()

	name, emailAddr, err := e.users.Contact(ctx, req.RequesterID)
	if err != nil {
		e.log.Warn("requester contact lookup failed",
			zap.String("request_id", req.ID.Hex()),
			zap.Error(err))
		name = req.RequesterName
	}

	email := mailer.BuildFulfilledEmail(mailer.FulfilledEmailData{
		RequesterName: name,
		BloodType:     string(req.BloodType),
		Units:         req.UnitsNeeded,
	})
	email.To = emailAddr

	payload, _ := json.Marshal(realtimePayload{
		Type:      "request_fulfilled",
		RequestID: req.ID.Hex(),
		BloodType: string(req.BloodType),
		Units:     req.UnitsNeeded,
		Emergency: req.IsEmergency(),
	})

	job := dispatch.NewJob(req.RequesterID, req.ID)
	job.Email = email
	job.RealtimeTopic = realtime.UserTopic(req.RequesterID)
	job.RealtimePayload = payload
	e.notifier.Enqueue(job)
}

// formatDuration renders a duration as a short human string for emails,
// e.g. "45 minutes" or "2 hours".
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	minutes := int(d.Minutes())
	if minutes < 60 {
		if minutes <= 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	hours := minutes / 60
	if hours == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", hours)
}
