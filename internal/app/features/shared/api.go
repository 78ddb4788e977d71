// internal/app/features/shared/api.go

// Package shared holds the small helpers the JSON feature handlers have in
// common: response encoding, error-to-status mapping, and caller identity.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	donorstore "github.com/bloodbridge/bloodbridge/internal/app/store/donors"
	notificationstore "github.com/bloodbridge/bloodbridge/internal/app/store/notifications"
	quotastore "github.com/bloodbridge/bloodbridge/internal/app/store/quota"
	requeststore "github.com/bloodbridge/bloodbridge/internal/app/store/requests"
	userstore "github.com/bloodbridge/bloodbridge/internal/app/store/users"
	"github.com/bloodbridge/bloodbridge/internal/app/system/match"
	"github.com/bloodbridge/bloodbridge/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Identity headers. Authentication happens upstream; the gateway forwards
// the verified identity in these headers.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// ErrNoIdentity is returned when the identity header is missing or malformed.
var ErrNoIdentity = errors.New("missing or invalid user identity")

// CurrentUserID extracts the caller's id from the identity header.
func CurrentUserID(r *http.Request) (primitive.ObjectID, error) {
	raw := r.Header.Get(HeaderUserID)
	if raw == "" {
		return primitive.NilObjectID, ErrNoIdentity
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, ErrNoIdentity
	}
	return id, nil
}

// IsAdmin reports whether the gateway marked the caller as an admin.
func IsAdmin(r *http.Request) bool {
	return r.Header.Get(HeaderUserRole) == "admin"
}

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the standard JSON error envelope.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// WriteDomainError maps a domain error to its HTTP status and writes the
// error envelope. Unrecognized errors become 500 with a generic message so
// internals never leak to clients.
func WriteDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoIdentity):
		WriteError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, match.ErrValidation),
		errors.Is(err, models.ErrBadResponseStatus):
		WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, match.ErrNotOwner):
		WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, requeststore.ErrNotFound),
		errors.Is(err, donorstore.ErrNotFound),
		errors.Is(err, notificationstore.ErrNotFound),
		errors.Is(err, userstore.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrRequestClosed),
		errors.Is(err, models.ErrRequestExpired):
		WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, quotastore.ErrLimitExceeded):
		WriteError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, requeststore.ErrRevisionExhausted):
		// Write contention, not a terminal state: the donor may retry.
		WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
