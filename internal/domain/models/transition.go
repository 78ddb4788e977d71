// internal/domain/models/transition.go
package models

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrRequestClosed is returned when a response or cancellation targets a
	// request already in a terminal status (fulfilled, cancelled, expired).
	ErrRequestClosed = errors.New("request is closed")
	// ErrRequestExpired is returned when an emergency request's hard expiry
	// has passed, regardless of its recorded status.
	ErrRequestExpired = errors.New("request has expired")
	// ErrBadResponseStatus is returned when the response status is not part
	// of the request kind's vocabulary.
	ErrBadResponseStatus = errors.New("invalid response status for request kind")
)

// TransitionResult describes what ApplyResponse changed.
type TransitionResult struct {
	// BecameFulfilled is true only on the transition into fulfilled, never on
	// a later response to an already fulfilled request (those are rejected).
	BecameFulfilled bool
}

// ApplyResponse records a donor's response on the request in memory and
// recomputes the aggregate status. It mutates req on success and leaves it
// untouched on any error.
//
// This is the whole response state machine except the durable write: both the
// MongoDB store and the in-memory store call it and then persist the mutated
// request with a revision-checked write, so the two paths cannot drift.
//
// The recompute always uses the request's current UnitsNeeded; a request
// whose unit count was revised downward after donations were recorded
// fulfills against the revised value.
func ApplyResponse(req *Request, donorID primitive.ObjectID, donorName, status string, now time.Time) (TransitionResult, error) {
	if req.Terminal() {
		return TransitionResult{}, ErrRequestClosed
	}
	if req.ExpiredAt(now) {
		return TransitionResult{}, ErrRequestExpired
	}
	if !req.Kind.ValidResponseStatus(status) {
		return TransitionResult{}, ErrBadResponseStatus
	}

	if entry := req.Response(donorID); entry != nil {
		entry.Status = status
		entry.RespondedAt = now
		if donorName != "" {
			entry.DonorName = donorName
		}
	} else {
		req.Responses = append(req.Responses, ResponseEntry{
			DonorID:     donorID,
			DonorName:   donorName,
			Status:      status,
			RespondedAt: now,
		})
	}

	var res TransitionResult
	donated := req.DonatedCount()
	switch {
	case donated >= req.UnitsNeeded:
		res.BecameFulfilled = req.Status != StatusFulfilled
		req.Status = StatusFulfilled
	case donated > 0 && !req.IsEmergency():
		req.Status = StatusPartiallyFulfilled
		// Emergency requests have no partial state: they stay active until
		// fulfilled, cancelled, or expired.
	}
	req.UpdatedAt = now

	return res, nil
}

// Cancel moves the request to cancelled. Only the owner or an admin may call
// this; that authorization happens at the engine boundary. Cancelling a
// terminal request is a conflict.
func Cancel(req *Request, now time.Time) error {
	if req.Terminal() {
		return ErrRequestClosed
	}
	req.Status = StatusCancelled
	req.UpdatedAt = now
	return nil
}

// Expire flips an emergency request whose hard expiry has passed to expired.
// It reports whether anything changed. Used by the listing sweeper; the
// response path never depends on it because ApplyResponse checks expiry
// itself.
func Expire(req *Request, now time.Time) bool {
	if req.Terminal() || !req.ExpiredAt(now) {
		return false
	}
	req.Status = StatusExpired
	req.UpdatedAt = now
	return true
}
