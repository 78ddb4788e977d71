// internal/domain/models/request.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RequestKind distinguishes routine supply requests from emergencies.
type RequestKind string

const (
	KindRoutine   RequestKind = "routine"
	KindEmergency RequestKind = "emergency"
)

// Request statuses. Routine requests move pending → partially_fulfilled →
// fulfilled; emergency requests move active → fulfilled with no partial
// state. Cancelled is reachable from any non-terminal status by the owner or
// an admin; expired applies to emergency requests only.
const (
	StatusPending            = "pending"
	StatusActive             = "active"
	StatusPartiallyFulfilled = "partially_fulfilled"
	StatusFulfilled          = "fulfilled"
	StatusCancelled          = "cancelled"
	StatusExpired            = "expired"
)

// Donor response statuses. Routine requests use pending/accepted/declined/
// donated; emergency requests use responding/arrived/donated/cancelled.
const (
	ResponsePending    = "pending"
	ResponseAccepted   = "accepted"
	ResponseDeclined   = "declined"
	ResponseDonated    = "donated"
	ResponseResponding = "responding"
	ResponseArrived    = "arrived"
	ResponseCancelled  = "cancelled"
)

// ResponseEntry records one donor's current answer to a request.
//
// There is at most one entry per donor per request; a later response from the
// same donor overwrites status and timestamp in place.
type ResponseEntry struct {
	DonorID     primitive.ObjectID `bson:"donor_id" json:"donor_id"`
	DonorName   string             `bson:"donor_name" json:"donor_name"`
	Status      string             `bson:"status" json:"status"`
	RespondedAt time.Time          `bson:"responded_at" json:"responded_at"`
}

// Request is a blood-supply request, routine or emergency.
//
// Both kinds share this shape; ExpiresAt is set only on emergencies. The
// Revision field backs the optimistic-concurrency write in the request store:
// every persisted mutation increments it, and writes are conditioned on the
// revision they loaded.
type Request struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Kind          RequestKind        `bson:"kind" json:"kind"`
	RequesterID   primitive.ObjectID `bson:"requester_id" json:"requester_id"`
	RequesterName string             `bson:"requester_name" json:"requester_name"`

	BloodType   BloodType `bson:"blood_type" json:"blood_type"`
	UnitsNeeded int       `bson:"units_needed" json:"units_needed"`
	Location    GeoPoint  `bson:"location" json:"location"`
	Note        string    `bson:"note,omitempty" json:"note,omitempty"`

	Status    string          `bson:"status" json:"status"`
	Responses []ResponseEntry `bson:"responses" json:"responses"`

	ExpiresAt *time.Time `bson:"expires_at,omitempty" json:"expires_at,omitempty"`

	Revision  int64     `bson:"revision" json:"-"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsEmergency reports whether the request carries a hard expiry.
func (r *Request) IsEmergency() bool { return r.Kind == KindEmergency }

// Terminal reports whether the request can accept no further transitions.
func (r *Request) Terminal() bool {
	switch r.Status {
	case StatusFulfilled, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// ExpiredAt reports whether an emergency request's hard expiry has passed at
// the given instant. Routine requests never expire.
func (r *Request) ExpiredAt(now time.Time) bool {
	return r.IsEmergency() && r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// DonatedCount counts entries whose donors have completed a donation.
func (r *Request) DonatedCount() int {
	n := 0
	for i := range r.Responses {
		if r.Responses[i].Status == ResponseDonated {
			n++
		}
	}
	return n
}

// Response returns the entry for the given donor, or nil.
func (r *Request) Response(donorID primitive.ObjectID) *ResponseEntry {
	for i := range r.Responses {
		if r.Responses[i].DonorID == donorID {
			return &r.Responses[i]
		}
	}
	return nil
}

// InitialStatus returns the status a freshly created request starts in.
func (k RequestKind) InitialStatus() string {
	if k == KindEmergency {
		return StatusActive
	}
	return StatusPending
}

// ValidResponseStatus reports whether status belongs to this kind's response
// vocabulary.
func (k RequestKind) ValidResponseStatus(status string) bool {
	if k == KindEmergency {
		switch status {
		case ResponseResponding, ResponseArrived, ResponseDonated, ResponseCancelled:
			return true
		}
		return false
	}
	switch status {
	case ResponsePending, ResponseAccepted, ResponseDeclined, ResponseDonated:
		return true
	}
	return false
}
