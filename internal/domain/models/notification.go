// internal/domain/models/notification.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification channels.
const (
	ChannelRealtime = "realtime"
	ChannelEmail    = "email"
)

// Notification is the durable record of a *delivered* notification, kept on
// the recipient for later retrieval (read receipts). It is written after a
// channel reports success; the ephemeral dispatch job itself is never
// persisted.
type Notification struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RecipientID primitive.ObjectID `bson:"recipient_id" json:"recipient_id"`
	RequestID   primitive.ObjectID `bson:"request_id,omitempty" json:"request_id,omitempty"`
	Channel     string             `bson:"channel" json:"channel"`
	Subject     string             `bson:"subject" json:"subject"`
	Body        string             `bson:"body" json:"body"`
	Read        bool               `bson:"read" json:"read"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}
