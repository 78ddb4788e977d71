// internal/app/system/realtime/realtime.go

// Package realtime is the fire-and-forget push channel. Topics are addressed
// by user id, blood type, or broadcast; delivery is best effort with a
// single attempt. A recipient who is not connected simply misses the
// message, and the durable email channel covers the gap.
package realtime

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Topic prefixes.
const (
	TopicBroadcast = "broadcast"
	topicUser      = "user:"
	topicBloodType = "bloodtype:"
)

// UserTopic addresses one user's devices.
func UserTopic(userID primitive.ObjectID) string {
	return topicUser + userID.Hex()
}

// BloodTypeTopic addresses everyone subscribed to a blood group.
func BloodTypeTopic(bloodType string) string {
	return topicBloodType + bloodType
}

// Publisher pushes a payload to a topic. Implementations must treat publish
// as a single attempt: no retries, no buffering beyond the transport's own.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}
