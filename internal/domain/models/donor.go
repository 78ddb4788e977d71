// internal/domain/models/donor.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Donor is a registered blood donor.
//
// Donor records are created and updated by the profile-management surface;
// the matching engine reads them (directly or through the geo index) and
// never mutates them. MedicalConditions is carried opaquely; eligibility
// here means blood-type match plus the Available flag, nothing more.
type Donor struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID   primitive.ObjectID `bson:"user_id" json:"user_id"`
	FullName string             `bson:"full_name" json:"full_name"`
	Email    string             `bson:"email" json:"email"`
	Phone    string             `bson:"phone,omitempty" json:"phone,omitempty"`

	BloodType BloodType `bson:"blood_type" json:"blood_type"`
	Location  GeoPoint  `bson:"location" json:"location"`
	Available bool      `bson:"available" json:"available"`

	MedicalConditions []string `bson:"medical_conditions,omitempty" json:"medical_conditions,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
