// internal/domain/models/bloodtype.go
package models

// BloodType is one of the eight ABO/Rh groups.
type BloodType string

const (
	APositive  BloodType = "A+"
	ANegative  BloodType = "A-"
	BPositive  BloodType = "B+"
	BNegative  BloodType = "B-"
	ABPositive BloodType = "AB+"
	ABNegative BloodType = "AB-"
	OPositive  BloodType = "O+"
	ONegative  BloodType = "O-"
)

// AllBloodTypes lists every valid group, in the order used by forms and fixtures.
var AllBloodTypes = []BloodType{
	APositive, ANegative,
	BPositive, BNegative,
	ABPositive, ABNegative,
	OPositive, ONegative,
}

// Valid reports whether bt is one of the eight recognized groups.
func (bt BloodType) Valid() bool {
	switch bt {
	case APositive, ANegative, BPositive, BNegative,
		ABPositive, ABNegative, OPositive, ONegative:
		return true
	}
	return false
}

func (bt BloodType) String() string { return string(bt) }
