// internal/app/system/normalize/normalize.go
package normalize

import (
	"strings"

	"github.com/bloodbridge/bloodbridge/internal/domain/models"
)

// Email lowercases and trims an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims a display name, preserving case.
func Name(s string) string {
	return strings.TrimSpace(s)
}

// Status lowercases and trims a status value.
func Status(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// BloodType canonicalizes user input to one of the eight ABO/Rh values.
// It tolerates case ("o-", "Ab+"), surrounding whitespace, and the unicode
// minus/dash variants that arrive from mobile keyboards. Returns the zero
// value for anything unrecognizable; callers decide whether that is a
// validation error.
func BloodType(s string) models.BloodType {
	s = strings.ToUpper(strings.TrimSpace(s))
	// mobile keyboards produce U+2212 (minus) and U+2013 (en dash)
	s = strings.NewReplacer("−", "-", "–", "-").Replace(s)

	bt := models.BloodType(s)
	if bt.Valid() {
		return bt
	}
	return ""
}
