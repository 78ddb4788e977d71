package normalize

import (
	"testing"

	"github.com/bloodbridge/bloodbridge/internal/domain/models"
)

func TestEmail(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"user@example.com", "user@example.com"},
		{"USER@EXAMPLE.COM", "user@example.com"},
		{"  User@Example.Com  ", "user@example.com"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Email(tt.input); got != tt.want {
				t.Errorf("Email(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"John Doe", "John Doe"},
		{"  John Doe  ", "John Doe"},
		{"UPPERCASE NAME", "UPPERCASE NAME"}, // Name preserves case
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Name(tt.input); got != tt.want {
				t.Errorf("Name(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestBloodType(t *testing.T) {
	tests := []struct {
		input string
		want  models.BloodType
	}{
		{"O-", models.ONegative},
		{"o-", models.ONegative},
		{" AB+ ", models.ABPositive},
		{"a+", models.APositive},
		{"O−", models.ONegative}, // unicode minus
		{"B–", models.BNegative}, // en dash
		{"C+", ""},
		{"", ""},
		{"O", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := BloodType(tt.input); got != tt.want {
				t.Errorf("BloodType(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
