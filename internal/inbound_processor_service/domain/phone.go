package domain

import (
	"regexp"
	"strings"
)

var phoneShape = regexp.MustCompile(`^(0\d{9}|\+\d{8,15})$`)

// NormalizePhoneNumber drops separators commonly typed into numbers, keeping
// digits and a leading plus.
func NormalizePhoneNumber(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValidPhoneNumber reports whether phone is a local 10-digit number starting
// with 0 or an international number of 8 to 15 digits after a plus.
func IsValidPhoneNumber(phone string) bool {
	return phoneShape.MatchString(NormalizePhoneNumber(phone))
}
