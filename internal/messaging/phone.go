package messaging

import (
	"regexp"
	"strings"
)

// DefaultCountryCode is prefixed to bare 10-digit national numbers.
const DefaultCountryCode = "91"

var phoneDigitsRe = regexp.MustCompile(`\d+`)

// NormalizePhone returns the canonical chat identity for a phone number:
// digits only, international prefix included, no leading "+" or "00".
func NormalizePhone(value string) string {
	digits := strings.Join(phoneDigitsRe.FindAllString(strings.TrimSpace(value), -1), "")
	digits = strings.TrimPrefix(digits, "00")
	if len(digits) == 10 {
		return DefaultCountryCode + digits
	}
	return digits
}
