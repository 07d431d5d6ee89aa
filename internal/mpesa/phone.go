package mpesa

import "strings"

const (
	countryPrefix = "254"
	phoneDigits   = 12
)

// NormalizePhone converts a payer phone number to the canonical
// 254XXXXXXXXX form: non-digits are stripped, a leading trunk zero is
// replaced with the country code, and a bare subscriber number gets the
// country code prepended. Anything that does not end up as exactly 12 digits
// is rejected.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "0"):
		digits = countryPrefix + digits[1:]
	case !strings.HasPrefix(digits, countryPrefix):
		digits = countryPrefix + digits
	}

	if len(digits) != phoneDigits {
		return "", ErrInvalidPhone
	}
	return digits, nil
}
