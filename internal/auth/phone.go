package auth

import (
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/bazaarino/bazaar/internal/apperr"
)

// ErrInvalidPhone is returned for numbers that do not parse as a valid phone number.
var ErrInvalidPhone = apperr.Validation("invalid phone number")

// NormalizePhone parses raw in the context of region and returns it in E.164
// form, so "09121234567" and "+98 912 123 4567" name the same principal.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidPhone
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
