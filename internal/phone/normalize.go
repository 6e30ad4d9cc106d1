// Package phone canonicalizes user-supplied phone numbers into the E.164-like
// form used as the identity key.
package phone

import (
	"errors"
	"regexp"
	"strings"
)

// DefaultCountryCode is applied when a number has no leading '+'.
const DefaultCountryCode = "+91"

// ErrInvalid is returned when the input cannot be normalized.
var ErrInvalid = errors.New("invalid phone number")

var (
	e164       = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)
	separators = strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "")
)

// Normalizer applies a fixed default country code.
type Normalizer struct {
	countryCode string
}

// NewNormalizer returns a Normalizer for countryCode ("+91", "49", ...).
// An empty countryCode uses DefaultCountryCode.
func NewNormalizer(countryCode string) *Normalizer {
	countryCode = strings.TrimSpace(countryCode)
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	if !strings.HasPrefix(countryCode, "+") {
		countryCode = "+" + countryCode
	}
	return &Normalizer{countryCode: countryCode}
}

// Normalize strips separators, prefixes the default country code when the
// number has no '+', and validates the result.
func (n *Normalizer) Normalize(raw string) (string, error) {
	s := separators.Replace(strings.TrimSpace(raw))
	if s == "" {
		return "", ErrInvalid
	}
	if !strings.HasPrefix(s, "+") {
		s = n.countryCode + s
	}
	if !e164.MatchString(s) {
		return "", ErrInvalid
	}
	return s, nil
}
