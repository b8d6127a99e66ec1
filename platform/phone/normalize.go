// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used for numbers written without a country code.
const DefaultRegion = "NL"

// ErrInvalidNumber is returned for input that is not a valid phone number.
var ErrInvalidNumber = errors.New("invalid phone number")

// Normalize parses input and formats it as E.164. Empty input yields empty
// output without error.
func Normalize(input, region string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", nil
	}
	if region == "" {
		region = DefaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, region)
	if err != nil {
		return "", ErrInvalidNumber
	}
	if !phonenumbers.IsValidNumber(number) {
		return "", ErrInvalidNumber
	}

	return phonenumbers.Format(number, phonenumbers.E164), nil
}

// Mask keeps the country prefix and the last two digits, e.g. +31******78.
func Mask(e164 string) string {
	if len(e164) <= 5 {
		return e164
	}
	return e164[:3] + strings.Repeat("*", len(e164)-5) + e164[len(e164)-2:]
}
