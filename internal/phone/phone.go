// Package phone normalizes subscriber numbers to E.164, defaulting to Kenya.
package phone

import (
	"errors"
	"regexp"
	"strings"
)

// CountryCode is prepended to national numbers.
const CountryCode = "254"

// ErrInvalidPhone is returned for input that cannot be turned into an
// E.164 number.
var ErrInvalidPhone = errors.New("invalid phone number")

var (
	e164         = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)
	kenyanMobile = regexp.MustCompile(`^\+254[17]\d{8}$`)
)

// Normalize converts input to E.164. Separators are dropped; numbers
// written nationally ("0712…", "712…") or without the plus ("254712…") get
// the Kenyan prefix. Input that starts with "+" keeps its country code.
func Normalize(input string) (string, error) {
	input = strings.TrimSpace(input)
	international := strings.HasPrefix(input, "+")
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, input)

	var out string
	switch {
	case digits == "":
		return "", ErrInvalidPhone
	case international:
		out = "+" + digits
	case strings.HasPrefix(digits, CountryCode):
		out = "+" + digits
	case strings.HasPrefix(digits, "0"):
		out = "+" + CountryCode + digits[1:]
	case len(digits) == 9:
		out = "+" + CountryCode + digits
	default:
		out = "+" + digits
	}

	if !e164.MatchString(out) {
		return "", ErrInvalidPhone
	}
	return out, nil
}

// IsKenyanMobile reports whether an E.164 number is a Kenyan mobile line.
func IsKenyanMobile(e164Number string) bool {
	return kenyanMobile.MatchString(e164Number)
}

// Mask hides all but the last three digits, for logs.
func Mask(number string) string {
	if len(number) <= 3 {
		return strings.Repeat("*", len(number))
	}
	return strings.Repeat("*", len(number)-3) + number[len(number)-3:]
}
