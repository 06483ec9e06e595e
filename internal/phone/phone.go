package phone

import (
	"errors"
	"regexp"
	"strings"
)

var digitsRe = regexp.MustCompile(`\d+`)

var (
	// ErrNotAPhoneNumber is returned when the input has no digits at all.
	ErrNotAPhoneNumber = errors.New("phone: input contains no digits")
	// ErrTooShort is returned when fewer than ten digits remain after stripping separators.
	ErrTooShort = errors.New("phone: too few digits")
	// ErrTooLong is returned when more than fifteen digits remain after stripping separators.
	ErrTooLong = errors.New("phone: too many digits")
)

// Normalize canonicalizes a raw phone string into "+<digits>" form.
// Ten-digit numbers are assumed to be US national numbers and get a
// leading 1. Normalizing an already-normalized number is a no-op.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrNotAPhoneNumber
	}
	digits := sanitize(raw)
	switch {
	case digits == "":
		return "", ErrNotAPhoneNumber
	case len(digits) < 10:
		return "", ErrTooShort
	case len(digits) > 15:
		return "", ErrTooLong
	}
	if len(digits) == 10 {
		digits = "1" + digits
	}
	return "+" + digits, nil
}

// Valid reports whether raw normalizes without error.
func Valid(raw string) bool {
	_, err := Normalize(raw)
	return err == nil
}

// sanitize strips everything except digits.
func sanitize(value string) string {
	return strings.Join(digitsRe.FindAllString(value, -1), "")
}
