// Package phone composes and splits E.164 phone numbers using a static dial-code table.
package phone

import (
	"errors"
	"strings"
)

var (
	// ErrEmpty is returned when no phone number was entered.
	ErrEmpty = errors.New("phone number is required")
	// ErrInvalid is returned when the number or country code cannot form an E.164 number.
	ErrInvalid = errors.New("invalid phone number")
)

const (
	minDigits = 7
	maxDigits = 15 // E.164 upper bound, country code included
)

// Compose builds an E.164 number ("+447700900000") from the national number typed by the user and
// the selected country code ("+44", "44" or "0044"). A raw number that already starts with "+" is
// taken as a full international number and countryCode is ignored. Separators (spaces, dashes,
// dots, parentheses) are dropped and one leading trunk zero is removed from national numbers.
func Compose(raw, countryCode string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmpty
	}
	if strings.HasPrefix(raw, "+") {
		digits, ok := digitsOnly(raw[1:])
		if !ok {
			return "", ErrInvalid
		}
		if _, _, found := splitDigits(digits); !found {
			return "", ErrInvalid
		}
		return finish(digits)
	}
	cc, err := NormalizeCountryCode(countryCode)
	if err != nil {
		return "", err
	}
	national, ok := digitsOnly(raw)
	if !ok || national == "" {
		return "", ErrInvalid
	}
	national = strings.TrimPrefix(national, "0")
	return finish(cc[1:] + national)
}

// NormalizeCountryCode returns the country code in "+NNN" form. The code must be a known dial code.
func NormalizeCountryCode(countryCode string) (string, error) {
	cc := strings.TrimSpace(countryCode)
	switch {
	case strings.HasPrefix(cc, "+"):
		cc = cc[1:]
	case strings.HasPrefix(cc, "00"):
		cc = cc[2:]
	}
	if cc == "" {
		return "", ErrInvalid
	}
	if _, ok := dialCodes[cc]; !ok {
		return "", ErrInvalid
	}
	return "+" + cc, nil
}

// Split separates an E.164 number into its country code ("+44") and national number ("7700900000")
// by longest-prefix match over the dial-code table. ok is false when no known code matches.
func Split(e164 string) (countryCode, national string, ok bool) {
	digits, valid := digitsOnly(strings.TrimPrefix(strings.TrimSpace(e164), "+"))
	if !valid || digits == "" {
		return "", "", false
	}
	cc, rest, found := splitDigits(digits)
	if !found {
		return "", "", false
	}
	return "+" + cc, rest, true
}

// Mask hides all but the last four digits, for logs and display ("+44******0000").
func Mask(e164 string) string {
	if len(e164) <= 4 {
		return e164
	}
	cc, national, ok := Split(e164)
	if !ok || len(national) <= 4 {
		return strings.Repeat("*", len(e164)-4) + e164[len(e164)-4:]
	}
	return cc + strings.Repeat("*", len(national)-4) + national[len(national)-4:]
}

func splitDigits(digits string) (cc, rest string, ok bool) {
	for n := maxCodeLen; n >= 1; n-- {
		if len(digits) <= n {
			continue
		}
		if _, known := dialCodes[digits[:n]]; known {
			return digits[:n], digits[n:], true
		}
	}
	return "", "", false
}

func finish(digits string) (string, error) {
	if len(digits) < minDigits || len(digits) > maxDigits {
		return "", ErrInvalid
	}
	return "+" + digits, nil
}

// digitsOnly strips separators and reports false if any other non-digit is present.
func digitsOnly(s string) (string, bool) {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", false
		}
	}
	return b.String(), true
}
