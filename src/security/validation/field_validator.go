// backend/src/security/validation/field_validator.go
package validation

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Field bounds. Lengths are raw string lengths, not grapheme counts:
// multi-codepoint emoji and combining sequences count by their underlying
// unit length, matching the historical behavior.
const (
	MaxAmount         = 1_000_000
	MaxTitleLength    = 255
	MaxNameLength     = 100
	MinNameLength     = 2
	MaxEmailLength    = 254
	MaxPasswordLength = 128
	MinPasswordLength = 6
	MaxCategoryLength = 100

	DateLayout = "2006-01-02"
)

var minDate = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// The messages below are rendered verbatim next to form fields; each
// validator reports only the first applicable one.

// ValidateAmount parses a raw amount entry and checks business bounds.
// ParseFloat accepts "NaN" and "Inf" spellings, so both are rejected
// explicitly before the range checks.
func ValidateAmount(raw string) (float64, error) {
	val, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(val) || math.IsInf(val, 0) || val <= 0 {
		return 0, errors.New("Amount must be a positive number")
	}
	if val > MaxAmount {
		return 0, errors.New("Amount cannot exceed $1,000,000")
	}
	return val, nil
}

// ValidateTitle checks a transaction title. The length bound applies to the
// untrimmed input, like the original form did.
func ValidateTitle(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("Title is required")
	}
	if len(raw) > MaxTitleLength {
		return errors.New("Title cannot exceed 255 characters")
	}
	return nil
}

// ValidateDate parses a YYYY-MM-DD date and checks the allowed window
// [1900-01-01, today].
func ValidateDate(raw string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, errors.New("Please enter a valid date")
	}
	if t.After(time.Now()) {
		return time.Time{}, errors.New("Date cannot be in the future")
	}
	if t.Before(minDate) {
		return time.Time{}, errors.New("Date cannot be before 1900")
	}
	return t, nil
}

// ValidateEmail checks presence, shape and length of an email address.
func ValidateEmail(raw string) error {
	if raw == "" {
		return errors.New("Email is required")
	}
	if !emailRegex.MatchString(raw) {
		return errors.New("Please enter a valid email address")
	}
	if len(raw) > MaxEmailLength {
		return errors.New("Email address is too long")
	}
	return nil
}

// ValidateName checks a display name.
func ValidateName(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return errors.New("Name is required")
	}
	if len(trimmed) < MinNameLength {
		return errors.New("Name must be at least 2 characters")
	}
	if len(raw) > MaxNameLength {
		return errors.New("Name cannot exceed 100 characters")
	}
	return nil
}

// ValidatePassword checks password length bounds only; composition rules are
// deliberately not enforced.
func ValidatePassword(raw string) error {
	if raw == "" {
		return errors.New("Password is required")
	}
	if len(raw) < MinPasswordLength {
		return errors.New("Password must be at least 6 characters")
	}
	if len(raw) > MaxPasswordLength {
		return errors.New("Password cannot exceed 128 characters")
	}
	return nil
}

// ValidateCategory checks category presence on submit. Custom categories are
// free-form but bounded.
func ValidateCategory(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("Please select a category")
	}
	if len(raw) > MaxCategoryLength {
		return errors.New("Category cannot exceed 100 characters")
	}
	return nil
}
