package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrIdentifierTooLong indicates an identifier longer than maxIdentifierLength
	ErrIdentifierTooLong = errors.New("identifier must be at most 128 characters")

	// ErrIdentifierFormat indicates an identifier with characters outside the allowed set
	ErrIdentifierFormat = errors.New("identifier can only contain letters, digits, '-', '_', '.' and ':'")
)

const maxIdentifierLength = 128

// identifierRegex matches cart ids, merchant order ids, payment ids and booking ids
var identifierRegex = regexp.MustCompile(`^[A-Za-z0-9._:\-]+$`)

// IdentifierValidator checks identifiers taken from redirect query strings
type IdentifierValidator struct{}

// NewIdentifierValidator creates a new identifier validator instance
func NewIdentifierValidator() *IdentifierValidator {
	return &IdentifierValidator{}
}

// Sanitize trims whitespace and drops placeholder values gateways send for missing fields
func (v *IdentifierValidator) Sanitize(id string) string {
	id = strings.TrimSpace(id)
	switch strings.ToLower(id) {
	case "null", "undefined", "none":
		return ""
	}
	return id
}

// Validate returns the sanitized identifier; an empty result is valid and means absent
func (v *IdentifierValidator) Validate(id string) (string, error) {
	sanitized := v.Sanitize(id)
	if sanitized == "" {
		return "", nil
	}
	if len(sanitized) > maxIdentifierLength {
		return "", ErrIdentifierTooLong
	}
	if !identifierRegex.MatchString(sanitized) {
		return "", ErrIdentifierFormat
	}
	return sanitized, nil
}

// ValidateFields validates several named identifiers at once.
// Returns the sanitized values and a map of field name to error for invalid ones.
func (v *IdentifierValidator) ValidateFields(fields map[string]string) (map[string]string, map[string]error) {
	clean := make(map[string]string, len(fields))
	var invalid map[string]error
	for name, value := range fields {
		sanitized, err := v.Validate(value)
		if err != nil {
			if invalid == nil {
				invalid = make(map[string]error)
			}
			invalid[name] = err
			continue
		}
		clean[name] = sanitized
	}
	return clean, invalid
}
