package facegate

import (
	"strings"
	"unicode"
)

// Name constraints for display names.
const (
	MinNameLen = 2
	MaxNameLen = 100
)

// MinImageDataLen is the minimum accepted length of base64 image payloads.
// Enforced at the tool boundary before any decode is attempted.
const MinImageDataLen = 100

// MetadataKeys is the whitelist of metadata keys the identity service
// accepts. Anything else is a validation error.
var MetadataKeys = map[string]bool{
	"department":  true,
	"position":    true,
	"location":    true,
	"information": true,
	"details":     true,
	"profile":     true,
	"data":        true,
	"notes":       true,
}

// ValidateName checks a display name against the length and character
// rules: 2–100 characters drawn from letters, spaces, hyphens, apostrophes
// and periods.
func ValidateName(name string) error {
	n := len([]rune(name))
	if n < MinNameLen || n > MaxNameLen {
		return NewError(KindValidation, "name must be %d-%d characters, got %d", MinNameLen, MaxNameLen, n)
	}
	for _, r := range name {
		if unicode.IsLetter(r) || r == ' ' || r == '-' || r == '\'' || r == '.' {
			continue
		}
		return NewError(KindValidation, "name contains invalid character %q", r)
	}
	return nil
}

// ValidateMetadata checks that every key is whitelisted.
func ValidateMetadata(md map[string]string) error {
	for k := range md {
		if !MetadataKeys[k] {
			return NewError(KindValidation, "metadata key %q is not allowed", k)
		}
	}
	return nil
}

// ValidateImageData checks the base64 payload length rule.
func ValidateImageData(data string) error {
	if len(data) < MinImageDataLen {
		return NewError(KindValidation, "image_data must be at least %d base64 characters", MinImageDataLen)
	}
	return nil
}

// Slug lowercases a display name and collapses every run of characters
// outside a-z (including non-ASCII letters) into a single underscore,
// trimming separators at both ends. "John Smith" becomes "john_smith".
func Slug(name string) string {
	var b strings.Builder
	lastUnderscore := true // trim leading separators
	for _, r := range strings.ToLower(name) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
			lastUnderscore = false
		} else if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimRight(b.String(), "_")
}
