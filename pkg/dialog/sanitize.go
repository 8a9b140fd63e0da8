package dialog

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxIDSize bounds a dialog identifier in bytes.
var MaxIDSize = 256

var (
	ErrEmptyID     = errors.New("dialog id is empty")
	ErrIDTooLarge  = errors.New("dialog id exceeds maximum allowed size")
	ErrInvalidUTF8 = errors.New("dialog id contains invalid UTF-8 sequences")
)

// SanitizeID cleans a dialog identifier received from outside the process.
// Oversized or malformed ids are rejected rather than truncated so that open and close
// always agree on the key. Control characters are stripped and surrounding space trimmed.
func SanitizeID(id string) (string, error) {
	if len(id) > MaxIDSize {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrIDTooLarge, len(id), MaxIDSize)
	}
	if !utf8.ValidString(id) {
		return "", ErrInvalidUTF8
	}

	clean := id
	if strings.IndexFunc(id, unicode.IsControl) >= 0 {
		var b strings.Builder
		b.Grow(len(id))
		for _, r := range id {
			if !unicode.IsControl(r) {
				b.WriteRune(r)
			}
		}
		clean = b.String()
	}

	clean = strings.TrimSpace(clean)
	if clean == "" {
		return "", ErrEmptyID
	}
	return clean, nil
}
