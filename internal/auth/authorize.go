package auth

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxTextLength   = 500
	maxUserIDLength = 128
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether s looks like a deliverable address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// SanitizeText trims s, strips angle brackets and caps it at 500 characters.
func SanitizeText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("<", "", ">", "").Replace(s)
	if utf8.RuneCountInString(s) > maxTextLength {
		s = string([]rune(s)[:maxTextLength])
	}
	return s
}

// NormalizeUserID trims and validates an opaque user identifier.
func NormalizeUserID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if len(id) > maxUserIDLength || strings.ContainsAny(id, " \t\r\n/") {
		return "", fmt.Errorf("%w: malformed user id", ErrInvalidInput)
	}
	return id, nil
}
