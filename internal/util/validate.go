package util

import (
	"errors"
	"net"
	"regexp"
	"strings"
)

var (
	ErrEmptyIdentifier = errors.New("identifier is empty")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrInvalidIP       = errors.New("invalid ip address")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const maxIdentifierLength = 256

// ValidateIdentifier checks a rate-limit or audit identifier before it is used
// as a cache key or partition key.
func ValidateIdentifier(identifier string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return ErrEmptyIdentifier
	}
	if len(identifier) > maxIdentifierLength {
		return ErrEmptyIdentifier
	}
	return nil
}

// ValidateEmail performs a shallow shape check. Deliverability is not verified.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" || len(email) > 320 || !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// NormalizeEmail lowercases and trims an email for hashing and comparison
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateIP accepts an empty string: the transport layer may legitimately not
// know the client address, and the core never computes one itself.
func ValidateIP(ip string) error {
	if ip == "" {
		return nil
	}
	if net.ParseIP(ip) == nil {
		return ErrInvalidIP
	}
	return nil
}

// Truncate limits free-form text before it is placed in audit details
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
