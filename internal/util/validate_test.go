package util

import (
	"strings"
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	if err := ValidateIdentifier("client-1"); err != nil {
		t.Errorf("valid identifier rejected: %v", err)
	}
	if err := ValidateIdentifier(""); err == nil {
		t.Error("empty identifier accepted")
	}
	if err := ValidateIdentifier("   "); err == nil {
		t.Error("blank identifier accepted")
	}
	if err := ValidateIdentifier(strings.Repeat("x", 257)); err == nil {
		t.Error("oversized identifier accepted")
	}
}

func TestValidateEmail(t *testing.T) {
	valid := []string{"user@example.com", "a.b+c@sub.example.org"}
	for _, email := range valid {
		if err := ValidateEmail(email); err != nil {
			t.Errorf("ValidateEmail(%q) = %v", email, err)
		}
	}

	invalid := []string{"", "no-at-sign", "user@", "@example.com", "a b@example.com", "user@nodot"}
	for _, email := range invalid {
		if err := ValidateEmail(email); err == nil {
			t.Errorf("ValidateEmail(%q) accepted", email)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  User@Example.COM "); got != "user@example.com" {
		t.Errorf("NormalizeEmail = %q", got)
	}
}

func TestValidateIP(t *testing.T) {
	valid := []string{"", "203.0.113.7", "::1", "2001:db8::1"}
	for _, ip := range valid {
		if err := ValidateIP(ip); err != nil {
			t.Errorf("ValidateIP(%q) = %v", ip, err)
		}
	}

	invalid := []string{"999.1.1.1", "not-an-ip", "203.0.113.7:8080"}
	for _, ip := range invalid {
		if err := ValidateIP(ip); err == nil {
			t.Errorf("ValidateIP(%q) accepted", ip)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("Truncate short = %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello" {
		t.Errorf("Truncate long = %q", got)
	}
	if got := Truncate("", 5); got != "" {
		t.Errorf("Truncate empty = %q", got)
	}
}
