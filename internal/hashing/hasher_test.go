package hashing

import (
	"testing"

	"secmon-service/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Hashing:     config.HashingConfig{PepperRotationDays: 30},
	}
}

func TestLookupHashDeterministic(t *testing.T) {
	h := NewHasher(testConfig())

	a := h.LookupHash("user@example.com")
	b := h.LookupHash("user@example.com")
	if a != b {
		t.Error("same value hashed differently under same pepper")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}

func TestLookupHashDistinctValues(t *testing.T) {
	h := NewHasher(testConfig())

	if h.LookupHash("a@example.com") == h.LookupHash("b@example.com") {
		t.Error("different values produced the same hash")
	}
}

func TestLookupHashesAcrossRotation(t *testing.T) {
	h := NewHasher(testConfig())

	before := h.LookupHash("user@example.com")
	h.rotatePepper()
	after := h.LookupHash("user@example.com")

	if before == after {
		t.Error("hash unchanged after pepper rotation")
	}

	hashes := h.LookupHashes("user@example.com")
	if len(hashes) != 2 {
		t.Fatalf("LookupHashes returned %d hashes, want 2", len(hashes))
	}
	if hashes[0] != after {
		t.Error("current-pepper hash not first")
	}
	if hashes[1] != before {
		t.Error("retired-pepper hash missing")
	}
}

func TestHashersUseIndependentPeppers(t *testing.T) {
	h1 := NewHasher(testConfig())
	h2 := NewHasher(testConfig())

	// Without a seeded pepper each process gets its own
	if h1.LookupHash("user@example.com") == h2.LookupHash("user@example.com") {
		t.Skip("peppers seeded from environment")
	}
}
