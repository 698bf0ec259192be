package hashing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"

	"secmon-service/internal/config"
	"secmon-service/internal/util"
)

type Pepper struct {
	Value     string
	CreatedAt time.Time
	Version   int
}

// Hasher produces deterministic, peppered lookup hashes for identifiers that
// must never be stored in the clear (login-attempt emails). The pepper keeps a
// stolen table from being reversed by a plain dictionary pass.
type Hasher struct {
	currentPepper *Pepper
	oldPeppers    []*Pepper
	config        *config.Config
	mu            sync.RWMutex
}

func NewHasher(cfg *config.Config) *Hasher {
	h := &Hasher{
		config: cfg,
	}

	// Seed the initial pepper, from the environment when provided so lookup
	// hashes survive restarts
	if seed := util.GetEnv("HASHING_PEPPER", ""); seed != "" {
		h.currentPepper = &Pepper{
			Value:     seed,
			CreatedAt: time.Now(),
			Version:   1,
		}
	} else {
		h.rotatePepper()
	}

	return h
}

func (h *Hasher) rotatePepper() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.currentPepper != nil {
		h.oldPeppers = append(h.oldPeppers, h.currentPepper)
	}

	pepperBytes := make([]byte, 32)
	if _, err := rand.Read(pepperBytes); err != nil {
		util.Fatal("Failed to generate pepper", zap.Error(err))
	}

	h.currentPepper = &Pepper{
		Value:     base64.RawURLEncoding.EncodeToString(pepperBytes),
		CreatedAt: time.Now(),
		Version:   len(h.oldPeppers) + 1,
	}

	util.Info("Pepper rotated",
		zap.Int("version", h.currentPepper.Version),
		zap.Time("created_at", h.currentPepper.CreatedAt),
	)
}

// StartPepperRotation starts background pepper rotation
func (h *Hasher) StartPepperRotation() {
	ticker := time.NewTicker(time.Duration(h.config.Hashing.PepperRotationDays) * 24 * time.Hour)

	go func() {
		for range ticker.C {
			h.rotatePepper()

			// Keep only the last 2 retired peppers
			h.mu.Lock()
			if len(h.oldPeppers) > 2 {
				h.oldPeppers = h.oldPeppers[len(h.oldPeppers)-2:]
			}
			h.mu.Unlock()
		}
	}()
}

// LookupHash returns the deterministic hash of a value under the current pepper
func (h *Hasher) LookupHash(value string) string {
	h.mu.RLock()
	pepper := h.currentPepper
	h.mu.RUnlock()

	return hashWithPepper(value, pepper.Value)
}

// LookupHashes returns the hash of a value under the current and retired
// peppers, newest first. Callers that look back across a rotation boundary
// query with each in turn.
func (h *Hasher) LookupHashes(value string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	hashes := []string{hashWithPepper(value, h.currentPepper.Value)}
	for i := len(h.oldPeppers) - 1; i >= 0; i-- {
		hashes = append(hashes, hashWithPepper(value, h.oldPeppers[i].Value))
	}
	return hashes
}

func hashWithPepper(value, pepper string) string {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}
