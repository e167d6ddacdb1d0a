package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"
)

// DefaultTTL bounds how long a checkout response may be replayed.
const DefaultTTL = 24 * time.Hour

// Status is the lifecycle of a key.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Outcome is the result of claiming a key.
type Outcome int

const (
	// OutcomeClaimed means the caller owns the key and must run the request.
	OutcomeClaimed Outcome = iota
	// OutcomeReplay means a completed response is stored under the key.
	OutcomeReplay
	// OutcomeInFlight means another request holds the key.
	OutcomeInFlight
)

// Record is a stored key with its captured response.
type Record struct {
	Key            string
	Fingerprint    string
	Status         Status
	ResponseStatus int
	ResponseType   string
	ResponseBody   []byte
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Store persists keys and captured responses.
type Store interface {
	Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Record, error)
	Complete(ctx context.Context, key string, record Record) error
	Release(ctx context.Context, key string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch reports reuse of a key for a different request body.
var ErrFingerprintMismatch = errors.New("idempotency: key reused for a different request")

// claim resolves an existing record against a new attempt.
func claim(existing Record, found bool, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Record, error) {
	if found && !existing.expired(now) {
		if existing.Fingerprint != fingerprint {
			return 0, Record{}, ErrFingerprintMismatch
		}
		if existing.Status == StatusCompleted {
			return OutcomeReplay, existing, nil
		}
		return OutcomeInFlight, existing, nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return OutcomeClaimed, Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}, nil
}

func documentID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func replayable(status int) bool {
	return status >= http.StatusOK && status < http.StatusInternalServerError
}
