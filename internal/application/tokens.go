package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/example/sessionboard/internal/persistence"
)

// maxIssueAttempts bounds regeneration after a key collision.
const maxIssueAttempts = 3

// RandomToken returns 32 random bytes hex encoded.
func RandomToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(buf)
}

// ExpiringTokenStore issues and consumes one-time tokens on top of an
// expiring key-value backend.
type ExpiringTokenStore struct {
	backend  persistence.TokenRepository
	generate func() string
	now      func() time.Time
}

// NewExpiringTokenStore wraps backend. A nil generator uses RandomToken.
func NewExpiringTokenStore(backend persistence.TokenRepository, generate func() string, now func() time.Time) *ExpiringTokenStore {
	if generate == nil {
		generate = RandomToken
	}
	if now == nil {
		now = time.Now
	}
	return &ExpiringTokenStore{backend: backend, generate: generate, now: now}
}

// Issue stores value under prefix+token for ttl and returns the token. The
// backend refuses to overwrite a live key, so two issuances never share a token.
func (s *ExpiringTokenStore) Issue(ctx context.Context, prefix, value string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive")
	}
	now := s.now()
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		token := s.generate()
		if token == "" {
			return "", fmt.Errorf("token generator returned an empty token")
		}
		err := s.backend.PutToken(ctx, prefix+token, value, now, now.Add(ttl))
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, persistence.ErrDuplicate) {
			return "", fmt.Errorf("%w: store token: %v", ErrStore, err)
		}
	}
	return "", fmt.Errorf("%w: could not issue a unique token", ErrStore)
}

// Consume atomically reads and deletes key. ok is false when the token is
// expired, already consumed, or was never issued.
func (s *ExpiringTokenStore) Consume(ctx context.Context, key string) (value string, ok bool, err error) {
	value, err = s.backend.TakeToken(ctx, key, s.now())
	switch {
	case err == nil:
		return value, true, nil
	case errors.Is(err, persistence.ErrNotFound):
		return "", false, nil
	default:
		return "", false, fmt.Errorf("%w: consume token: %v", ErrStore, err)
	}
}
