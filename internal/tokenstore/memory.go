// Package tokenstore provides an in-process expiring key-value store for
// one-time tokens, suitable for single instance deployments and tests.
package tokenstore

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/example/sessionboard/internal/persistence"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// Memory implements persistence.TokenRepository on a size bounded LRU. The
// cache TTL is an upper bound on retention; each entry also carries its own
// deadline, checked against the caller supplied clock.
type Memory struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, entry]
}

// NewMemory creates a store holding at most size entries, none longer than maxTTL.
// State lives in this process only, so every replica sees its own tokens.
// Once size live tokens are held, each new one evicts the least recently
// used, which may still be within its deadline: a recovery link can stop
// working before its TTL. Size the store above the expected number of
// outstanding tokens, or use the SQL backend.
func NewMemory(size int, maxTTL time.Duration) *Memory {
	if size <= 0 {
		size = 10_000
	}
	if maxTTL <= 0 {
		maxTTL = 72 * time.Hour
	}
	return &Memory{cache: expirable.NewLRU[string, entry](size, nil, maxTTL)}
}

// PutToken stores value under key unless a live entry already holds the key.
func (m *Memory) PutToken(_ context.Context, key, value string, now, expiresAt time.Time) error {
	if key == "" {
		return persistence.ErrConstraintViolation
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.cache.Peek(key); ok && now.Before(existing.expiresAt) {
		return &persistence.DuplicateError{Field: "key"}
	}
	m.cache.Add(key, entry{value: value, expiresAt: expiresAt})
	return nil
}

// TakeToken returns and removes a live entry. Reads and removal share one
// critical section so a token is handed out at most once.
func (m *Memory) TakeToken(_ context.Context, key string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.cache.Peek(key)
	if !ok {
		return "", persistence.ErrNotFound
	}
	m.cache.Remove(key)
	if !now.Before(e.expiresAt) {
		return "", persistence.ErrNotFound
	}
	return e.value, nil
}

// Len reports the number of retained entries, expired ones included until
// the cache evicts them.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Len()
}
