// Package session persists the upstream bearer token per user. The sync
// layer consults it before any remote call: no session means guest state,
// never an anonymous request.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/serviosync/internal/booking/domain"
)

// ErrNoSession indicates the user has no persisted session. Screens should
// prompt sign-in rather than retry.
var ErrNoSession = errors.New("no active session")

// Store holds one upstream token per user.
type Store interface {
	Token(ctx context.Context, userID string) (string, error)
	Save(ctx context.Context, userID, token string, ttl time.Duration) error
	Delete(ctx context.Context, userID string) error
}

// MemoryStore is an in-memory implementation suitable for tests and local
// demos.
type MemoryStore struct {
	mu     sync.RWMutex
	clock  domain.Clock
	tokens map[string]memoryToken
}

type memoryToken struct {
	value     string
	expiresAt time.Time
}

// NewMemoryStore constructs an empty memory store.
func NewMemoryStore(clock domain.Clock) *MemoryStore {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &MemoryStore{clock: clock, tokens: make(map[string]memoryToken)}
}

// Token retrieves the user's upstream token.
func (m *MemoryStore) Token(_ context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.tokens[userID]
	if !ok {
		return "", ErrNoSession
	}
	if !token.expiresAt.IsZero() && m.clock.Now().After(token.expiresAt) {
		return "", ErrNoSession
	}
	return token.value, nil
}

// Save stores the token, optionally bounded by ttl.
func (m *MemoryStore) Save(_ context.Context, userID, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := memoryToken{value: token}
	if ttl > 0 {
		stored.expiresAt = m.clock.Now().Add(ttl)
	}
	m.tokens[userID] = stored
	return nil
}

// Delete removes the user's session.
func (m *MemoryStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, userID)
	return nil
}
