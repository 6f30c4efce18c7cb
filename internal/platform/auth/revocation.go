package auth

import (
	"context"
	"sync"
	"time"
)

// RevocationStore records token ids that must no longer be accepted. Entries
// only need to live until the token would have expired anyway.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// MemoryRevocationStore keeps revoked token ids in process memory. It is
// used when no Redis is configured; revocations do not survive a restart.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time // jti -> expiry
	done    chan struct{}
}

// NewMemoryRevocationStore creates a store and starts a background goroutine
// that drops expired entries every interval.
func NewMemoryRevocationStore(interval time.Duration) *MemoryRevocationStore {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	s := &MemoryRevocationStore{
		entries: make(map[string]time.Time),
		done:    make(chan struct{}),
	}
	go s.cleanupLoop(interval)
	return s
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[jti] = expiresAt
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[jti]
	return ok, nil
}

// Count returns the number of currently revoked tokens.
func (s *MemoryRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (s *MemoryRevocationStore) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *MemoryRevocationStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanup(time.Now())
		}
	}
}

func (s *MemoryRevocationStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, exp := range s.entries {
		if now.After(exp) {
			delete(s.entries, jti)
		}
	}
}
