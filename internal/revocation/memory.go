package revocation

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCapacityExceeded = errors.New("revocation store capacity exceeded")

type MemoryConfig struct {
	Now     func() time.Time
	MaxKeys int
}

// MemoryStore is a process-local blacklist for single instance deployments
// and tests.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	data    map[string]time.Time
	maxKeys int
}

func NewMemoryStore(cfg MemoryConfig) *MemoryStore {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 100000
	}
	return &MemoryStore{
		now:     cfg.Now,
		data:    make(map[string]time.Time),
		maxKeys: cfg.MaxKeys,
	}
}

func (m *MemoryStore) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[jti]; !ok && len(m.data) >= m.maxKeys {
		m.gc(now)
		if len(m.data) >= m.maxKeys {
			return ErrCapacityExceeded
		}
	}
	m.data[jti] = now.Add(ttl)
	return nil
}

func (m *MemoryStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.data[jti]
	if !ok {
		return false, nil
	}
	if !now.Before(exp) {
		delete(m.data, jti)
		return false, nil
	}
	return true, nil
}

func (m *MemoryStore) Purge(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gc(m.now()), nil
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func (m *MemoryStore) gc(now time.Time) int64 {
	var n int64
	for jti, exp := range m.data {
		if !now.Before(exp) {
			delete(m.data, jti)
			n++
		}
	}
	return n
}
