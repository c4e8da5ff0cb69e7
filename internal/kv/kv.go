// Package kv is the shared expiring key-value store used for webhook
// redelivery suppression and single-use OAuth state.
package kv

import (
	"context"
	"sync"
	"time"
)

type Store interface {
	// SetNX stores value under key for ttl unless the key already exists.
	// It reports whether this call created the key.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Take returns and deletes the value under key.
	Take(ctx context.Context, key string) (string, bool, error)
}

type entry struct {
	value     string
	expiresAt time.Time
}

// Memory is a process-local Store for single-instance runs and tests.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]entry
}

func NewMemory() *Memory {
	return &Memory{now: time.Now, entries: make(map[string]entry)}
}

func (m *Memory) live(key string, now time.Time) (entry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
		delete(m.entries, key)
		return entry{}, false
	}
	return e, true
}

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if _, ok := m.live(key, now); ok {
		return false, nil
	}
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	m.entries[key] = e
	m.sweep(now)
	return true, nil
}

func (m *Memory) Take(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(key, m.now())
	if !ok {
		return "", false, nil
	}
	delete(m.entries, key)
	return e.value, true, nil
}

// sweep drops expired entries once the map grows, keeping memory bounded.
func (m *Memory) sweep(now time.Time) {
	if len(m.entries) < 1024 {
		return
	}
	for k := range m.entries {
		m.live(k, now)
	}
}
