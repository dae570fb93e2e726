package limiter

import (
	"context"
	"sync"
	"time"
)

type attempt struct {
	fails        int
	last         time.Time
	blockedUntil time.Time
}

// Memory is an in-process limiter for single-process deployments (embedded SQLite, local shell).
type Memory struct {
	Settings

	mu        sync.Mutex
	byID      map[string]*attempt
	lastSweep time.Time
	now       func() time.Time
}

// NewMemory constructs an in-process limiter.
func NewMemory(s Settings) *Memory {
	return &Memory{Settings: s, byID: make(map[string]*attempt), now: time.Now}
}

// expired reports whether a no longer affects future decisions.
func (m *Memory) expired(a *attempt, now time.Time) bool {
	return now.Sub(a.last) > m.Window && !a.blockedUntil.After(now)
}

// sweep drops expired entries, at most once per window. Callers hold mu.
func (m *Memory) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < m.Window {
		return
	}
	m.lastSweep = now
	for k, a := range m.byID {
		if m.expired(a, now) {
			delete(m.byID, k)
		}
	}
}

func key(username string, originHash []byte) string { return username + "\x00" + string(originHash) }

// Allow reports whether login is currently allowed and a retry-after duration.
func (m *Memory) Allow(_ context.Context, username string, originHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)
	a, ok := m.byID[key(username, originHash)]
	if !ok {
		return true, 0, nil
	}
	if a.blockedUntil.After(now) {
		return false, a.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success forgets previous failures.
func (m *Memory) Success(_ context.Context, username string, originHash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.byID, key(username, originHash))
	return nil
}

// Failure records a failed attempt; may set a block until a future time.
func (m *Memory) Failure(_ context.Context, username string, originHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)
	k := key(username, originHash)
	a, ok := m.byID[k]
	if !ok || now.Sub(a.last) > m.Window {
		a = &attempt{}
		m.byID[k] = a
	}
	a.fails++
	a.last = now
	if a.fails >= m.MaxFails {
		a.blockedUntil = now.Add(m.BlockFor)
		return true, m.BlockFor, nil
	}
	return false, 0, nil
}
