package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// reservationTTL bounds how long an in-flight reservation can block others,
// so a crashed computation cannot wedge a fingerprint forever.
const reservationTTL = 2 * time.Minute

// sweepInterval is how often the background cleanup runs.
const sweepInterval = 5 * time.Minute

// MemoryStore implements CacheStore and QuotaStore with in-process maps.
// Used for single-instance deployments and local development.
type MemoryStore struct {
	mu sync.RWMutex

	entries      map[string]*CacheEntry
	reservations map[string]time.Time
	quotas       map[string]int // userID|periodKey -> count

	capacity int
	done     chan struct{}
}

// NewMemoryStore creates a memory store with background expiry cleanup.
// capacity bounds the number of cached entries; on overflow the oldest
// entries by creation time are evicted first.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1000
	}
	m := &MemoryStore{
		entries:      make(map[string]*CacheEntry),
		reservations: make(map[string]time.Time),
		quotas:       make(map[string]int),
		capacity:     capacity,
		done:         make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Stop signals the background cleanup goroutine to exit.
func (m *MemoryStore) Stop() { close(m.done) }

// Get returns the live entry for a fingerprint. An expired entry is a miss.
func (m *MemoryStore) Get(_ context.Context, fingerprint string) (*CacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[fingerprint]
	if !ok || time.Now().After(entry.ExpiresAt) {
		return nil, ErrNotFound
	}
	return entry, nil
}

// Put stores an entry and evicts the oldest entries beyond capacity.
func (m *MemoryStore) Put(_ context.Context, entry *CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Fingerprint] = entry

	if len(m.entries) <= m.capacity {
		return nil
	}
	type aged struct {
		fingerprint string
		createdAt   time.Time
	}
	all := make([]aged, 0, len(m.entries))
	for fp, e := range m.entries {
		all = append(all, aged{fp, e.CreatedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].createdAt.Before(all[j].createdAt) })
	for _, a := range all[:len(m.entries)-m.capacity] {
		delete(m.entries, a.fingerprint)
	}
	return nil
}

// Reserve marks a fingerprint as in flight. Stale reservations are reclaimed.
func (m *MemoryStore) Reserve(_ context.Context, fingerprint string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if at, ok := m.reservations[fingerprint]; ok && time.Since(at) < reservationTTL {
		return false, nil
	}
	m.reservations[fingerprint] = time.Now()
	return true, nil
}

// Release drops an in-flight reservation.
func (m *MemoryStore) Release(_ context.Context, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reservations, fingerprint)
	return nil
}

// DeleteByOwner removes all cached entries owned by a user.
func (m *MemoryStore) DeleteByOwner(_ context.Context, owner string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for fp, e := range m.entries {
		if e.Owner == owner {
			delete(m.entries, fp)
			deleted++
		}
	}
	return deleted, nil
}

// CheckAndIncrement atomically takes a computation slot if one remains.
func (m *MemoryStore) CheckAndIncrement(_ context.Context, userID, periodKey string, ceiling int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := userID + "|" + periodKey
	used := m.quotas[key]
	if used >= ceiling {
		return used, false, nil
	}
	used++
	m.quotas[key] = used
	return used, true, nil
}

// Usage returns the user's computation count for the period.
func (m *MemoryStore) Usage(_ context.Context, userID, periodKey string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.quotas[userID+"|"+periodKey], nil
}

// Len reports the number of cached entries. Intended for tests.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryStore) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			now := time.Now()
			m.mu.Lock()
			for fp, e := range m.entries {
				if now.After(e.ExpiresAt) {
					delete(m.entries, fp)
				}
			}
			for fp, at := range m.reservations {
				if now.Sub(at) >= reservationTTL {
					delete(m.reservations, fp)
				}
			}
			m.mu.Unlock()
		}
	}
}
