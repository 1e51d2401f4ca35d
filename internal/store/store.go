// Package store provides the persistence contracts for forecast caching and
// usage-quota tracking, with in-memory and Postgres implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/budgetme/prediction-api/internal/forecast"
)

// ErrNotFound is returned by Get when no live entry exists for a fingerprint.
var ErrNotFound = errors.New("store: entry not found")

// CacheEntry is a cached forecast keyed by its fingerprint. The fingerprint
// already encodes the owner, so entries are never shared across users.
type CacheEntry struct {
	Fingerprint string           `json:"fingerprint"`
	Owner       string           `json:"owner"`
	Result      *forecast.Result `json:"result"`
	CreatedAt   time.Time        `json:"created_at"`
	ExpiresAt   time.Time        `json:"expires_at"`
}

// CacheStore maps fingerprints to forecast results with TTL expiry,
// oldest-first capacity eviction, and a reservation primitive guaranteeing
// at most one computation in flight per fingerprint.
type CacheStore interface {
	// Get returns the live entry for a fingerprint, or ErrNotFound when the
	// entry is missing or expired.
	Get(ctx context.Context, fingerprint string) (*CacheEntry, error)
	// Put stores an entry, evicting the oldest entries beyond capacity.
	Put(ctx context.Context, entry *CacheEntry) error
	// Reserve marks a fingerprint as being computed. It returns false when a
	// concurrent computation already holds the reservation.
	Reserve(ctx context.Context, fingerprint string) (bool, error)
	// Release drops a reservation taken by Reserve.
	Release(ctx context.Context, fingerprint string) error
	// DeleteByOwner removes all entries owned by a user, returning the count.
	DeleteByOwner(ctx context.Context, owner string) (int, error)
}

// QuotaStore tracks per-user computation counts per calendar-month period.
type QuotaStore interface {
	// CheckAndIncrement atomically increments the user's counter for the
	// period if it is below ceiling. It returns the resulting count and
	// whether the computation is allowed. The increment and the ceiling test
	// are a single atomic step; two concurrent calls can never both take the
	// last slot.
	CheckAndIncrement(ctx context.Context, userID, periodKey string, ceiling int) (used int, allowed bool, err error)
	// Usage returns the user's current count for the period.
	Usage(ctx context.Context, userID, periodKey string) (int, error)
}

// PeriodKey derives the calendar-month quota period for a point in time.
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// NextReset returns the first instant of the following period, when the
// counter implicitly starts fresh.
func NextReset(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
