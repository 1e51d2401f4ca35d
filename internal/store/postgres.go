package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/budgetme/prediction-api/internal/forecast"
)

// PostgresStore implements CacheStore and QuotaStore on a pgx pool, for
// multi-instance deployments where shared state must live outside the
// process.
type PostgresStore struct {
	pool     *pgxpool.Pool
	capacity int
}

// NewPostgresStore wraps an existing pool. capacity bounds the number of
// cached entries across all users.
func NewPostgresStore(pool *pgxpool.Pool, capacity int) *PostgresStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &PostgresStore{pool: pool, capacity: capacity}
}

// EnsureSchema creates the cache and quota tables when missing.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS prediction_cache (
			fingerprint TEXT PRIMARY KEY,
			owner_id    TEXT NOT NULL,
			result      JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			expires_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS prediction_cache_owner_idx ON prediction_cache (owner_id)`,
		`CREATE TABLE IF NOT EXISTS prediction_cache_reservations (
			fingerprint TEXT PRIMARY KEY,
			reserved_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS prediction_usage (
			user_id           TEXT NOT NULL,
			period_key        TEXT NOT NULL,
			computation_count INT NOT NULL DEFAULT 0,
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, period_key)
		)`,
	}
	for _, stmt := range statements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Get returns the live entry for a fingerprint.
func (p *PostgresStore) Get(ctx context.Context, fingerprint string) (*CacheEntry, error) {
	query := `
		SELECT fingerprint, owner_id, result, created_at, expires_at
		FROM prediction_cache
		WHERE fingerprint = $1 AND expires_at > now()
	`
	var entry CacheEntry
	var raw []byte
	err := p.pool.QueryRow(ctx, query, fingerprint).
		Scan(&entry.Fingerprint, &entry.Owner, &raw, &entry.CreatedAt, &entry.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	entry.Result = &forecast.Result{}
	if err := json.Unmarshal(raw, entry.Result); err != nil {
		return nil, fmt.Errorf("decode cached result: %w", err)
	}
	return &entry, nil
}

// Put upserts an entry and trims the table back to capacity, oldest first.
func (p *PostgresStore) Put(ctx context.Context, entry *CacheEntry) error {
	raw, err := json.Marshal(entry.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	query := `
		INSERT INTO prediction_cache (fingerprint, owner_id, result, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (fingerprint) DO UPDATE
		SET result = EXCLUDED.result, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at
	`
	if _, err := p.pool.Exec(ctx, query, entry.Fingerprint, entry.Owner, raw, entry.CreatedAt, entry.ExpiresAt); err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}

	evict := `
		DELETE FROM prediction_cache
		WHERE fingerprint IN (
			SELECT fingerprint FROM prediction_cache
			ORDER BY created_at DESC
			OFFSET $1
		)
	`
	if _, err := p.pool.Exec(ctx, evict, p.capacity); err != nil {
		return fmt.Errorf("evict cache entries: %w", err)
	}
	return nil
}

// Reserve takes the computation slot for a fingerprint. Reservations older
// than the reservation TTL are treated as abandoned and reclaimed.
func (p *PostgresStore) Reserve(ctx context.Context, fingerprint string) (bool, error) {
	reclaim := `DELETE FROM prediction_cache_reservations WHERE fingerprint = $1 AND reserved_at < $2`
	if _, err := p.pool.Exec(ctx, reclaim, fingerprint, time.Now().Add(-reservationTTL)); err != nil {
		return false, fmt.Errorf("reclaim reservation: %w", err)
	}
	query := `
		INSERT INTO prediction_cache_reservations (fingerprint, reserved_at)
		VALUES ($1, now())
		ON CONFLICT (fingerprint) DO NOTHING
	`
	tag, err := p.pool.Exec(ctx, query, fingerprint)
	if err != nil {
		return false, fmt.Errorf("reserve fingerprint: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release drops a reservation.
func (p *PostgresStore) Release(ctx context.Context, fingerprint string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM prediction_cache_reservations WHERE fingerprint = $1`, fingerprint); err != nil {
		return fmt.Errorf("release reservation: %w", err)
	}
	return nil
}

// DeleteByOwner removes all cached entries owned by a user.
func (p *PostgresStore) DeleteByOwner(ctx context.Context, owner string) (int, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM prediction_cache WHERE owner_id = $1`, owner)
	if err != nil {
		return 0, fmt.Errorf("delete cache entries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CheckAndIncrement takes a computation slot with a single conditional
// upsert, so the ceiling test and the increment cannot interleave across
// concurrent requests.
func (p *PostgresStore) CheckAndIncrement(ctx context.Context, userID, periodKey string, ceiling int) (int, bool, error) {
	query := `
		INSERT INTO prediction_usage (user_id, period_key, computation_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (user_id, period_key) DO UPDATE
		SET computation_count = prediction_usage.computation_count + 1, updated_at = now()
		WHERE prediction_usage.computation_count < $3
		RETURNING computation_count
	`
	var used int
	err := p.pool.QueryRow(ctx, query, userID, periodKey, ceiling).Scan(&used)
	if err == nil {
		return used, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("increment usage: %w", err)
	}
	// The guarded update matched nothing: the ceiling is already reached.
	used, err = p.Usage(ctx, userID, periodKey)
	if err != nil {
		return 0, false, err
	}
	return used, false, nil
}

// Usage returns the user's computation count for the period.
func (p *PostgresStore) Usage(ctx context.Context, userID, periodKey string) (int, error) {
	var used int
	err := p.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(computation_count), 0) FROM prediction_usage WHERE user_id = $1 AND period_key = $2`,
		userID, periodKey).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("read usage: %w", err)
	}
	return used, nil
}
