// Package service wires the forecasting core to the cache, the quota
// ledger and the HTTP surface.
package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/budgetme/prediction-api/internal/forecast"
	"github.com/budgetme/prediction-api/internal/store"
)

// reservationPollInterval is how often a request that lost the
// computation reservation re-checks the cache for the winner's result.
const reservationPollInterval = 100 * time.Millisecond

// Options tunes a PredictionService.
type Options struct {
	CacheTTL        time.Duration
	MaxPerMonth     int
	MinObservations int
	FitTimeout      time.Duration
}

// PredictionService generates, caches and meters forecasts.
type PredictionService struct {
	cache    store.CacheStore
	quota    store.QuotaStore
	primary  forecast.Forecaster
	fallback forecast.Forecaster
	log      *logrus.Logger
	opts     Options

	group singleflight.Group
	now   func() time.Time

	// computations counts model fits actually performed, for the usage
	// endpoint's sanity checks and for tests.
	computations atomic.Int64
}

// NewPredictionService builds a service. primary may be nil, in which
// case every request is served by the fallback estimator.
func NewPredictionService(cache store.CacheStore, quota store.QuotaStore, primary, fallback forecast.Forecaster, log *logrus.Logger, opts Options) *PredictionService {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	if opts.MaxPerMonth <= 0 {
		opts.MaxPerMonth = 5
	}
	if opts.MinObservations < 2 {
		opts.MinObservations = 2
	}
	if opts.FitTimeout <= 0 {
		opts.FitTimeout = 20 * time.Second
	}
	return &PredictionService{
		cache:    cache,
		quota:    quota,
		primary:  primary,
		fallback: fallback,
		log:      log,
		opts:     opts,
		now:      time.Now,
	}
}

type generateOutcome struct {
	result    *forecast.Result
	fromCache bool
}

// Generate returns a forecast for the user's transactions, serving from
// cache when an identical request was computed recently. The bool result
// reports whether the payload came from the cache.
func (s *PredictionService) Generate(ctx context.Context, userID string, records []forecast.TransactionRecord, horizon forecast.Horizon) (*forecast.Result, bool, error) {
	if userID == "" {
		return nil, false, forecast.NewValidationError("user", "user ID is required")
	}
	if !horizon.Valid() {
		return nil, false, forecast.NewValidationError("timeframe", "must be one of months_1, months_3, months_6, months_12")
	}

	in, err := forecast.Normalize(records)
	if err != nil {
		return nil, false, err
	}
	fingerprint := forecast.Fingerprint(userID, in, horizon)

	if entry, ok := s.cacheGet(ctx, fingerprint); ok {
		return entry.Result, true, nil
	}

	// Identical concurrent requests inside this process share one
	// computation; the reservation below extends that across processes.
	v, err, _ := s.group.Do(fingerprint, func() (interface{}, error) {
		return s.computeLocked(ctx, userID, fingerprint, in, horizon)
	})
	if err != nil {
		return nil, false, err
	}
	out := v.(*generateOutcome)
	return out.result, out.fromCache, nil
}

func (s *PredictionService) computeLocked(ctx context.Context, userID, fingerprint string, in *forecast.NormalizedInput, horizon forecast.Horizon) (*generateOutcome, error) {
	// A concurrent request may have populated the cache while we waited
	// on the singleflight slot.
	if entry, ok := s.cacheGet(ctx, fingerprint); ok {
		return &generateOutcome{result: entry.Result, fromCache: true}, nil
	}

	reserved, err := s.cache.Reserve(ctx, fingerprint)
	if err != nil {
		// A broken cache must not block forecasting. Compute without
		// coordination and skip the release on the way out.
		s.log.WithError(err).WithField("fingerprint", fingerprint).Warn("cache reservation failed, computing without coordination")
		return s.compute(ctx, userID, fingerprint, in, horizon, false)
	}
	if !reserved {
		if entry, ok := s.awaitResult(ctx, fingerprint); ok {
			return &generateOutcome{result: entry.Result, fromCache: true}, nil
		}
		// The reservation holder never published a result. Compute
		// ourselves rather than failing the request.
		s.log.WithField("fingerprint", fingerprint).Warn("reservation holder produced no result, computing locally")
		return s.compute(ctx, userID, fingerprint, in, horizon, false)
	}
	return s.compute(ctx, userID, fingerprint, in, horizon, true)
}

// awaitResult polls the cache while another process holds the
// computation reservation for this fingerprint.
func (s *PredictionService) awaitResult(ctx context.Context, fingerprint string) (*store.CacheEntry, bool) {
	deadline := s.now().Add(s.opts.FitTimeout)
	ticker := time.NewTicker(reservationPollInterval)
	defer ticker.Stop()
	for s.now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, false
		case <-ticker.C:
		}
		if entry, ok := s.cacheGet(ctx, fingerprint); ok {
			return entry, true
		}
	}
	return nil, false
}

func (s *PredictionService) compute(ctx context.Context, userID, fingerprint string, in *forecast.NormalizedInput, horizon forecast.Horizon, release bool) (*generateOutcome, error) {
	if release {
		defer func() {
			if err := s.cache.Release(context.WithoutCancel(ctx), fingerprint); err != nil {
				s.log.WithError(err).WithField("fingerprint", fingerprint).Warn("failed to release reservation")
			}
		}()
	}

	now := s.now()
	used, allowed, err := s.quota.CheckAndIncrement(ctx, userID, store.PeriodKey(now), s.opts.MaxPerMonth)
	if err != nil {
		// Fail closed: an unverifiable budget is treated as exhausted so
		// a flaky quota store cannot grant unmetered computations.
		s.log.WithError(err).WithField("user_id", userID).Error("quota check failed")
		qe := forecast.NewQuotaExceededError(s.opts.MaxPerMonth, s.opts.MaxPerMonth, store.NextReset(now))
		qe.Cause = err
		qe.Message = "prediction usage could not be verified"
		return nil, qe
	}
	if !allowed {
		return nil, forecast.NewQuotaExceededError(used, s.opts.MaxPerMonth, store.NextReset(now))
	}

	proj := s.fit(ctx, in, horizon)
	s.computations.Add(1)

	result := forecast.Assemble(userID, horizon, in, proj, now, s.opts.CacheTTL)
	entry := &store.CacheEntry{
		Fingerprint: fingerprint,
		Owner:       userID,
		Result:      result,
		CreatedAt:   now,
		ExpiresAt:   result.ExpiresAt,
	}
	if err := s.cache.Put(context.WithoutCancel(ctx), entry); err != nil {
		s.log.WithError(err).WithField("fingerprint", fingerprint).Warn("failed to cache forecast")
	}
	return &generateOutcome{result: result}, nil
}

// fit runs the primary engine under its timeout and falls back to the
// flat estimator on any primary failure. It never returns an error: the
// fallback accepts any input the normalizer accepted.
func (s *PredictionService) fit(ctx context.Context, in *forecast.NormalizedInput, horizon forecast.Horizon) *forecast.Projection {
	if s.primary == nil {
		return s.fitFallback(ctx, in, horizon, forecast.DegradedPrimaryUnavailable)
	}
	if in.Aggregate.Observations < s.opts.MinObservations {
		return s.fitFallback(ctx, in, horizon, forecast.DegradedInsufficientHistory)
	}

	fitCtx, cancel := context.WithTimeout(ctx, s.opts.FitTimeout)
	defer cancel()
	proj, err := s.primary.Fit(fitCtx, in, horizon)
	if err == nil {
		return proj
	}

	fields := logrus.Fields{"horizon": horizon, "observations": in.Aggregate.Observations}
	if errors.Is(err, context.DeadlineExceeded) || fitCtx.Err() != nil {
		s.log.WithFields(fields).Warn("model fit timed out, using fallback estimator")
	} else {
		s.log.WithError(err).WithFields(fields).Warn("model fit failed, using fallback estimator")
	}
	return s.fitFallback(ctx, in, horizon, forecast.DegradedModelFitFailed)
}

func (s *PredictionService) fitFallback(ctx context.Context, in *forecast.NormalizedInput, horizon forecast.Horizon, reason string) *forecast.Projection {
	proj, err := s.fallback.Fit(ctx, in, horizon)
	if err != nil {
		// The fallback only rejects empty input, which the normalizer
		// already screens out. Return an empty degraded projection so
		// the assembler still has something coherent to ship.
		s.log.WithError(err).Error("fallback estimator failed")
		proj = &forecast.Projection{ModelKind: forecast.ModelFallback}
	}
	proj.DegradedReason = reason
	return proj
}

// UsageSummary reports the caller's standing against the monthly budget.
type UsageSummary struct {
	Used      int       `json:"predictions_used"`
	Limit     int       `json:"predictions_limit"`
	Remaining int       `json:"predictions_remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Usage returns the user's consumption for the current period.
func (s *PredictionService) Usage(ctx context.Context, userID string) (*UsageSummary, error) {
	now := s.now()
	used, err := s.quota.Usage(ctx, userID, store.PeriodKey(now))
	if err != nil {
		return nil, &forecast.Error{Code: forecast.ErrStoreUnavailable, Message: "usage lookup failed", Cause: err}
	}
	remaining := s.opts.MaxPerMonth - used
	if remaining < 0 {
		remaining = 0
	}
	return &UsageSummary{
		Used:      used,
		Limit:     s.opts.MaxPerMonth,
		Remaining: remaining,
		ResetAt:   store.NextReset(now),
	}, nil
}

// ValidationSummary describes whether a transaction set can feed the
// primary engine, without spending quota.
type ValidationSummary struct {
	Valid            bool      `json:"valid"`
	TransactionCount int       `json:"transaction_count"`
	ObservedDays     int       `json:"observed_days"`
	RequiredDays     int       `json:"required_days"`
	DroppedRecords   int       `json:"dropped_records,omitempty"`
	FirstDate        time.Time `json:"first_date,omitempty"`
	LastDate         time.Time `json:"last_date,omitempty"`
	Message          string    `json:"message,omitempty"`
}

// Validate checks the input against the primary engine's requirements.
func (s *PredictionService) Validate(records []forecast.TransactionRecord, horizon forecast.Horizon) (*ValidationSummary, error) {
	if !horizon.Valid() {
		return nil, forecast.NewValidationError("timeframe", "must be one of months_1, months_3, months_6, months_12")
	}
	in, err := forecast.Normalize(records)
	if err != nil {
		return nil, err
	}
	summary := &ValidationSummary{
		TransactionCount: in.TransactionCount,
		ObservedDays:     in.Aggregate.Observations,
		RequiredDays:     s.opts.MinObservations,
		DroppedRecords:   in.Dropped,
		FirstDate:        in.FirstDate,
		LastDate:         in.LastDate,
	}
	if in.Aggregate.Observations >= s.opts.MinObservations {
		summary.Valid = true
	} else {
		summary.Message = "not enough distinct days of history for the primary model; forecasts will use the fallback estimator"
	}
	return summary, nil
}

// InvalidateCache drops every cached forecast belonging to the user and
// returns the number of entries removed.
func (s *PredictionService) InvalidateCache(ctx context.Context, userID string) (int, error) {
	deleted, err := s.cache.DeleteByOwner(ctx, userID)
	if err != nil {
		return 0, &forecast.Error{Code: forecast.ErrCacheUnavailable, Message: "cache invalidation failed", Cause: err}
	}
	return deleted, nil
}

// Computations reports how many model fits this instance has performed.
func (s *PredictionService) Computations() int64 { return s.computations.Load() }

func (s *PredictionService) cacheGet(ctx context.Context, fingerprint string) (*store.CacheEntry, bool) {
	entry, err := s.cache.Get(ctx, fingerprint)
	if err == nil {
		return entry, true
	}
	if !errors.Is(err, store.ErrNotFound) {
		s.log.WithError(err).WithField("fingerprint", fingerprint).Warn("cache lookup failed, bypassing cache")
	}
	return nil, false
}
