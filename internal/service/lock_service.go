package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/logbook-api/pkg/errors"
)

// LockStore is the key-value contract the lock manager builds on. Every
// mutating operation is a single atomic check-and-set in the store; a false
// result means the caller does not own the lock (or lost the race), never a
// fault.
type LockStore interface {
	AcquireOrRefresh(ctx context.Context, recordID, holder string, ttl time.Duration) (bool, error)
	ReleaseIfHeld(ctx context.Context, recordID, holder string) (bool, error)
	ExtendIfHeld(ctx context.Context, recordID, holder string, ttl time.Duration) (bool, error)
	Holder(ctx context.Context, recordID string) (string, error)
}

// LockService manages edit locks on records with single-owner semantics and
// TTL auto-expiry. There is no queueing for contended acquisition; a losing
// caller retries or surfaces the current holder.
type LockService struct {
	store      LockStore
	defaultTTL time.Duration
	metrics    *MetricsService
	logger     *zap.Logger
}

// NewLockService creates a lock manager instance.
func NewLockService(store LockStore, defaultTTL time.Duration, metrics *MetricsService, logger *zap.Logger) *LockService {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockService{store: store, defaultTTL: defaultTTL, metrics: metrics, logger: logger}
}

// Acquire obtains the edit lock for holder, or refreshes it when holder
// already owns it. Returns false when a different holder owns the lock; that
// is a normal contention outcome, not an error.
func (s *LockService) Acquire(ctx context.Context, recordID, holder string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	acquired, err := s.store.AcquireOrRefresh(ctx, recordID, holder, ttl)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "lock store unavailable")
	}
	if s.metrics != nil {
		s.metrics.RecordLockAcquire(acquired)
	}
	if !acquired {
		s.logger.Debug("lock contended", zap.String("record_id", recordID), zap.String("holder", holder))
	}
	return acquired, nil
}

// Release drops the lock when holder owns it. Returns false otherwise,
// including when the lock already expired.
func (s *LockService) Release(ctx context.Context, recordID, holder string) (bool, error) {
	released, err := s.store.ReleaseIfHeld(ctx, recordID, holder)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "lock store unavailable")
	}
	if s.metrics != nil {
		s.metrics.RecordLockRelease(released)
	}
	return released, nil
}

// Extend resets the lock's TTL when holder owns it.
func (s *LockService) Extend(ctx context.Context, recordID, holder string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	extended, err := s.store.ExtendIfHeld(ctx, recordID, holder, ttl)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "lock store unavailable")
	}
	return extended, nil
}

// Inspect returns the current holder, or "" when unlocked. Read-only.
func (s *LockService) Inspect(ctx context.Context, recordID string) (string, error) {
	holder, err := s.store.Holder(ctx, recordID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "lock store unavailable")
	}
	return holder, nil
}
