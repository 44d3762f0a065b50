package repository

import (
	"context"
	"sync"
	"time"
)

type memoryLock struct {
	holder    string
	expiresAt time.Time
}

// MemoryLockStore is an in-process lock store satisfying the same contract as
// RedisLockStore for single-instance deployments. One mutex guards the map,
// so every operation is an atomic check-and-set. Expired entries are ignored
// on read and evicted by a background sweeper.
type MemoryLockStore struct {
	mu    sync.Mutex
	locks map[string]memoryLock

	sweepInterval time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
}

// NewMemoryLockStore constructs the store and starts its sweeper.
func NewMemoryLockStore(sweepInterval time.Duration) *MemoryLockStore {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	s := &MemoryLockStore{
		locks:         make(map[string]memoryLock),
		sweepInterval: sweepInterval,
		stop:          make(chan struct{}),
	}
	go s.sweep()
	return s
}

// AcquireOrRefresh writes the lock when it is free, expired, or already owned
// by holder, resetting the expiry in all three cases.
func (s *MemoryLockStore) AcquireOrRefresh(_ context.Context, recordID, holder string, ttl time.Duration) (bool, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.locks[recordID]; ok && current.expiresAt.After(now) && current.holder != holder {
		return false, nil
	}
	s.locks[recordID] = memoryLock{holder: holder, expiresAt: now.Add(ttl)}
	return true, nil
}

// ReleaseIfHeld deletes the lock only when holder currently owns it.
func (s *MemoryLockStore) ReleaseIfHeld(_ context.Context, recordID, holder string) (bool, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.locks[recordID]
	if !ok || !current.expiresAt.After(now) || current.holder != holder {
		return false, nil
	}
	delete(s.locks, recordID)
	return true, nil
}

// ExtendIfHeld resets the expiry only when holder currently owns the lock.
func (s *MemoryLockStore) ExtendIfHeld(_ context.Context, recordID, holder string, ttl time.Duration) (bool, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.locks[recordID]
	if !ok || !current.expiresAt.After(now) || current.holder != holder {
		return false, nil
	}
	s.locks[recordID] = memoryLock{holder: holder, expiresAt: now.Add(ttl)}
	return true, nil
}

// Holder returns the current lock owner, or "" when the record is unlocked or
// the lock has expired.
func (s *MemoryLockStore) Holder(_ context.Context, recordID string) (string, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.locks[recordID]
	if !ok || !current.expiresAt.After(now) {
		return "", nil
	}
	return current.holder, nil
}

// Close stops the background sweeper.
func (s *MemoryLockStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *MemoryLockStore) sweep() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for id, lock := range s.locks {
				if !lock.expiresAt.After(now) {
					delete(s.locks, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
