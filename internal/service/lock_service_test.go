package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/logbook-api/pkg/errors"
)

// stubLockStore is an in-memory LockStore without expiry, enough to drive the
// service-level contract.
type stubLockStore struct {
	mu      sync.Mutex
	holders map[string]string
	err     error
	lastTTL time.Duration
}

func newStubLockStore() *stubLockStore {
	return &stubLockStore{holders: make(map[string]string)}
}

func (s *stubLockStore) AcquireOrRefresh(_ context.Context, recordID, holder string, ttl time.Duration) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTTL = ttl
	if current, ok := s.holders[recordID]; ok && current != holder {
		return false, nil
	}
	s.holders[recordID] = holder
	return true, nil
}

func (s *stubLockStore) ReleaseIfHeld(_ context.Context, recordID, holder string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holders[recordID] != holder {
		return false, nil
	}
	delete(s.holders, recordID)
	return true, nil
}

func (s *stubLockStore) ExtendIfHeld(_ context.Context, recordID, holder string, ttl time.Duration) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTTL = ttl
	return s.holders[recordID] == holder, nil
}

func (s *stubLockStore) Holder(_ context.Context, recordID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holders[recordID], nil
}

func (s *stubLockStore) drop(recordID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.holders, recordID)
}

func TestLockServiceAcquireAndContention(t *testing.T) {
	store := newStubLockStore()
	svc := NewLockService(store, time.Minute, nil, zap.NewNop())
	ctx := context.Background()

	ok, err := svc.Acquire(ctx, "rec-1", "teacher-1", 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, store.lastTTL)

	ok, err = svc.Acquire(ctx, "rec-1", "teacher-2", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	holder, err := svc.Inspect(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", holder)
}

func TestLockServiceDefaultTTLFallback(t *testing.T) {
	store := newStubLockStore()
	svc := NewLockService(store, 0, nil, zap.NewNop())

	_, err := svc.Acquire(context.Background(), "rec-1", "teacher-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, store.lastTTL)
}

func TestLockServiceReleaseNotHeld(t *testing.T) {
	store := newStubLockStore()
	svc := NewLockService(store, time.Minute, nil, zap.NewNop())

	released, err := svc.Release(context.Background(), "rec-1", "teacher-1")
	require.NoError(t, err)
	assert.False(t, released)
}

func TestLockServiceStoreFailureWrapped(t *testing.T) {
	store := newStubLockStore()
	store.err = errors.New("connection refused")
	svc := NewLockService(store, time.Minute, nil, zap.NewNop())

	_, err := svc.Acquire(context.Background(), "rec-1", "teacher-1", 0)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErr.Code)
}

func TestLockServiceMetricsOutcomes(t *testing.T) {
	store := newStubLockStore()
	metrics := NewMetricsService()
	svc := NewLockService(store, time.Minute, metrics, zap.NewNop())
	ctx := context.Background()

	ok, err := svc.Acquire(ctx, "rec-1", "teacher-1", 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.Acquire(ctx, "rec-1", "teacher-2", 0)
	require.NoError(t, err)
	require.False(t, ok)

	released, err := svc.Release(ctx, "rec-1", "teacher-1")
	require.NoError(t, err)
	assert.True(t, released)
}
