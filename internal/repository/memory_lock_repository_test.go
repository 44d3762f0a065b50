package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryStore(t *testing.T) *MemoryLockStore {
	t.Helper()
	store := NewMemoryLockStore(time.Hour)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMemoryLockStoreAcquireAndRelease(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	ok, err := store.AcquireOrRefresh(ctx, "rec-1", "teacher-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	holder, err := store.Holder(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", holder)

	ok, err = store.ReleaseIfHeld(ctx, "rec-1", "teacher-1")
	require.NoError(t, err)
	assert.True(t, ok)

	holder, err = store.Holder(ctx, "rec-1")
	require.NoError(t, err)
	assert.Empty(t, holder)
}

func TestMemoryLockStoreReacquireByOwnerRefreshes(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	ok, err := store.AcquireOrRefresh(ctx, "rec-1", "teacher-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Same holder acquiring again succeeds and keeps the lock.
	ok, err = store.AcquireOrRefresh(ctx, "rec-1", "teacher-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	holder, err := store.Holder(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", holder)
}

func TestMemoryLockStoreContention(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	ok, err := store.AcquireOrRefresh(ctx, "rec-1", "teacher-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.AcquireOrRefresh(ctx, "rec-1", "teacher-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.ReleaseIfHeld(ctx, "rec-1", "teacher-2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.ExtendIfHeld(ctx, "rec-1", "teacher-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	holder, err := store.Holder(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", holder)
}

func TestMemoryLockStoreExpiry(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	ok, err := store.AcquireOrRefresh(ctx, "rec-1", "teacher-1", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(25 * time.Millisecond)

	// Expired entries behave as absent even before the sweeper runs.
	holder, err := store.Holder(ctx, "rec-1")
	require.NoError(t, err)
	assert.Empty(t, holder)

	ok, err = store.ExtendIfHeld(ctx, "rec-1", "teacher-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.ReleaseIfHeld(ctx, "rec-1", "teacher-1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.AcquireOrRefresh(ctx, "rec-1", "teacher-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLockStoreExtendResetsExpiry(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	ok, err := store.AcquireOrRefresh(ctx, "rec-1", "teacher-1", 40*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	ok, err = store.ExtendIfHeld(ctx, "rec-1", "teacher-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	holder, err := store.Holder(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", holder)
}

func TestMemoryLockStoreSingleWinnerUnderRace(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	const contenders = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := make([]string, 0, 1)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			holder := string(rune('a' + id%26))
			ok, err := store.AcquireOrRefresh(ctx, "rec-1", holder+"-"+string(rune('0'+id/26)), time.Minute)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				winners = append(winners, holder)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, winners, 1)
}

func TestMemoryLockStoreSweeperEvicts(t *testing.T) {
	store := NewMemoryLockStore(10 * time.Millisecond)
	defer store.Close()
	ctx := context.Background()

	ok, err := store.AcquireOrRefresh(ctx, "rec-1", "teacher-1", time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(50 * time.Millisecond)

	store.mu.Lock()
	_, present := store.locks["rec-1"]
	store.mu.Unlock()
	assert.False(t, present)
}
