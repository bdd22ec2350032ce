package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ride-chat-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaAllowsUpToLimit(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	repo := NewQuotaRepository(rdb)
	id := model.Identity{UserID: 1, Type: model.UserTypeGuest}

	for i := 0; i < 3; i++ {
		d, err := repo.CheckAndRecord(ctx, id, 24*time.Hour, 3, fmt.Sprintf("t%d", i))
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, int64(i+1), d.Count)
	}

	d, err := repo.CheckAndRecord(ctx, id, 24*time.Hour, 3, "t3")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	// 被拒绝的请求不计数
	n, err := repo.Count(ctx, 1, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	other, err := repo.CheckAndRecord(ctx, model.Identity{UserID: 2}, 24*time.Hour, 3, "x")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestQuotaWindowAgesOut(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &quotaRepository{rdb: rdb, now: func() time.Time { return now }}
	id := model.Identity{UserID: 9}

	d, err := repo.CheckAndRecord(ctx, id, time.Hour, 1, "old")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = repo.CheckAndRecord(ctx, id, time.Hour, 1, "blocked")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	now = now.Add(61 * time.Minute)
	d, err = repo.CheckAndRecord(ctx, id, time.Hour, 1, "fresh")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Count)
}

func TestQuotaConcurrentCallersNeverExceedLimit(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	repo := NewQuotaRepository(rdb)
	id := model.Identity{UserID: 5}

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := repo.CheckAndRecord(ctx, id, 24*time.Hour, 5, fmt.Sprintf("t%d", i))
			if err == nil && d.Allowed {
				atomic.AddInt64(&allowed, 1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(5), allowed)
}

func TestQuotaBackendFailureIsReported(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	repo := NewQuotaRepository(rdb)
	mr.Close()

	_, err := repo.CheckAndRecord(ctx, model.Identity{UserID: 1}, time.Hour, 5, "t")
	assert.Error(t, err)
}
