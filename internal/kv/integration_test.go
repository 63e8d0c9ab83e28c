package kv_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koopa0/video-engagement/internal/kv"
	"github.com/koopa0/video-engagement/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRedisStore_Integration 對真實 Redis 驗證原子語義
func TestRedisStore_Integration(t *testing.T) {
	s := kv.NewRedisStore(testutils.SetupRedis(t))
	ctx := context.Background()

	t.Run("SetNX has exactly one winner", func(t *testing.T) {
		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.SetNX(ctx, "race:seed", "0")
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("SAdd gates concurrent inserts", func(t *testing.T) {
		var (
			wg    sync.WaitGroup
			added atomic.Int32
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.SAdd(ctx, kv.RecentVideosSet, "v1")
				assert.NoError(t, err)
				if ok {
					added.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), added.Load())
	})

	t.Run("list trim and remove", func(t *testing.T) {
		_, err := s.LPush(ctx, kv.RecentVideosList, "a", "b", "c")
		require.NoError(t, err)
		dropped, err := s.TrimList(ctx, kv.RecentVideosList, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, dropped)

		got, err := s.LRange(ctx, kv.RecentVideosList, 0, -1)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b"}, got)

		n, err := s.LRem(ctx, kv.RecentVideosList, "b")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("expire", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "ttl:key", "x", 0))
		ok, err := s.Expire(ctx, "ttl:key", 100*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Eventually(t, func() bool {
			ok, err := s.Exists(ctx, "ttl:key")
			return err == nil && !ok
		}, 2*time.Second, 20*time.Millisecond)
	})

	require.NoError(t, s.Ping(ctx))
}
