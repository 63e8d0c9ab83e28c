package engagement_test

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/koopa0/video-engagement/internal/engagement"
	"github.com/koopa0/video-engagement/internal/kv"
	"github.com/koopa0/video-engagement/internal/testutils"
	apperrors "github.com/koopa0/video-engagement/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func likesCounter(t *testing.T, e *env, videoID primitive.ObjectID) int64 {
	t.Helper()
	val, found, err := e.kv.Get(context.Background(), kv.VideoLikesKey(videoID.Hex()))
	require.NoError(t, err)
	require.True(t, found, "likes counter should be warm")
	n, err := strconv.ParseInt(val, 10, 64)
	require.NoError(t, err)
	return n
}

func TestToggleLike(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	video := e.video(t)
	fan := testutils.CreateUser(t, e.store, "Fan", "")

	liked, err := e.svc.ToggleLike(ctx, video.ID, fan.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, int64(1), likesCounter(t, e, video.ID))

	liked, err = e.svc.ToggleLike(ctx, video.ID, fan.ID)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Equal(t, int64(0), likesCounter(t, e, video.ID))

	has, err := e.store.HasLike(ctx, video.ID, fan.ID)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestToggleLike_ColdCacheSeedsFromLikeRows(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	video := e.video(t)
	for i := 0; i < 2; i++ {
		require.NoError(t, e.store.CreateLike(ctx, video.ID, primitive.NewObjectID()))
	}

	liked, err := e.svc.ToggleLike(ctx, video.ID, primitive.NewObjectID())
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, int64(3), likesCounter(t, e, video.ID), "warm happens before the new row, so it is counted once")
}

func TestToggleLike_Concurrent(t *testing.T) {
	e := newEnv(t, func(o *engagement.Options) { o.LikeAttempts = 5 })
	ctx := context.Background()
	video := e.video(t)
	fan := testutils.CreateUser(t, e.store, "Fan", "")

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.ToggleLike(ctx, video.ID, fan.ID)
			if err != nil {
				assert.True(t, apperrors.IsTryAgain(err), "unexpected error: %v", err)
				return
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
		}()
	}
	wg.Wait()

	has, err := e.store.HasLike(ctx, video.ID, fan.ID)
	require.NoError(t, err)
	count, err := e.store.CountLikes(ctx, video.ID)
	require.NoError(t, err)

	assert.Equal(t, succeeded%2 == 1, has, "each successful toggle flips the state once")
	assert.LessOrEqual(t, count, int64(1))
	assert.Equal(t, count, likesCounter(t, e, video.ID))
}

func TestToggleLike_FlushesEveryN(t *testing.T) {
	e := newEnv(t, func(o *engagement.Options) { o.LikesFlushEvery = 2 })
	ctx := context.Background()
	video := e.video(t)

	_, err := e.svc.ToggleLike(ctx, video.ID, primitive.NewObjectID())
	require.NoError(t, err)
	assert.Equal(t, int64(0), e.reload(t, video.ID).Likes)

	_, err = e.svc.ToggleLike(ctx, video.ID, primitive.NewObjectID())
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.reload(t, video.ID).Likes)
}

func TestToggleLike_UnknownVideo(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.ToggleLike(context.Background(), primitive.NewObjectID(), primitive.NewObjectID())
	assert.True(t, apperrors.IsNotFound(err))
}
