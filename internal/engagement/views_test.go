package engagement_test

import (
	"context"
	"testing"

	"github.com/koopa0/video-engagement/internal/docstore"
	"github.com/koopa0/video-engagement/internal/engagement"
	"github.com/koopa0/video-engagement/internal/testutils"
	apperrors "github.com/koopa0/video-engagement/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestPlayback(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	video := e.video(t)
	viewer := testutils.CreateUser(t, e.store, "Grace", "Hopper")

	_, err := e.svc.ToggleLike(ctx, video.ID, viewer.ID)
	require.NoError(t, err)
	e.addComments(t, video.ID, viewer.ID, 2)

	got, err := e.svc.Playback(ctx, video.ID, viewer.ID)
	require.NoError(t, err)
	assert.Equal(t, video.Title, got.Title)
	assert.Equal(t, int64(1), got.Views)
	assert.Equal(t, int64(1), got.Likes)
	assert.True(t, got.Liked)
	assert.Equal(t, int64(2), got.Comments)
	require.Len(t, got.TopComments, 2)
	assert.Equal(t, "Grace Hopper", got.TopComments[0].UserFullName)

	anon, err := e.svc.Playback(ctx, video.ID, primitive.NilObjectID)
	require.NoError(t, err)
	assert.False(t, anon.Liked)
	assert.Equal(t, int64(2), anon.Views)
}

func TestPlayback_Unavailable(t *testing.T) {
	e := newEnv(t)
	video := e.video(t)
	video.Available = false
	require.NoError(t, e.store.SaveVideo(context.Background(), video))

	_, err := e.svc.Playback(context.Background(), video.ID, primitive.NilObjectID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRecordView_SeedsFromCheckpointAndFlushes(t *testing.T) {
	e := newEnv(t, func(o *engagement.Options) { o.ViewsFlushEvery = 10 })
	ctx := context.Background()
	video := e.video(t)
	require.NoError(t, e.store.SetVideoStat(ctx, video.ID, docstore.StatViews, 7))

	var last int64
	for i := 0; i < 3; i++ {
		n, err := e.svc.RecordView(ctx, video.ID)
		require.NoError(t, err)
		last = n
	}
	assert.Equal(t, int64(10), last)
	assert.Equal(t, int64(10), e.reload(t, video.ID).Views)
}

func TestUserVideos(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := testutils.CreateUser(t, e.store, "Owner", "")
	for i := 0; i < 3; i++ {
		testutils.CreateVideo(t, e.store, owner.ID)
	}
	testutils.CreateVideo(t, e.store, primitive.NewObjectID())

	got, err := e.svc.UserVideos(ctx, owner.ID, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, v := range got {
		assert.Equal(t, "Owner", v.User.FullName)
	}

	empty, err := e.svc.UserVideos(ctx, owner.ID, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// TestUserVideos_ReadsDoNotFlush 列表讀取不回寫，即使計數剛好是倍數
func TestUserVideos_ReadsDoNotFlush(t *testing.T) {
	e := newEnv(t, func(o *engagement.Options) { o.ViewsFlushEvery = 2 })
	ctx := context.Background()
	owner := testutils.CreateUser(t, e.store, "Owner", "")
	video := testutils.CreateVideo(t, e.store, owner.ID)

	for i := 0; i < 2; i++ {
		_, err := e.svc.RecordView(ctx, video.ID)
		require.NoError(t, err)
	}
	flushes := e.metrics.FlushesTotal.WithLabelValues(string(docstore.StatViews), "ok")
	require.Equal(t, float64(1), testutil.ToFloat64(flushes))

	for i := 0; i < 3; i++ {
		got, err := e.svc.UserVideos(ctx, owner.ID, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(2), got[0].Views)
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(flushes))
}
