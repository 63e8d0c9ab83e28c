package engagement_test

import (
	"context"
	"errors"
	"testing"

	"github.com/koopa0/video-engagement/internal/docstore"
	"github.com/koopa0/video-engagement/internal/testutils"
	apperrors "github.com/koopa0/video-engagement/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestAddComment_OverflowPaging(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	video := e.video(t)
	author := testutils.CreateUser(t, e.store, "Ada", "Lovelace")

	ids := e.addComments(t, video.ID, author.ID, 22)

	got := e.reload(t, video.ID)
	assert.Equal(t, int64(22), got.Comments)
	require.Len(t, got.TopComments, pageSize)
	assert.Equal(t, ids[21], got.TopComments[0].ID, "newest first")
	assert.Equal(t, ids[2], got.TopComments[pageSize-1].ID)

	overflow := e.overflow(t, video.ID)
	require.Len(t, overflow, 2)
	assert.Equal(t, float64(2), testutil.ToFloat64(e.metrics.CommentRelocationsTotal.WithLabelValues("demote")))

	first, err := e.svc.ListComments(ctx, video.ID, primitive.NilObjectID)
	require.NoError(t, err)
	require.Len(t, first, pageSize)
	assert.Equal(t, "Ada Lovelace", first[0].UserFullName)

	second, err := e.svc.ListComments(ctx, video.ID, first[pageSize-1].ID)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, ids[1], second[0].ID)
	assert.Equal(t, ids[0], second[1].ID)

	// 游標落在溢出區
	third, err := e.svc.ListComments(ctx, video.ID, ids[1])
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, ids[0], third[0].ID)
}

func TestListComments(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	video := e.video(t)

	t.Run("no comments", func(t *testing.T) {
		got, err := e.svc.ListComments(ctx, video.ID, primitive.NilObjectID)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("unknown cursor", func(t *testing.T) {
		_, err := e.svc.ListComments(ctx, video.ID, primitive.NewObjectID())
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("unknown video", func(t *testing.T) {
		_, err := e.svc.ListComments(ctx, primitive.NewObjectID(), primitive.NilObjectID)
		assert.True(t, errors.Is(err, apperrors.ErrVideoNotFound))
	})
}

func TestAddComment_UnavailableVideo(t *testing.T) {
	e := newEnv(t)
	video := e.video(t)
	video.Available = false
	require.NoError(t, e.store.SaveVideo(context.Background(), video))

	_, err := e.svc.AddComment(context.Background(), video.ID, video.Owner, "hi")
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, int64(0), e.reload(t, video.ID).Comments)
}

func TestRemoveComment_PromotesNewestOverflow(t *testing.T) {
	tests := []struct {
		name         string
		total        int
		wantComments int64
		wantOverflow int
	}{
		{name: "21 comments", total: 21, wantComments: 20, wantOverflow: 0},
		{name: "22 comments", total: 22, wantComments: 21, wantOverflow: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()
			video := e.video(t)
			author := testutils.CreateUser(t, e.store, "Ada", "")
			ids := e.addComments(t, video.ID, author.ID, tt.total)

			newest := ids[len(ids)-1]
			require.NoError(t, e.svc.RemoveComment(ctx, video.ID, newest, author.ID))

			got := e.reload(t, video.ID)
			assert.Equal(t, tt.wantComments, got.Comments)
			require.Len(t, got.TopComments, pageSize)
			assert.Len(t, e.overflow(t, video.ID), tt.wantOverflow)

			// 被提升的是溢出區最新一筆，排在列表最後
			promoted := ids[len(ids)-pageSize-1]
			assert.Equal(t, promoted, got.TopComments[pageSize-1].ID)
			for i := 1; i < len(got.TopComments); i++ {
				assert.Positive(t, compareIDs(got.TopComments[i-1].ID, got.TopComments[i].ID))
			}
		})
	}
}

func TestRemoveComment_FromOverflow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	video := e.video(t)
	author := testutils.CreateUser(t, e.store, "Ada", "")
	ids := e.addComments(t, video.ID, author.ID, 22)

	require.NoError(t, e.svc.RemoveComment(ctx, video.ID, ids[0], author.ID))

	got := e.reload(t, video.ID)
	assert.Equal(t, int64(21), got.Comments)
	assert.Len(t, got.TopComments, pageSize)
	overflow := e.overflow(t, video.ID)
	require.Len(t, overflow, 1)
	assert.Equal(t, ids[1], overflow[0].ID)
}

func TestRemoveComment_Rejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	video := e.video(t)
	author := testutils.CreateUser(t, e.store, "Ada", "")
	other := testutils.CreateUser(t, e.store, "Bob", "")
	ids := e.addComments(t, video.ID, author.ID, 1)

	err := e.svc.RemoveComment(ctx, video.ID, ids[0], other.ID)
	assert.True(t, apperrors.IsForbidden(err))

	err = e.svc.RemoveComment(ctx, video.ID, primitive.NewObjectID(), author.ID)
	assert.True(t, errors.Is(err, apperrors.ErrCommentNotFound))

	// 計數沒有被動過
	assert.Equal(t, int64(1), e.reload(t, video.ID).Comments)
}

func TestAddComment_VersionConflictIsTryAgain(t *testing.T) {
	e := newEnv(t)
	video := e.video(t)
	e.store.set(func(f *faultyStore) {
		f.saveVideoHook = func(int64) error { return docstore.ErrVersionConflict }
	})

	_, err := e.svc.AddComment(context.Background(), video.ID, video.Owner, "hi")
	require.Error(t, err)
	assert.True(t, apperrors.IsTryAgain(err))
	assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.VersionConflicts.WithLabelValues("add_comment")))

	e.store.set(func(f *faultyStore) { f.saveVideoHook = nil })
	got := e.reload(t, video.ID)
	assert.Equal(t, int64(0), got.Comments)
	assert.Empty(t, got.TopComments)
}

func TestAddComment_DependentVersionConflictIsNotCompensated(t *testing.T) {
	e := newEnv(t)
	video := e.video(t)
	e.store.set(func(f *faultyStore) { f.pushErr = docstore.ErrVersionConflict })

	_, err := e.svc.AddComment(context.Background(), video.ID, video.Owner, "hi")
	assert.True(t, apperrors.IsTryAgain(err))
	assert.Equal(t, float64(0), testutil.ToFloat64(e.metrics.CompensationsTotal.WithLabelValues("add_comment", "ok")))
}

func TestAddComment_DependentFailureCompensates(t *testing.T) {
	tests := []struct {
		name   string
		seed   int
		inject func(*faultyStore)
	}{
		{
			name:   "push fails",
			inject: func(f *faultyStore) { f.pushErr = errBoom },
		},
		{
			// 第 21 筆擠出最舊的留言，寫入溢出區失敗
			name:   "demote fails",
			seed:   pageSize,
			inject: func(f *faultyStore) { f.insertErr = errBoom },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()
			video := e.video(t)
			e.addComments(t, video.ID, video.Owner, tt.seed)
			e.store.set(tt.inject)

			_, err := e.svc.AddComment(ctx, video.ID, video.Owner, "hi")
			require.Error(t, err)
			assert.ErrorIs(t, err, errBoom)
			assert.False(t, apperrors.IsTryAgain(err))

			got := e.reload(t, video.ID)
			visible := len(got.TopComments) + len(e.overflow(t, video.ID))
			assert.Equal(t, int64(visible), got.Comments, "counter matches stored comments")
			assert.Equal(t, int64(tt.seed), got.Comments)
			assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.CompensationsTotal.WithLabelValues("add_comment", "ok")))
		})
	}
}

// TestAddComment_EvictedAlreadyInOverflow 被擠出的留言已在溢出區時，
// 新增仍成功，計數不補償
func TestAddComment_EvictedAlreadyInOverflow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	video := e.video(t)
	e.addComments(t, video.ID, video.Owner, pageSize)

	// 最舊的一筆同時出現在溢出區（另一個請求正在搬動它）
	top := e.reload(t, video.ID).TopComments
	oldest := top[len(top)-1]
	require.NoError(t, e.store.Store.InsertComment(ctx, &oldest))

	c, err := e.svc.AddComment(ctx, video.ID, video.Owner, "hi")
	require.NoError(t, err)
	require.NotNil(t, c)

	got := e.reload(t, video.ID)
	overflow := e.overflow(t, video.ID)
	assert.Equal(t, int64(pageSize+1), got.Comments)
	assert.Equal(t, int64(len(got.TopComments)+len(overflow)), got.Comments)
	assert.Equal(t, c.ID, got.TopComments[0].ID)
	require.Len(t, overflow, 1)
	assert.Equal(t, oldest.ID, overflow[0].ID)
	assert.Equal(t, float64(0), testutil.ToFloat64(e.metrics.CompensationsTotal.WithLabelValues("add_comment", "ok")))
}

func TestAddComment_CompensationRetriesConflicts(t *testing.T) {
	e := newEnv(t)
	video := e.video(t)
	e.store.set(func(f *faultyStore) {
		f.pushErr = errBoom
		// 第 1 次是計數 +1；補償的前兩次遇到版本衝突
		f.saveVideoHook = func(n int64) error {
			if n == 2 || n == 3 {
				return docstore.ErrVersionConflict
			}
			return nil
		}
	})

	_, err := e.svc.AddComment(context.Background(), video.ID, video.Owner, "hi")
	require.ErrorIs(t, err, errBoom)

	assert.Equal(t, int64(0), e.reload(t, video.ID).Comments)
	assert.Equal(t, int64(4), e.store.saveCalls.Load())
	assert.Contains(t, e.logs.String(), "compensation conflicted, retrying")
	assert.Contains(t, e.logs.String(), "counter compensated")
}

func TestAddComment_UnrecoveredInconsistencyIsLogged(t *testing.T) {
	tests := []struct {
		name string
		hook func(n int64) error
	}{
		{
			name: "non-conflict error",
			hook: func(n int64) error {
				if n > 1 {
					return errors.New("disk full")
				}
				return nil
			},
		},
		{
			name: "conflicts exhaust attempts",
			hook: func(n int64) error {
				if n > 1 {
					return docstore.ErrVersionConflict
				}
				return nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			video := e.video(t)
			e.store.set(func(f *faultyStore) {
				f.pushErr = errBoom
				f.saveVideoHook = tt.hook
			})

			_, err := e.svc.AddComment(context.Background(), video.ID, video.Owner, "hi")
			require.ErrorIs(t, err, errBoom)

			logs := e.logs.String()
			assert.Contains(t, logs, "counter left inconsistent")
			assert.Contains(t, logs, "inconsistency=true")
			assert.Contains(t, logs, apperrors.ErrCodeUnrecoveredInconsistency)
			assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.UnrecoveredInconsistencies.WithLabelValues("add_comment")))

			// 計數停在 +1
			e.store.set(func(f *faultyStore) { f.saveVideoHook = nil })
			assert.Equal(t, int64(1), e.reload(t, video.ID).Comments)
		})
	}
}

func TestRemoveComment_DeleteFailureCompensates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	video := e.video(t)
	author := testutils.CreateUser(t, e.store, "Ada", "")
	ids := e.addComments(t, video.ID, author.ID, 3)
	e.store.set(func(f *faultyStore) { f.deleteErr = errBoom })

	err := e.svc.RemoveComment(ctx, video.ID, ids[1], author.ID)
	require.ErrorIs(t, err, errBoom)

	got := e.reload(t, video.ID)
	assert.Equal(t, int64(3), got.Comments)
	assert.Len(t, got.TopComments, 3)
	assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.CompensationsTotal.WithLabelValues("remove_comment", "ok")))
}

func TestUpdateComment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	video := e.video(t)
	author := testutils.CreateUser(t, e.store, "Ada", "")
	other := testutils.CreateUser(t, e.store, "Bob", "")
	ids := e.addComments(t, video.ID, author.ID, 21)

	t.Run("embedded", func(t *testing.T) {
		c, err := e.svc.UpdateComment(ctx, video.ID, ids[20], author.ID, "edited")
		require.NoError(t, err)
		assert.True(t, c.Edit)

		got := e.reload(t, video.ID)
		assert.Equal(t, "edited", got.TopComments[0].Content)
		assert.True(t, got.TopComments[0].Edit)
	})

	t.Run("overflow", func(t *testing.T) {
		_, err := e.svc.UpdateComment(ctx, video.ID, ids[0], author.ID, "edited")
		require.NoError(t, err)

		stored, err := e.store.FindComment(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, "edited", stored.Content)
		assert.True(t, stored.Edit)
		assert.Equal(t, int64(1), stored.Version)
	})

	t.Run("not owner", func(t *testing.T) {
		_, err := e.svc.UpdateComment(ctx, video.ID, ids[5], other.ID, "nope")
		assert.True(t, apperrors.IsForbidden(err))
	})

	t.Run("unknown comment", func(t *testing.T) {
		_, err := e.svc.UpdateComment(ctx, video.ID, primitive.NewObjectID(), author.ID, "nope")
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func compareIDs(a, b primitive.ObjectID) int {
	for i := range a {
		if a[i] != b[i] {
			return int(a[i]) - int(b[i])
		}
	}
	return 0
}
