package engagement_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koopa0/video-engagement/internal/cache"
	"github.com/koopa0/video-engagement/internal/docstore"
	"github.com/koopa0/video-engagement/internal/engagement"
	"github.com/koopa0/video-engagement/internal/kv"
	"github.com/koopa0/video-engagement/internal/metrics"
	"github.com/koopa0/video-engagement/internal/queue"
	"github.com/koopa0/video-engagement/internal/recent"
	"github.com/koopa0/video-engagement/internal/testutils"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const pageSize = 20

type env struct {
	svc     *engagement.Service
	store   *faultyStore
	kv      *kv.RedisStore
	metrics *metrics.Metrics
	logs    *bytes.Buffer
	pub     *fakePublisher
	recent  *recent.Index
}

func newEnv(t *testing.T, mutate ...func(*engagement.Options)) *env {
	t.Helper()

	kvs, _ := testutils.NewMiniRedis(t)
	store := &faultyStore{Store: docstore.NewMemoryStore()}
	m := metrics.NewNop()
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelInfo}))

	opts := engagement.Options{
		PageSize:               pageSize,
		LikesFlushEvery:        1000,
		ViewsFlushEvery:        1000,
		LikeAttempts:           3,
		CompensateMaxAttempts:  5,
		CompensateInitInterval: time.Millisecond,
		CompensateMaxInterval:  5 * time.Millisecond,
	}
	for _, f := range mutate {
		f(&opts)
	}

	warmer := cache.NewWarmer(kvs, store, m, logger, 24*time.Hour)
	idx := recent.NewIndex(kvs, store, 10, m, logger)
	pub := &fakePublisher{}

	svc := engagement.New(engagement.Deps{
		Store:     store,
		KV:        kvs,
		Warmer:    warmer,
		Recent:    idx,
		Publisher: pub,
		Metrics:   m,
		Logger:    logger,
	}, opts)

	return &env{svc: svc, store: store, kv: kvs, metrics: m, logs: logs, pub: pub, recent: idx}
}

func (e *env) video(t *testing.T) *docstore.Video {
	t.Helper()
	owner := testutils.CreateUser(t, e.store, "Owner", "")
	return testutils.CreateVideo(t, e.store, owner.ID)
}

func (e *env) reload(t *testing.T, id primitive.ObjectID) *docstore.Video {
	t.Helper()
	v, err := e.store.FindVideoByID(context.Background(), id)
	require.NoError(t, err)
	return v
}

func (e *env) overflow(t *testing.T, id primitive.ObjectID) []docstore.Comment {
	t.Helper()
	out, err := e.store.ListOverflowComments(context.Background(), id, primitive.NilObjectID, 0)
	require.NoError(t, err)
	return out
}

// addComments 依序新增 n 則留言，返回 id（舊到新）
func (e *env) addComments(t *testing.T, videoID, userID primitive.ObjectID, n int) []primitive.ObjectID {
	t.Helper()
	ids := make([]primitive.ObjectID, 0, n)
	for i := 0; i < n; i++ {
		c, err := e.svc.AddComment(context.Background(), videoID, userID, "hello")
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	return ids
}

var errBoom = errors.New("boom")

// faultyStore 在指定操作注入錯誤
type faultyStore struct {
	docstore.Store

	mu        sync.Mutex
	pushErr   error
	insertErr error
	deleteErr error
	// saveVideoHook 回傳非 nil 時 SaveVideo 直接失敗；n 為第幾次呼叫（從 1 開始）
	saveVideoHook func(n int64) error
	saveCalls     atomic.Int64
}

func (f *faultyStore) set(fn func(*faultyStore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *faultyStore) SaveVideo(ctx context.Context, v *docstore.Video) error {
	n := f.saveCalls.Add(1)
	f.mu.Lock()
	hook := f.saveVideoHook
	f.mu.Unlock()
	if hook != nil {
		if err := hook(n); err != nil {
			return err
		}
	}
	return f.Store.SaveVideo(ctx, v)
}

func (f *faultyStore) PushTopComment(ctx context.Context, videoID primitive.ObjectID, c docstore.Comment, limit int) ([]docstore.Comment, error) {
	f.mu.Lock()
	err := f.pushErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.PushTopComment(ctx, videoID, c, limit)
}

func (f *faultyStore) InsertComment(ctx context.Context, c *docstore.Comment) error {
	f.mu.Lock()
	err := f.insertErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.InsertComment(ctx, c)
}

func (f *faultyStore) DeleteComment(ctx context.Context, videoID, commentID primitive.ObjectID) (bool, error) {
	f.mu.Lock()
	err := f.deleteErr
	f.mu.Unlock()
	if err != nil {
		return false, err
	}
	return f.Store.DeleteComment(ctx, videoID, commentID)
}

type fakePublisher struct {
	mu   sync.Mutex
	jobs []queue.ConversionJob
	err  error
}

func (p *fakePublisher) PublishConversion(_ context.Context, job queue.ConversionJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}
