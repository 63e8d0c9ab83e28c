// Package recent 維護全域「最近影片」索引
//
// 結構：一個 list（順序，最新在前）加一個 set（去重）。
//
//	upsert: 重新讀取影片 → 不可列出則 LREM + SREM
//	                     → SADD 成功才 LPUSH → LTRIM 到 K 筆 → SREM 被截掉的尾端
//
// 插入閘門用 SADD 的返回值，併發的兩次 upsert 只有一個會 LPUSH。
package recent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/koopa0/video-engagement/internal/docstore"
	"github.com/koopa0/video-engagement/internal/kv"
	"github.com/koopa0/video-engagement/internal/metrics"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Index 最近影片索引
type Index struct {
	kv      kv.Store
	store   docstore.Store
	limit   int64
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewIndex 建立索引；limit 為保留筆數 K
func NewIndex(kvs kv.Store, store docstore.Store, limit int64, m *metrics.Metrics, logger *slog.Logger) *Index {
	return &Index{
		kv:      kvs,
		store:   store,
		limit:   limit,
		metrics: m,
		logger:  logger.With("component", "recent"),
	}
}

// Upsert 依影片目前的狀態加入或移除
//
// 不信任呼叫者手上的文件，一律重新讀取 available / isPublic。
// 重複呼叫是冪等的（佇列至少送達一次）。
func (x *Index) Upsert(ctx context.Context, videoID primitive.ObjectID) error {
	id := videoID.Hex()

	video, err := x.store.FindVideoByID(ctx, videoID)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("load video %s: %w", id, err)
	}
	if video == nil || !video.Listed() {
		return x.Remove(ctx, id)
	}

	added, err := x.kv.SAdd(ctx, kv.RecentVideosSet, id)
	if err != nil {
		return fmt.Errorf("sadd recent: %w", err)
	}
	if !added {
		x.metrics.RecentIndexOps.WithLabelValues("noop").Inc()
		return nil
	}

	if _, err := x.kv.LPush(ctx, kv.RecentVideosList, id); err != nil {
		// 撤回 set，下一次 upsert 才能重新插入
		if _, rmErr := x.kv.SRem(ctx, kv.RecentVideosSet, id); rmErr != nil {
			x.logger.ErrorContext(ctx, "undo recent set failed", "video_id", id, "error", rmErr)
		}
		return fmt.Errorf("lpush recent: %w", err)
	}
	x.metrics.RecentIndexOps.WithLabelValues("insert").Inc()

	return x.trim(ctx)
}

// trim 截斷到 K 筆，並把掉出去的 id 從 set 移除
func (x *Index) trim(ctx context.Context) error {
	// 讀尾端與截斷必須在同一交易，否則中間插入的 id 會被截掉卻留在 set
	dropped, err := x.kv.TrimList(ctx, kv.RecentVideosList, x.limit)
	if err != nil {
		return fmt.Errorf("trim recent: %w", err)
	}
	if len(dropped) == 0 {
		return nil
	}
	if _, err := x.kv.SRem(ctx, kv.RecentVideosSet, dropped...); err != nil {
		return fmt.Errorf("srem recent tail: %w", err)
	}
	x.metrics.RecentIndexOps.WithLabelValues("trim").Add(float64(len(dropped)))
	return nil
}

// Remove 從 list 與 set 移除；不存在時是 no-op
func (x *Index) Remove(ctx context.Context, id string) error {
	if _, err := x.kv.LRem(ctx, kv.RecentVideosList, id); err != nil {
		return fmt.Errorf("lrem recent: %w", err)
	}
	if _, err := x.kv.SRem(ctx, kv.RecentVideosSet, id); err != nil {
		return fmt.Errorf("srem recent: %w", err)
	}
	x.metrics.RecentIndexOps.WithLabelValues("remove").Inc()
	return nil
}

// List 依新到舊返回影片 id
func (x *Index) List(ctx context.Context) ([]primitive.ObjectID, error) {
	raw, err := x.kv.LRange(ctx, kv.RecentVideosList, 0, x.limit-1)
	if err != nil {
		return nil, fmt.Errorf("lrange recent: %w", err)
	}
	ids := make([]primitive.ObjectID, 0, len(raw))
	for _, s := range raw {
		id, err := primitive.ObjectIDFromHex(s)
		if err != nil {
			x.logger.WarnContext(ctx, "skip malformed recent id", "value", s)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
