package cache

import (
	"context"

	"github.com/koopa0/video-engagement/internal/docstore"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FlushOnDemand 計數值是 every 的倍數時，回寫到文件資料庫
//
// 文件上的值最多落後 every-1。回寫失敗只記錄，快取仍是權威值，
// 下一個倍數會再寫一次。返回值表示是否觸發了回寫。
func (w *Warmer) FlushOnDemand(ctx context.Context, videoID primitive.ObjectID, stat docstore.Stat, value, every int64) bool {
	if every <= 0 || value%every != 0 {
		return false
	}

	if err := w.store.SetVideoStat(ctx, videoID, stat, value); err != nil {
		w.metrics.FlushesTotal.WithLabelValues(string(stat), "error").Inc()
		w.logger.ErrorContext(ctx, "flush counter failed",
			"video_id", videoID.Hex(),
			"stat", stat,
			"value", value,
			"error", err)
		return true
	}

	w.metrics.FlushesTotal.WithLabelValues(string(stat), "ok").Inc()
	w.logger.DebugContext(ctx, "counter flushed",
		"video_id", videoID.Hex(),
		"stat", stat,
		"value", value)
	return true
}
