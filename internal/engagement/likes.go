package engagement

import (
	"context"
	"errors"
	"fmt"

	"github.com/koopa0/video-engagement/internal/docstore"
	"github.com/koopa0/video-engagement/internal/kv"
	apperrors "github.com/koopa0/video-engagement/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ToggleLike 切換按讚狀態，返回切換後是否為「已按讚」
//
// 按讚是否存在以 likes 的唯一索引為準：先嘗試建立，重複就改為刪除。
// 兩個併發請求可能讓建立與刪除互相錯過，因此最多嘗試 LikeAttempts 次，
// 都沒成功就回報 TRY_AGAIN。快取計數只是結果的投影。
func (s *Service) ToggleLike(ctx context.Context, videoID, userID primitive.ObjectID) (bool, error) {
	if _, err := s.loadAvailableVideo(ctx, videoID); err != nil {
		return false, err
	}

	// 先暖機再變動：暖機用 CountLikes 初始化，若在變動後才暖機會重複計入這一次
	if err := s.warmer.LoadVideoLikes(ctx, videoID); err != nil {
		return false, fmt.Errorf("warm likes: %w", err)
	}
	key := kv.VideoLikesKey(videoID.Hex())

	for attempt := 0; attempt < s.opts.LikeAttempts; attempt++ {
		err := s.store.CreateLike(ctx, videoID, userID)
		if err == nil {
			n, err := s.kv.Incr(ctx, key)
			if err != nil {
				return false, fmt.Errorf("incr likes: %w", err)
			}
			s.warmer.FlushOnDemand(ctx, videoID, docstore.StatLikes, n, s.opts.LikesFlushEvery)
			s.metrics.LikeTogglesTotal.WithLabelValues("like").Inc()
			return true, nil
		}
		if !errors.Is(err, docstore.ErrDuplicate) {
			return false, fmt.Errorf("create like: %w", err)
		}

		removed, err := s.store.RemoveLike(ctx, videoID, userID)
		if err != nil {
			return false, fmt.Errorf("remove like: %w", err)
		}
		if removed {
			n, err := s.kv.Decr(ctx, key)
			if err != nil {
				return false, fmt.Errorf("decr likes: %w", err)
			}
			s.warmer.FlushOnDemand(ctx, videoID, docstore.StatLikes, n, s.opts.LikesFlushEvery)
			s.metrics.LikeTogglesTotal.WithLabelValues("unlike").Inc()
			return false, nil
		}
	}

	s.metrics.LikeTogglesTotal.WithLabelValues("nothing").Inc()
	return false, apperrors.ErrTryAgain
}
