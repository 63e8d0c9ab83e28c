package engagement

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/koopa0/video-engagement/internal/docstore"
	apperrors "github.com/koopa0/video-engagement/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// compensateComments 依賴寫入失敗後，把影片的留言計數調回 delta
//
// 只吞版本衝突（重新讀取再試），其他錯誤立即放棄。重試次數有上限，
// 放棄時計數與實際筆數不符，記錄為 UNRECOVERED_INCONSISTENCY。
// 呼叫者已放棄請求時補償仍要完成，所以不繼承取消。
func (s *Service) compensateComments(ctx context.Context, op string, videoID primitive.ObjectID, delta int64) {
	ctx = context.WithoutCancel(ctx)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.opts.CompensateInitInterval
	eb.MaxInterval = s.opts.CompensateMaxInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithMaxRetries(eb, s.opts.CompensateMaxAttempts)

	attempts := 0
	operation := func() error {
		attempts++
		v, err := s.store.FindVideoByID(ctx, videoID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if v.Comments+delta < 0 {
			// 別人已經把計數扣到 0，沒有東西可退
			return nil
		}
		v.Comments += delta
		if err := s.store.SaveVideo(ctx, v); err != nil {
			if errors.Is(err, docstore.ErrVersionConflict) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.logger.WarnContext(ctx, "compensation conflicted, retrying",
			"op", op,
			"video_id", videoID.Hex(),
			"attempt", attempts,
			"wait", wait,
			"error", err)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		s.metrics.CompensationsTotal.WithLabelValues(op, "failed").Inc()
		s.metrics.UnrecoveredInconsistencies.WithLabelValues(op).Inc()
		s.logger.ErrorContext(ctx, apperrors.ErrUnrecoveredInconsistency.Message,
			"op", op,
			"video_id", videoID.Hex(),
			"delta", delta,
			"attempts", attempts,
			"inconsistency", true,
			"code", apperrors.ErrUnrecoveredInconsistency.Code,
			"error", err)
		return
	}

	s.metrics.CompensationsTotal.WithLabelValues(op, "ok").Inc()
	s.logger.InfoContext(ctx, "counter compensated",
		"op", op,
		"video_id", videoID.Hex(),
		"delta", delta,
		"attempts", attempts)
}
