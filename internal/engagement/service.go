// Package engagement 實作留言、按讚、觀看的計數協調
//
// 反正規化計數（影片上的 comments、top_comments）與依賴寫入（留言本身）
// 不在同一個交易裡。協議：
//
//  1. 讀取影片 → 計數 ±1 → 帶版本寫回
//     版本衝突：回報 TRY_AGAIN，不自動重試
//  2. 執行依賴寫入（新增／刪除留言）
//  3. 依賴寫入失敗（非版本衝突）：補償計數，再回報原本的錯誤
//     補償以指數退避重試，次數有上限；放棄時記錄 UNRECOVERED_INCONSISTENCY
//  4. 依賴寫入本身版本衝突：回報 TRY_AGAIN，不補償
//
// 快取計數（likes、views）是文件資料庫唯一索引結果的投影，
// 每 N 次變動回寫一次文件。
package engagement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/koopa0/video-engagement/internal/cache"
	"github.com/koopa0/video-engagement/internal/config"
	"github.com/koopa0/video-engagement/internal/docstore"
	"github.com/koopa0/video-engagement/internal/kv"
	"github.com/koopa0/video-engagement/internal/metrics"
	"github.com/koopa0/video-engagement/internal/queue"
	"github.com/koopa0/video-engagement/internal/recent"
	apperrors "github.com/koopa0/video-engagement/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Publisher 發送轉檔工作
type Publisher interface {
	PublishConversion(ctx context.Context, job queue.ConversionJob) error
}

// Options 協調參數
type Options struct {
	PageSize        int   // 內嵌 top_comments 上限 N
	LikesFlushEvery int64 // 每 N 次按讚變動回寫一次
	ViewsFlushEvery int64
	LikeAttempts    int

	CompensateMaxAttempts  uint64
	CompensateInitInterval time.Duration
	CompensateMaxInterval  time.Duration
}

// OptionsFromConfig 從設定檔取出協調參數
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PageSize:               cfg.Comments.PageSize,
		LikesFlushEvery:        cfg.Cache.LikesFlushEvery,
		ViewsFlushEvery:        cfg.Cache.ViewsFlushEvery,
		LikeAttempts:           cfg.Reconcile.LikeAttempts,
		CompensateMaxAttempts:  cfg.Reconcile.CompensateMaxAttempts,
		CompensateInitInterval: cfg.Reconcile.CompensateInitInterval,
		CompensateMaxInterval:  cfg.Reconcile.CompensateMaxInterval,
	}
}

// Deps 外部依賴，每個行程各一份，由 main 注入
type Deps struct {
	Store     docstore.Store
	KV        kv.Store
	Warmer    *cache.Warmer
	Recent    *recent.Index
	Publisher Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Service 影片互動服務
type Service struct {
	store     docstore.Store
	kv        kv.Store
	warmer    *cache.Warmer
	recent    *recent.Index
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	opts      Options
}

// New 建立 Service
func New(deps Deps, opts Options) *Service {
	return &Service{
		store:     deps.Store,
		kv:        deps.KV,
		warmer:    deps.Warmer,
		recent:    deps.Recent,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With("component", "engagement"),
		opts:      opts,
	}
}

// loadVideo 讀取影片；不存在時返回 NOT_FOUND
func (s *Service) loadVideo(ctx context.Context, id primitive.ObjectID) (*docstore.Video, error) {
	v, err := s.store.FindVideoByID(ctx, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, apperrors.ErrVideoNotFound.WithDetails(id.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("load video %s: %w", id.Hex(), err)
	}
	return v, nil
}

// loadAvailableVideo 尚未轉檔完成的影片對外視同不存在
func (s *Service) loadAvailableVideo(ctx context.Context, id primitive.ObjectID) (*docstore.Video, error) {
	v, err := s.loadVideo(ctx, id)
	if err != nil {
		return nil, err
	}
	if !v.Available {
		return nil, apperrors.ErrVideoNotFound.WithDetails(id.Hex())
	}
	return v, nil
}

// tryAgain 把版本衝突轉成對外的 TRY_AGAIN
func (s *Service) tryAgain(op string, err error) error {
	s.metrics.VersionConflicts.WithLabelValues(op).Inc()
	return apperrors.Wrap(err, apperrors.ErrCodeTryAgain, apperrors.ErrTryAgain.Message)
}

// profile 讀取作者資料；作者已不存在時顯示空白
func (s *Service) profile(ctx context.Context, userID primitive.ObjectID) (cache.Profile, error) {
	p, err := s.warmer.UserProfile(ctx, userID)
	if apperrors.IsNotFound(err) {
		return cache.Profile{}, nil
	}
	return p, err
}
