// Package cache 負責快取暖機與計數回寫
//
// 暖機流程（warm-if-cold）：
//
//	exists(marker)? ──是──▶ 直接返回
//	      │否
//	      ▼
//	讀取權威文件 → 計算衍生欄位 → SetNX / GetSet → Expire → 寫入 marker
//
// 多個請求同時看到「冷」是允許的：快取值是冪等的快照而非累加器，
// 碰撞只記錄警告，不重試也不回報給呼叫者。同一個行程內以 singleflight
// 合併重複的暖機。
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/koopa0/video-engagement/internal/docstore"
	"github.com/koopa0/video-engagement/internal/kv"
	"github.com/koopa0/video-engagement/internal/metrics"
	apperrors "github.com/koopa0/video-engagement/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/singleflight"
)

// Warmer 快取暖機與回寫
type Warmer struct {
	kv         kv.Store
	store      docstore.Store
	metrics    *metrics.Metrics
	logger     *slog.Logger
	profileTTL time.Duration

	group singleflight.Group
}

// Profile 快取中的使用者衍生欄位
type Profile struct {
	FullName string `json:"fullname"`
	Avatar   string `json:"avatar"`
}

// NewWarmer 建立 Warmer
func NewWarmer(kvs kv.Store, store docstore.Store, m *metrics.Metrics, logger *slog.Logger, profileTTL time.Duration) *Warmer {
	return &Warmer{
		kv:         kvs,
		store:      store,
		metrics:    m,
		logger:     logger.With("component", "cache"),
		profileTTL: profileTTL,
	}
}

// LoadVideoLikes 快取沒有按讚數時，以 likes 集合的筆數初始化
func (w *Warmer) LoadVideoLikes(ctx context.Context, videoID primitive.ObjectID) error {
	key := kv.VideoLikesKey(videoID.Hex())
	return w.seedCounter(ctx, key, "likes", func(ctx context.Context) (int64, error) {
		return w.store.CountLikes(ctx, videoID)
	})
}

// LoadVideoViews 快取沒有觀看數時，以文件上的檢查點初始化
func (w *Warmer) LoadVideoViews(ctx context.Context, video *docstore.Video) error {
	key := kv.VideoViewsKey(video.ID.Hex())
	return w.seedCounter(ctx, key, "views", func(context.Context) (int64, error) {
		return video.Views, nil
	})
}

func (w *Warmer) seedCounter(ctx context.Context, key, kind string, load func(context.Context) (int64, error)) error {
	warm, err := w.kv.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check %s: %w", key, err)
	}
	if warm {
		return nil
	}

	// 合併的等待者共用這次載入，不能被第一個呼叫者取消
	shared := context.WithoutCancel(ctx)
	_, err, _ = w.group.Do(key, func() (any, error) {
		ctx := shared
		n, err := load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", kind, err)
		}
		set, err := w.kv.SetNX(ctx, key, strconv.FormatInt(n, 10))
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", key, err)
		}
		w.metrics.WarmsTotal.WithLabelValues(kind).Inc()
		if !set {
			// 別的行程先寫入了；它的值同樣來自權威來源，直接接受
			w.collision(ctx, kind, key)
		}
		return nil, nil
	})
	return err
}

// LoadUserInfo 暖機使用者的顯示名稱與頭像
//
// force 為 true 時忽略 marker（例如使用者剛更新個人資料）。
func (w *Warmer) LoadUserInfo(ctx context.Context, userID primitive.ObjectID, force bool) error {
	hex := userID.Hex()
	marker := kv.UserMarkerKey(hex)

	if !force {
		warm, err := w.kv.Exists(ctx, marker)
		if err != nil {
			return fmt.Errorf("check %s: %w", marker, err)
		}
		if warm {
			return nil
		}
	}

	shared := context.WithoutCancel(ctx)
	_, err, _ := w.group.Do(marker, func() (any, error) {
		ctx := shared
		user, err := w.store.FindUserByID(ctx, userID)
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, apperrors.ErrUserNotFound.WithDetails(hex)
		}
		if err != nil {
			return nil, fmt.Errorf("load user %s: %w", hex, err)
		}

		fields := []struct {
			key, value string
		}{
			{kv.UserFullNameKey(hex), user.FullName()},
			{kv.UserAvatarKey(hex), user.Avatar},
		}
		for _, f := range fields {
			_, existed, err := w.kv.GetSet(ctx, f.key, f.value)
			if err != nil {
				return nil, fmt.Errorf("write %s: %w", f.key, err)
			}
			if existed && !force {
				w.collision(ctx, "user", f.key)
			}
			if _, err := w.kv.Expire(ctx, f.key, w.profileTTL); err != nil {
				return nil, fmt.Errorf("expire %s: %w", f.key, err)
			}
		}

		// marker 最後寫入：它存在就代表上面的欄位都已就緒
		if err := w.kv.Set(ctx, marker, hex, w.profileTTL); err != nil {
			return nil, fmt.Errorf("write %s: %w", marker, err)
		}
		w.metrics.WarmsTotal.WithLabelValues("user").Inc()
		return nil, nil
	})
	return err
}

// UserProfile 讀取快取中的使用者欄位，冷的時候先暖機
func (w *Warmer) UserProfile(ctx context.Context, userID primitive.ObjectID) (Profile, error) {
	if err := w.LoadUserInfo(ctx, userID, false); err != nil {
		return Profile{}, err
	}

	hex := userID.Hex()
	name, okName, err := w.kv.Get(ctx, kv.UserFullNameKey(hex))
	if err != nil {
		return Profile{}, err
	}
	avatar, okAvatar, err := w.kv.Get(ctx, kv.UserAvatarKey(hex))
	if err != nil {
		return Profile{}, err
	}
	if okName && okAvatar {
		return Profile{FullName: name, Avatar: avatar}, nil
	}

	// 欄位比 marker 先過期（或被逐出），重新暖機一次
	if err := w.LoadUserInfo(ctx, userID, true); err != nil {
		return Profile{}, err
	}
	name, _, err = w.kv.Get(ctx, kv.UserFullNameKey(hex))
	if err != nil {
		return Profile{}, err
	}
	avatar, _, err = w.kv.Get(ctx, kv.UserAvatarKey(hex))
	if err != nil {
		return Profile{}, err
	}
	return Profile{FullName: name, Avatar: avatar}, nil
}

// Counter 讀取快取計數；不存在時返回 0
func (w *Warmer) Counter(ctx context.Context, key string) (int64, error) {
	val, ok, err := w.kv.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func (w *Warmer) collision(ctx context.Context, kind, key string) {
	w.metrics.CacheCollisions.WithLabelValues(kind).Inc()
	w.logger.WarnContext(ctx, "cache warm collision", "kind", kind, "key", key)
}
