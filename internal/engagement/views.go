package engagement

import (
	"context"
	"fmt"

	"github.com/koopa0/video-engagement/internal/cache"
	"github.com/koopa0/video-engagement/internal/docstore"
	"github.com/koopa0/video-engagement/internal/kv"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Playback 播放頁資料
type Playback struct {
	Title       string         `json:"title"`
	Duration    float64        `json:"duration"`
	Time        int64          `json:"time"`
	Tags        []docstore.Tag `json:"tags"`
	IsPublic    bool           `json:"isPublic"`
	Likes       int64          `json:"likes"`
	Liked       bool           `json:"liked"`
	Views       int64          `json:"views"`
	Comments    int64          `json:"comments"`
	TopComments []CommentView  `json:"topComments"`
}

// VideoSummary 影片列表項目
type VideoSummary struct {
	User      cache.Profile      `json:"user"`
	VideoID   primitive.ObjectID `json:"videoId"`
	Title     string             `json:"title"`
	Available bool               `json:"available"`
	IsPublic  bool               `json:"isPublic"`
	Likes     int64              `json:"likes"`
	Views     int64              `json:"views"`
	Time      int64              `json:"time"`
	Tags      []docstore.Tag     `json:"tags"`
	Duration  float64            `json:"duration"`
}

// RecordView 記錄一次觀看，返回新的觀看數
func (s *Service) RecordView(ctx context.Context, videoID primitive.ObjectID) (int64, error) {
	video, err := s.loadAvailableVideo(ctx, videoID)
	if err != nil {
		return 0, err
	}
	return s.recordView(ctx, video)
}

func (s *Service) recordView(ctx context.Context, video *docstore.Video) (int64, error) {
	if err := s.warmer.LoadVideoViews(ctx, video); err != nil {
		return 0, fmt.Errorf("warm views: %w", err)
	}
	views, err := s.kv.Incr(ctx, kv.VideoViewsKey(video.ID.Hex()))
	if err != nil {
		return 0, fmt.Errorf("incr views: %w", err)
	}
	s.warmer.FlushOnDemand(ctx, video.ID, docstore.StatViews, views, s.opts.ViewsFlushEvery)
	return views, nil
}

// Playback 播放影片：觀看數 +1，並組出播放頁資料
//
// viewerID 為零值表示匿名觀看，liked 恆為 false。
func (s *Service) Playback(ctx context.Context, videoID, viewerID primitive.ObjectID) (*Playback, error) {
	video, err := s.loadAvailableVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	liked := false
	if !viewerID.IsZero() {
		if liked, err = s.store.HasLike(ctx, videoID, viewerID); err != nil {
			return nil, fmt.Errorf("find like: %w", err)
		}
	}

	views, err := s.recordView(ctx, video)
	if err != nil {
		return nil, err
	}
	likes, err := s.likes(ctx, videoID)
	if err != nil {
		return nil, err
	}
	top, err := s.decorate(ctx, video.TopComments)
	if err != nil {
		return nil, err
	}

	return &Playback{
		Title:       video.Title,
		Duration:    video.Duration,
		Time:        video.CreatedAt.UnixMilli(),
		Tags:        video.Tags,
		IsPublic:    video.IsPublic,
		Likes:       likes,
		Liked:       liked,
		Views:       views,
		Comments:    video.Comments,
		TopComments: top,
	}, nil
}

func (s *Service) likes(ctx context.Context, videoID primitive.ObjectID) (int64, error) {
	if err := s.warmer.LoadVideoLikes(ctx, videoID); err != nil {
		return 0, fmt.Errorf("warm likes: %w", err)
	}
	return s.warmer.Counter(ctx, kv.VideoLikesKey(videoID.Hex()))
}

// summarize 組出列表項目；只讀快取，回寫留給遞增的那一方
func (s *Service) summarize(ctx context.Context, v *docstore.Video) (VideoSummary, error) {
	if err := s.warmer.LoadVideoViews(ctx, v); err != nil {
		return VideoSummary{}, fmt.Errorf("warm views: %w", err)
	}
	views, err := s.warmer.Counter(ctx, kv.VideoViewsKey(v.ID.Hex()))
	if err != nil {
		return VideoSummary{}, err
	}

	owner, err := s.profile(ctx, v.Owner)
	if err != nil {
		return VideoSummary{}, err
	}
	likes, err := s.likes(ctx, v.ID)
	if err != nil {
		return VideoSummary{}, err
	}

	return VideoSummary{
		User:      owner,
		VideoID:   v.ID,
		Title:     v.Title,
		Available: v.Available,
		IsPublic:  v.IsPublic,
		Likes:     likes,
		Views:     views,
		Time:      v.CreatedAt.UnixMilli(),
		Tags:      v.Tags,
		Duration:  v.Duration,
	}, nil
}

func (s *Service) summarizeAll(ctx context.Context, videos []*docstore.Video) ([]VideoSummary, error) {
	out := make([]VideoSummary, 0, len(videos))
	for _, v := range videos {
		sum, err := s.summarize(ctx, v)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

// RecentVideos 最近影片，依索引順序
func (s *Service) RecentVideos(ctx context.Context) ([]VideoSummary, error) {
	ids, err := s.recent.List(ctx)
	if err != nil {
		return nil, err
	}
	videos, err := s.store.FindVideosByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("find recent videos: %w", err)
	}
	return s.summarizeAll(ctx, videos)
}

// UserVideos 使用者自己的影片（含未公開、轉檔中），page 從 1 開始
func (s *Service) UserVideos(ctx context.Context, ownerID primitive.ObjectID, page int) ([]VideoSummary, error) {
	if page < 1 {
		page = 1
	}
	videos, err := s.store.FindVideosByOwner(ctx, ownerID, page, s.opts.PageSize)
	if err != nil {
		return nil, fmt.Errorf("find user videos: %w", err)
	}
	return s.summarizeAll(ctx, videos)
}
