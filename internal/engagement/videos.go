package engagement

import (
	"context"
	"errors"
	"fmt"

	"github.com/koopa0/video-engagement/internal/docstore"
	"github.com/koopa0/video-engagement/internal/queue"
	apperrors "github.com/koopa0/video-engagement/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CreateVideoInput 建立影片
type CreateVideoInput struct {
	TempClipID primitive.ObjectID
	Title      string
	Tags       []docstore.Tag
	IsPublic   bool
}

// UpdateVideoInput 修改影片中繼資料，nil 表示不修改
type UpdateVideoInput struct {
	Title    *string
	Tags     []docstore.Tag
	IsPublic *bool
}

// RegisterClip 登記一個已上傳到儲存區的原始檔
func (s *Service) RegisterClip(ctx context.Context, userID primitive.ObjectID, source string) (*docstore.TempClip, error) {
	clip := &docstore.TempClip{
		Owner:  userID,
		Source: source,
		State:  docstore.ClipInitial,
	}
	if err := s.store.CreateTempClip(ctx, clip); err != nil {
		return nil, fmt.Errorf("create temp clip: %w", err)
	}
	return clip, nil
}

// CreateVideo 以上傳的暫存檔建立影片並送出轉檔工作
//
// 影片建立時 available=false，轉檔完成事件回來之前不會出現在任何列表。
func (s *Service) CreateVideo(ctx context.Context, userID primitive.ObjectID, in CreateVideoInput) (*docstore.Video, error) {
	const op = "create_video"

	clip, err := s.store.FindTempClip(ctx, in.TempClipID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, apperrors.ErrClipNotFound.WithDetails(in.TempClipID.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("find temp clip: %w", err)
	}
	if clip.Owner != userID {
		return nil, apperrors.ErrUserMismatch
	}
	if clip.State != docstore.ClipInitial && clip.State != docstore.ClipFailed {
		return nil, apperrors.ErrInvalidInput.WithDetails("clip already queued")
	}

	video := &docstore.Video{
		Owner:     userID,
		Title:     in.Title,
		Tags:      in.Tags,
		IsPublic:  in.IsPublic,
		Available: false,
		Clips:     []primitive.ObjectID{clip.ID},
	}
	if video.Tags == nil {
		video.Tags = []docstore.Tag{}
	}
	if err := s.store.CreateVideo(ctx, video); err != nil {
		return nil, fmt.Errorf("create video: %w", err)
	}

	prevState := clip.State
	clip.VideoID = video.ID
	clip.State = docstore.ClipQueued
	if err := s.store.SaveTempClip(ctx, clip); err != nil {
		if errors.Is(err, docstore.ErrVersionConflict) {
			return nil, s.tryAgain(op, err)
		}
		return nil, fmt.Errorf("queue temp clip: %w", err)
	}

	job := queue.ConversionJob{
		ObjectID: clip.ID.Hex(),
		Source:   clip.Source,
		VideoID:  video.ID.Hex(),
	}
	if err := s.publisher.PublishConversion(ctx, job); err != nil {
		// 退回原狀態，讓使用者可以用同一個暫存檔重試
		clip.State = prevState
		if rbErr := s.store.SaveTempClip(context.WithoutCancel(ctx), clip); rbErr != nil {
			s.logger.ErrorContext(ctx, "revert temp clip state failed",
				"clip_id", clip.ID.Hex(), "error", rbErr)
		}
		return nil, fmt.Errorf("publish conversion job: %w", err)
	}
	return video, nil
}

// UpdateVideo 擁有者修改標題、分類、公開狀態
//
// 公開狀態改變會影響最近影片索引，寫回後重新 upsert。
func (s *Service) UpdateVideo(ctx context.Context, videoID, userID primitive.ObjectID, in UpdateVideoInput) (*docstore.Video, error) {
	video, err := s.loadVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video.Owner != userID {
		return nil, apperrors.ErrUserMismatch
	}

	if in.Title != nil {
		video.Title = *in.Title
	}
	if in.Tags != nil {
		video.Tags = in.Tags
	}
	if in.IsPublic != nil {
		video.IsPublic = *in.IsPublic
	}

	if err := s.store.SaveVideo(ctx, video); err != nil {
		if errors.Is(err, docstore.ErrVersionConflict) {
			return nil, s.tryAgain("update_video", err)
		}
		return nil, fmt.Errorf("save video: %w", err)
	}

	if err := s.recent.Upsert(ctx, videoID); err != nil {
		s.logger.WarnContext(ctx, "refresh recent index failed", "video_id", videoID.Hex(), "error", err)
	}
	return video, nil
}

// VideoDone 處理轉檔完成事件（可重複處理）
func (s *Service) VideoDone(ctx context.Context, videoID primitive.ObjectID, success bool) error {
	video, err := s.store.FindVideoByID(ctx, videoID)
	if errors.Is(err, docstore.ErrNotFound) {
		s.logger.WarnContext(ctx, "done event for unknown video", "video_id", videoID.Hex())
		return nil
	}
	if err != nil {
		return fmt.Errorf("load video: %w", err)
	}

	state := docstore.ClipFinished
	if !success {
		state = docstore.ClipFailed
	}
	for _, clipID := range video.Clips {
		s.markClip(ctx, clipID, state)
	}

	if !success {
		s.logger.WarnContext(ctx, "video conversion failed", "video_id", videoID.Hex())
		return nil
	}
	return s.recent.Upsert(ctx, videoID)
}

func (s *Service) markClip(ctx context.Context, clipID primitive.ObjectID, state docstore.ClipState) {
	clip, err := s.store.FindTempClip(ctx, clipID)
	if err != nil {
		s.logger.WarnContext(ctx, "temp clip lookup failed", "clip_id", clipID.Hex(), "error", err)
		return
	}
	if clip.State == state {
		return
	}
	clip.State = state
	if err := s.store.SaveTempClip(ctx, clip); err != nil {
		s.logger.WarnContext(ctx, "temp clip state update failed", "clip_id", clipID.Hex(), "error", err)
	}
}
