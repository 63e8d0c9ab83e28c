package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/koopa0/video-engagement/internal/docstore"
	apperrors "github.com/koopa0/video-engagement/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CommentView 對外的留言（附作者快取資料）
type CommentView struct {
	ID           primitive.ObjectID `json:"id"`
	UserID       string             `json:"userId"`
	UserFullName string             `json:"userFullname"`
	UserAvatar   string             `json:"userAvatar"`
	Content      string             `json:"content"`
	Edit         bool               `json:"edit"`
	UpdatedAt    int64              `json:"updated_timestamp"`
}

// AddComment 新增留言
//
// 計數先行：comments+1 帶版本寫回成功後，才把留言推入內嵌列表。
// 列表超過 N 筆時最舊的一筆降級到溢出區。
func (s *Service) AddComment(ctx context.Context, videoID, userID primitive.ObjectID, content string) (*docstore.Comment, error) {
	const op = "add_comment"

	video, err := s.loadAvailableVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	video.Comments++
	if err := s.store.SaveVideo(ctx, video); err != nil {
		if errors.Is(err, docstore.ErrVersionConflict) {
			return nil, s.tryAgain(op, err)
		}
		return nil, fmt.Errorf("increment comments: %w", err)
	}

	now := time.Now().UTC()
	comment := docstore.Comment{
		ID:        primitive.NewObjectID(),
		Content:   content,
		UserID:    userID,
		VideoID:   videoID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.pushComment(ctx, comment); err != nil {
		if errors.Is(err, docstore.ErrVersionConflict) {
			return nil, s.tryAgain(op, err)
		}
		s.compensateComments(ctx, op, videoID, -1)
		return nil, fmt.Errorf("add comment: %w", err)
	}

	s.logger.DebugContext(ctx, "comment added", "video_id", videoID.Hex(), "comment_id", comment.ID.Hex())
	return &comment, nil
}

// pushComment 推入內嵌列表並把擠出的留言寫入溢出區
//
// 擠出的留言寫入失敗時它已離開列表，補償 -1 後計數仍等於實際筆數
// （新增一筆、遺失一筆）。
func (s *Service) pushComment(ctx context.Context, c docstore.Comment) error {
	evicted, err := s.store.PushTopComment(ctx, c.VideoID, c, s.opts.PageSize)
	if err != nil {
		return err
	}
	for i := range evicted {
		err := s.store.InsertComment(ctx, &evicted[i])
		if errors.Is(err, docstore.ErrDuplicate) {
			// 已在溢出區，視為降級完成
			s.logger.WarnContext(ctx, "evicted comment already in overflow",
				"video_id", c.VideoID.Hex(),
				"comment_id", evicted[i].ID.Hex())
			continue
		}
		if err != nil {
			return fmt.Errorf("demote comment %s: %w", evicted[i].ID.Hex(), err)
		}
		s.metrics.CommentRelocationsTotal.WithLabelValues("demote").Inc()
	}
	return nil
}

// RemoveComment 刪除自己的留言
func (s *Service) RemoveComment(ctx context.Context, videoID, commentID, userID primitive.ObjectID) error {
	const op = "remove_comment"

	video, err := s.loadAvailableVideo(ctx, videoID)
	if err != nil {
		return err
	}

	comment, _, err := s.locateComment(ctx, video, commentID)
	if err != nil {
		return err
	}
	if comment.UserID != userID {
		return apperrors.ErrUserMismatch
	}

	decremented := false
	if video.Comments > 0 {
		video.Comments--
		if err := s.store.SaveVideo(ctx, video); err != nil {
			if errors.Is(err, docstore.ErrVersionConflict) {
				return s.tryAgain(op, err)
			}
			return fmt.Errorf("decrement comments: %w", err)
		}
		decremented = true
	}

	if err := s.deleteComment(ctx, videoID, commentID); err != nil {
		if errors.Is(err, docstore.ErrVersionConflict) {
			return s.tryAgain(op, err)
		}
		if decremented {
			s.compensateComments(ctx, op, videoID, +1)
		}
		return err
	}
	return nil
}

// deleteComment 先試溢出區，再試內嵌列表；從列表移除後提升溢出區最新一筆
func (s *Service) deleteComment(ctx context.Context, videoID, commentID primitive.ObjectID) error {
	deleted, err := s.store.DeleteComment(ctx, videoID, commentID)
	if err != nil {
		return fmt.Errorf("delete overflow comment: %w", err)
	}
	if deleted {
		return nil
	}

	pulled, err := s.store.PullTopComment(ctx, videoID, commentID)
	if err != nil {
		return fmt.Errorf("pull top comment: %w", err)
	}
	if !pulled {
		// 讀取時還在，刪除時已被別的請求移走
		return apperrors.ErrCommentNotFound.WithDetails(commentID.Hex())
	}

	promoted, err := s.store.PromoteNewestComment(ctx, videoID, s.opts.PageSize)
	if err != nil {
		// 留言已刪除，計數正確；列表暫時少一筆，下一次刪除會再提升
		s.logger.ErrorContext(ctx, "promote comment failed", "video_id", videoID.Hex(), "error", err)
		return nil
	}
	if promoted {
		s.metrics.CommentRelocationsTotal.WithLabelValues("promote").Inc()
	}
	return nil
}

// locateComment 在內嵌列表或溢出區找到留言；embedded 表示位置
func (s *Service) locateComment(ctx context.Context, video *docstore.Video, commentID primitive.ObjectID) (*docstore.Comment, bool, error) {
	for i := range video.TopComments {
		if video.TopComments[i].ID == commentID {
			c := video.TopComments[i]
			return &c, true, nil
		}
	}

	c, err := s.store.FindComment(ctx, commentID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, false, apperrors.ErrCommentNotFound.WithDetails(commentID.Hex())
	}
	if err != nil {
		return nil, false, fmt.Errorf("find comment: %w", err)
	}
	if c.VideoID != video.ID {
		return nil, false, apperrors.ErrCommentNotFound.WithDetails(commentID.Hex())
	}
	return c, false, nil
}

// UpdateComment 編輯自己的留言
func (s *Service) UpdateComment(ctx context.Context, videoID, commentID, userID primitive.ObjectID, content string) (*docstore.Comment, error) {
	const op = "update_comment"

	video, err := s.loadAvailableVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	comment, embedded, err := s.locateComment(ctx, video, commentID)
	if err != nil {
		return nil, err
	}
	if comment.UserID != userID {
		return nil, apperrors.ErrUserMismatch
	}

	comment.Content = content
	comment.Edit = true
	comment.UpdatedAt = time.Now().UTC()

	if embedded {
		updated, err := s.store.UpdateTopComment(ctx, videoID, *comment)
		if err != nil {
			return nil, fmt.Errorf("update top comment: %w", err)
		}
		if !updated {
			// 讀取後被降級到溢出區
			return nil, s.tryAgain(op, docstore.ErrVersionConflict)
		}
		return comment, nil
	}

	if err := s.store.SaveComment(ctx, comment); err != nil {
		// 找不到代表剛被提升到內嵌列表
		if errors.Is(err, docstore.ErrVersionConflict) || errors.Is(err, docstore.ErrNotFound) {
			return nil, s.tryAgain(op, err)
		}
		return nil, fmt.Errorf("save comment: %w", err)
	}
	return comment, nil
}

// ListComments 分頁讀取留言（新到舊）
//
// 第一頁是內嵌列表；之後的頁以上一頁最後一筆 lastID 為游標：
// 先取內嵌列表中 lastID 之後的部分，不足 N 筆再從溢出區取 _id < lastID 的留言。
func (s *Service) ListComments(ctx context.Context, videoID, lastID primitive.ObjectID) ([]CommentView, error) {
	video, err := s.loadAvailableVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	comments, err := s.commentPage(ctx, video, lastID)
	if err != nil {
		return nil, err
	}
	return s.decorate(ctx, comments)
}

func (s *Service) commentPage(ctx context.Context, video *docstore.Video, lastID primitive.ObjectID) ([]docstore.Comment, error) {
	if lastID.IsZero() {
		return video.TopComments, nil
	}

	var page []docstore.Comment
	idx := -1
	for i := range video.TopComments {
		if video.TopComments[i].ID == lastID {
			idx = i
			break
		}
	}
	if idx >= 0 {
		page = append(page, video.TopComments[idx+1:]...)
	} else if _, _, err := s.locateComment(ctx, video, lastID); err != nil {
		return nil, err
	}

	left := s.opts.PageSize - len(page)
	if left <= 0 {
		return page[:s.opts.PageSize], nil
	}
	more, err := s.store.ListOverflowComments(ctx, video.ID, lastID, left)
	if err != nil {
		return nil, fmt.Errorf("list overflow comments: %w", err)
	}
	return append(page, more...), nil
}

func (s *Service) decorate(ctx context.Context, comments []docstore.Comment) ([]CommentView, error) {
	out := make([]CommentView, 0, len(comments))
	for _, c := range comments {
		p, err := s.profile(ctx, c.UserID)
		if err != nil {
			return nil, err
		}
		out = append(out, CommentView{
			ID:           c.ID,
			UserID:       c.UserID.Hex(),
			UserFullName: p.FullName,
			UserAvatar:   p.Avatar,
			Content:      c.Content,
			Edit:         c.Edit,
			UpdatedAt:    c.UpdatedAt.UnixMilli(),
		})
	}
	return out, nil
}
