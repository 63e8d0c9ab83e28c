package handler

import (
	"net/http"
	"strconv"

	"github.com/koopa0/video-engagement/internal/docstore"
	"github.com/koopa0/video-engagement/internal/engagement"
	apperrors "github.com/koopa0/video-engagement/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type createVideoRequest struct {
	TempClipID string         `json:"tempClipId" validate:"required,objectid"`
	Title      string         `json:"title" validate:"required,max=200"`
	Tags       []docstore.Tag `json:"tags" validate:"max=3,dive,videotag"`
	IsPublic   bool           `json:"isPublic"`
}

type updateVideoRequest struct {
	Title    *string        `json:"title" validate:"omitempty,min=1,max=200"`
	Tags     []docstore.Tag `json:"tags" validate:"omitempty,max=3,dive,videotag"`
	IsPublic *bool          `json:"isPublic"`
}

type registerClipRequest struct {
	Source string `json:"source" validate:"required,max=1024"`
}

// recentVideos GET /api/v1/videos/recent
func (h *Handler) recentVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := h.svc.RecentVideos(r.Context())
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"videos": videos})
}

// userVideos GET /api/v1/users/{userId}/videos?p=1
func (h *Handler) userVideos(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.pathID(w, r, "userId")
	if !ok {
		return
	}
	page := 1
	if raw := r.URL.Query().Get("p"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.respondError(w, r, http.StatusBadRequest, apperrors.ErrCodeInvalidInput, "invalid page")
			return
		}
		page = n
	}

	videos, err := h.svc.UserVideos(r.Context(), owner, page)
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"videos": videos, "page": page})
}

// registerClip POST /api/v1/clips
func (h *Handler) registerClip(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req registerClipRequest
	if !h.decode(w, r, &req) {
		return
	}

	clip, err := h.svc.RegisterClip(r.Context(), user, req.Source)
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, clip)
}

// createVideo POST /api/v1/videos
func (h *Handler) createVideo(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req createVideoRequest
	if !h.decode(w, r, &req) {
		return
	}
	clipID, _ := primitive.ObjectIDFromHex(req.TempClipID)

	video, err := h.svc.CreateVideo(r.Context(), user, engagement.CreateVideoInput{
		TempClipID: clipID,
		Title:      req.Title,
		Tags:       req.Tags,
		IsPublic:   req.IsPublic,
	})
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]any{"videoId": video.ID})
}

// updateVideo PATCH /api/v1/videos/{videoId}
func (h *Handler) updateVideo(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	videoID, ok := h.pathID(w, r, "videoId")
	if !ok {
		return
	}
	var req updateVideoRequest
	if !h.decode(w, r, &req) {
		return
	}

	video, err := h.svc.UpdateVideo(r.Context(), videoID, user, engagement.UpdateVideoInput{
		Title:    req.Title,
		Tags:     req.Tags,
		IsPublic: req.IsPublic,
	})
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, video)
}

// playback GET /api/v1/videos/{videoId}/playback
//
// 匿名也可以播放，liked 恆為 false。
func (h *Handler) playback(w http.ResponseWriter, r *http.Request) {
	videoID, ok := h.pathID(w, r, "videoId")
	if !ok {
		return
	}
	viewer, _ := currentUser(r.Context())

	pb, err := h.svc.Playback(r.Context(), videoID, viewer)
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, pb)
}

// toggleLike POST /api/v1/videos/{videoId}/like
func (h *Handler) toggleLike(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	videoID, ok := h.pathID(w, r, "videoId")
	if !ok {
		return
	}

	liked, err := h.svc.ToggleLike(r.Context(), videoID, user)
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]bool{"liked": liked})
}
