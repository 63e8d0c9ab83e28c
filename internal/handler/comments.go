package handler

import (
	"net/http"

	apperrors "github.com/koopa0/video-engagement/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type commentRequest struct {
	Content string `json:"content" validate:"required,max=1000"`
}

// listComments GET /api/v1/videos/{videoId}/comments?skipped={lastCommentId}
func (h *Handler) listComments(w http.ResponseWriter, r *http.Request) {
	videoID, ok := h.pathID(w, r, "videoId")
	if !ok {
		return
	}
	lastID := primitive.NilObjectID
	if raw := r.URL.Query().Get("skipped"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			h.respondError(w, r, http.StatusBadRequest, apperrors.ErrCodeInvalidInput, "invalid skipped")
			return
		}
		lastID = id
	}

	comments, err := h.svc.ListComments(r.Context(), videoID, lastID)
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

// addComment POST /api/v1/videos/{videoId}/comments
func (h *Handler) addComment(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	videoID, ok := h.pathID(w, r, "videoId")
	if !ok {
		return
	}
	var req commentRequest
	if !h.decode(w, r, &req) {
		return
	}

	comment, err := h.svc.AddComment(r.Context(), videoID, user, req.Content)
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, comment)
}

// updateComment PUT /api/v1/videos/{videoId}/comments/{commentId}
func (h *Handler) updateComment(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	videoID, ok := h.pathID(w, r, "videoId")
	if !ok {
		return
	}
	commentID, ok := h.pathID(w, r, "commentId")
	if !ok {
		return
	}
	var req commentRequest
	if !h.decode(w, r, &req) {
		return
	}

	comment, err := h.svc.UpdateComment(r.Context(), videoID, commentID, user, req.Content)
	if err != nil {
		h.respondAppError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, comment)
}

// removeComment DELETE /api/v1/videos/{videoId}/comments/{commentId}
func (h *Handler) removeComment(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	videoID, ok := h.pathID(w, r, "videoId")
	if !ok {
		return
	}
	commentID, ok := h.pathID(w, r, "commentId")
	if !ok {
		return
	}

	if err := h.svc.RemoveComment(r.Context(), videoID, commentID, user); err != nil {
		h.respondAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
