package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/koopa0/video-engagement/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	headerRequestID = "X-Request-ID"
	headerUserID    = "X-User-ID"
)

type userKey struct{}

// recovery 恢復 panic
func (h *Handler) recovery(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.ErrorContext(r.Context(), "panic recovered", "panic", fmt.Sprint(rec))
				h.respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}()
		next(w, r)
	}
}

// requestID 沿用上游的 X-Request-ID，沒有就產生一個
func (h *Handler) requestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(headerRequestID, id)
		next(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	}
}

// identity 解析 X-User-ID；格式錯誤直接拒絕，缺少時視為匿名
func (h *Handler) identity(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(headerUserID)
		if raw == "" {
			next(w, r)
			return
		}
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			h.respondError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid "+headerUserID)
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, id)
		ctx = logger.WithUserID(ctx, raw)
		next(w, r.WithContext(ctx))
	}
}

// observe 記錄請求日誌與指標
func (h *Handler) observe(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next(ww, r)

		elapsed := time.Since(start)
		h.metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(ww.statusCode)).Inc()
		h.metrics.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		h.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", elapsed,
			"remote", r.RemoteAddr,
		)
	}
}

// currentUser 取得呼叫者；ok 為 false 表示匿名
func currentUser(ctx context.Context) (primitive.ObjectID, bool) {
	id, ok := ctx.Value(userKey{}).(primitive.ObjectID)
	return id, ok
}

// responseWriter 包裝以捕獲狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
