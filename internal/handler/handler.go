// Package handler 實現 HTTP 請求處理
//
// 路由使用 Go 1.22+ 的 ServeMux（方法 + 路徑參數），中間件鏈：
//
//	requestID → identity → metrics/log → recovery → 業務處理
//
// 呼叫者身分只從 X-User-ID 讀取，驗證交給前面的閘道。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/koopa0/video-engagement/internal/engagement"
	"github.com/koopa0/video-engagement/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checker 就緒檢查的依賴
type Checker func(ctx context.Context) error

// Handler HTTP 處理器
type Handler struct {
	svc      *engagement.Service
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	checks   map[string]Checker
	validate *validator.Validate
	logger   *slog.Logger
}

// New 創建 Handler
//
// gatherer 為 nil 時不掛載 /metrics。
func New(svc *engagement.Service, m *metrics.Metrics, gatherer prometheus.Gatherer, checks map[string]Checker, logger *slog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		metrics:  m,
		gatherer: gatherer,
		checks:   checks,
		validate: newValidator(),
		logger:   logger.With("component", "http"),
	}
}

// Routes 設置路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	handle := func(pattern string, fn http.HandlerFunc) {
		mux.HandleFunc(pattern, h.withMiddleware(pattern, fn))
	}

	handle("GET /api/v1/videos/recent", h.recentVideos)
	handle("POST /api/v1/videos", h.createVideo)
	handle("PATCH /api/v1/videos/{videoId}", h.updateVideo)
	handle("GET /api/v1/videos/{videoId}/playback", h.playback)
	handle("POST /api/v1/videos/{videoId}/like", h.toggleLike)

	handle("GET /api/v1/videos/{videoId}/comments", h.listComments)
	handle("POST /api/v1/videos/{videoId}/comments", h.addComment)
	handle("PUT /api/v1/videos/{videoId}/comments/{commentId}", h.updateComment)
	handle("DELETE /api/v1/videos/{videoId}/comments/{commentId}", h.removeComment)

	handle("GET /api/v1/users/{userId}/videos", h.userVideos)
	handle("POST /api/v1/clips", h.registerClip)

	// 健康檢查不記錄請求日誌
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /ready", h.ready)
	if h.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

// withMiddleware 應用中間件鏈；route 作為指標標籤，避免路徑參數造成高基數
//
// recovery 在 observe 內側，panic 轉成的 500 也會被計數與記錄。
func (h *Handler) withMiddleware(route string, next http.HandlerFunc) http.HandlerFunc {
	return h.requestID(h.identity(h.observe(route, h.recovery(next))))
}

// health 存活檢查
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ready 就緒檢查：逐一 ping 依賴
func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "dependency not ready", "dependency", name, "error", err)
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	h.respondJSON(w, code, status)
}
