package handler

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koopa0/video-engagement/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestWithMiddleware_PanicIsObserved(t *testing.T) {
	var logs bytes.Buffer
	m := metrics.NewNop()
	h := New(nil, m, nil, nil, slog.New(slog.NewTextHandler(&logs, nil)))

	route := h.withMiddleware("GET /boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	route(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET /boom", "500")))
	assert.Contains(t, logs.String(), "panic recovered")
	assert.Contains(t, logs.String(), "http request")
	assert.Contains(t, logs.String(), "status=500")
}
