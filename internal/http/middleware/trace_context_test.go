package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/brandpulse-backend/internal/platform/ctxutil"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

func TestAttachTraceContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext(), RequestLogger(logger.Nop()))

	var seen *ctxutil.TraceData
	r.GET("/x", func(c *gin.Context) {
		seen = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if seen == nil || seen.RequestID != "req-1" || seen.TraceID == "" {
		t.Fatalf("trace data not attached: %+v", seen)
	}
	if rec.Header().Get("X-Request-Id") != "req-1" || rec.Header().Get("X-Trace-Id") != seen.TraceID {
		t.Fatalf("response headers: %v", rec.Header())
	}
}
