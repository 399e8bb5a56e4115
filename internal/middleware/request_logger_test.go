package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportr-backend/internal/logging"
	"reportr-backend/internal/middleware"
)

func newRouter(buf *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.RequestLogger(logging.NewWithWriter(buf, "production", "debug")))
	router.GET("/reports/:id", func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	})
	return router
}

func TestRequestIDIsGeneratedAndEchoed(t *testing.T) {
	var buf bytes.Buffer
	router := newRouter(&buf)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/reports/abc", nil))

	id := w.Header().Get(middleware.RequestIDHeader)
	assert.Len(t, id, 36)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, id, line["request_id"])
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "/reports/:id", line["route"])
	assert.Equal(t, float64(http.StatusNotFound), line["status"])
}

func TestRequestIDIsPropagated(t *testing.T) {
	var buf bytes.Buffer
	router := newRouter(&buf)

	req := httptest.NewRequest(http.MethodGet, "/reports/abc", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-1234")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-1234", w.Header().Get(middleware.RequestIDHeader))
	assert.Contains(t, buf.String(), `"request_id":"req-1234"`)
}
