package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RequestID(), AccessLog(zap.NewNop()))
	engine.GET("/whoami", RequirePlayer(), func(c *gin.Context) {
		name, _ := GetUsername(c)
		c.String(http.StatusOK, name)
	})
	return engine
}

func TestRequirePlayer(t *testing.T) {
	engine := newEngine()

	tests := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{name: "请求头", header: "alice", status: http.StatusOK, body: "alice"},
		{name: "查询参数", query: "?player=bob", status: http.StatusOK, body: "bob"},
		{name: "请求头优先", header: "alice", query: "?player=bob", status: http.StatusOK, body: "alice"},
		{name: "缺少身份", status: http.StatusUnauthorized},
		{name: "空白身份", header: "  ", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set(HeaderPlayer, tt.header)
			}
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	engine := newEngine()

	// 沿用请求中的ID
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(HeaderPlayer, "alice")
	req.Header.Set(HeaderRequestID, "req-1")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))

	// 没有时生成
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
	assert.Contains(t, w.Body.String(), "缺少玩家身份")
}
