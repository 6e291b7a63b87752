package middleware

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"streamwatch/pkg/errors"
	"streamwatch/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newRouter(t *testing.T) (*gin.Engine, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	log := logger.NewContextLogger(zap.New(core))

	router := gin.New()
	router.Use(RecoveryMiddleware(log), RequestLoggerMiddleware(log), TracingMiddleware(), ErrorHandlerMiddleware(log))
	return router, logs
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"abc", "", false},
	}
	for _, tt := range tests {
		token, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.token, token, tt.header)
	}
}

func TestTokenMatches(t *testing.T) {
	assert.True(t, TokenMatches("secret", "secret"))
	assert.False(t, TokenMatches("secreT", "secret"))
	assert.False(t, TokenMatches("", ""))
}

func TestAuthMiddleware(t *testing.T) {
	router, _ := newRouter(t)
	api := router.Group("/api/v1", AuthMiddleware("secret"))
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Token secret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Equal(t, string(errors.ErrCodeUnauthorized), decode(t, w)["error"])
			}
		})
	}
}

func TestErrorHandlerMiddleware(t *testing.T) {
	router, logs := newRouter(t)
	router.GET("/conflict", func(c *gin.Context) {
		c.Error(errors.NewConflictError("already watched").WithContext("login", "alice"))
	})
	router.GET("/plain", func(c *gin.Context) {
		c.Error(stderrors.New("disk on fire"))
	})
	router.GET("/wrapped", func(c *gin.Context) {
		c.Error(fmt.Errorf("list: %w", errors.NewServiceUnavailableError("store offline")))
	})
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conflict", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w)
	assert.Equal(t, "CONFLICT", body["error"])
	assert.Equal(t, "already watched", body["message"])
	assert.Equal(t, map[string]interface{}{"login": "alice"}, body["details"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plain", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body = decode(t, w)
	assert.Equal(t, "INTERNAL_ERROR", body["error"])
	assert.Equal(t, "Internal server error", body["message"])
	assert.NotContains(t, w.Body.String(), "disk on fire")
	failed := logs.FilterMessage("request failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "INTERNAL_ERROR", failed[0].ContextMap()["code"])

	// An AppError further down the chain keeps its own status.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wrapped", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", decode(t, w)["error"])
	assert.Equal(t, 2, logs.FilterMessage("request failed").Len())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body = decode(t, w)
	assert.Equal(t, "INTERNAL_ERROR", body["error"])
	assert.Equal(t, "Internal server error", body["message"])
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestRequestLoggerMiddleware(t *testing.T) {
	router, logs := newRouter(t)
	router.GET("/ok", func(c *gin.Context) {
		assert.Equal(t, "req-42", logger.RequestID(c.Request.Context()))
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("X-Request-ID", "req-42")
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-42", entries[0].ContextMap()["request_id"])
	assert.Equal(t, int64(http.StatusNoContent), entries[0].ContextMap()["status_code"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok-missing", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
