package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareBlocksAfterQuota(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, err := NewStore(nil, "test")
	require.NoError(t, err)
	mw, err := Middleware(store, "2-M")
	require.NoError(t, err)

	router := gin.New()
	router.POST("/consent/:id/verify", mw, func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/consent/abc/verify", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestMiddlewareRejectsBadRate(t *testing.T) {
	store, err := NewStore(nil, "test")
	require.NoError(t, err)
	_, err = Middleware(store, "ten per minute")
	assert.Error(t, err)
}
