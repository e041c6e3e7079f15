package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func TestRequestIDGeneratedWhenMissing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	var seen string
	router.GET("/x", func(c *gin.Context) {
		seen = RequestIDFromContext(c)
		c.Status(http.StatusOK)
	})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/x", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("expected uuid request id, got %q", seen)
	}
	if resp.Header().Get("X-Request-Id") != seen {
		t.Fatalf("header and context disagree")
	}
}

func TestRequestIDReplacesOversizedHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", strings.Repeat("a", 500))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if got := resp.Header().Get("X-Request-Id"); len(got) > maxRequestIDLen {
		t.Fatalf("expected oversized id to be replaced, got len %d", len(got))
	}
}
