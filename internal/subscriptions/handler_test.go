package subscriptions

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newSubscriptionRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id != "" {
			c.Set("userId", id)
		}
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestHandlerCreateThenCurrent(t *testing.T) {
	svc, _ := newTestService(time.Now().UTC())
	r := newSubscriptionRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", strings.NewReader(`{"planId":"free"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", "guest:abc")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/current", nil)
	req.Header.Set("X-Test-User", "guest:abc")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body Current
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Plan.ID != "free" || body.Plan.TokensIncluded != 5000 {
		t.Fatalf("unexpected current %+v", body)
	}
}

func TestHandlerCreateValidation(t *testing.T) {
	svc, _ := newTestService(time.Now().UTC())
	r := newSubscriptionRouter(svc)

	tests := []struct {
		body string
		want int
	}{
		{body: `not json`, want: http.StatusBadRequest},
		{body: `{}`, want: http.StatusBadRequest},
		{body: `{"planId":"gold"}`, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", strings.NewReader(tt.body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-User", "u1")
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if resp.Code != tt.want {
			t.Fatalf("body %s: expected %d, got %d", tt.body, tt.want, resp.Code)
		}
	}
}

func TestHandlerListPlans(t *testing.T) {
	svc, _ := newTestService(time.Now().UTC())
	resp := httptest.NewRecorder()
	newSubscriptionRouter(svc).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body struct {
		Plans []Plan `json:"plans"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Plans) != 3 || body.Plans[0].Price != 0 {
		t.Fatalf("unexpected plans %+v", body.Plans)
	}
}
