package main

import (
	"encoding/json"
	"net/http"
	"testing"

	"narrate-backend/internal/shared/server/respond"
)

func TestErrorResponseShape(t *testing.T) {
	resp := errorResponse(http.StatusServiceUnavailable, "bootstrap_failed", "service failed to start")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if resp.Headers["Content-Type"] != "application/json" {
		t.Fatalf("unexpected headers %v", resp.Headers)
	}
	var body respond.ErrorResponse
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "bootstrap_failed" || body.Error.Message != "service failed to start" {
		t.Fatalf("unexpected body %+v", body)
	}
}
