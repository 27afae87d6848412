package app

import (
	"errors"
	"net/http"
	"testing"
)

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.do(t, http.MethodGet, "/api/health", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestReadyReflectsDatabase(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(t, http.MethodGet, "/api/ready", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("ready: %d", recorder.Code)
	}

	env.store.pingErr = errors.New("connection refused")
	recorder = env.do(t, http.MethodGet, "/api/ready", "", nil)
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("not ready: %d, want 503", recorder.Code)
	}
	payload := decodeResponse(t, recorder)
	if payload["status"] != "not_ready" {
		t.Errorf("status = %v", payload["status"])
	}
}
