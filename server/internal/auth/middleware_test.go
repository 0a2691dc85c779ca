package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func guarded(mode, key string) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	return APIKeyMiddleware(mode, "X-Api-Key", key)(ok)
}

func serve(h http.Handler, key string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stories", nil)
	if key != "" {
		req.Header.Set("X-Api-Key", key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Code
}

func TestAPIKeyMiddleware_Disabled(t *testing.T) {
	if code := serve(guarded("none", "k"), ""); code != http.StatusAccepted {
		t.Errorf("status: got %d, want 202", code)
	}
	if code := serve(guarded("apikey", ""), ""); code != http.StatusAccepted {
		t.Errorf("status with empty key: got %d, want 202", code)
	}
}

func TestAPIKeyMiddleware_Enforced(t *testing.T) {
	h := guarded("apikey", "k-123")

	if code := serve(h, "k-123"); code != http.StatusAccepted {
		t.Errorf("correct key: got %d, want 202", code)
	}
	if code := serve(h, "nope"); code != http.StatusUnauthorized {
		t.Errorf("wrong key: got %d, want 401", code)
	}
	if code := serve(h, ""); code != http.StatusUnauthorized {
		t.Errorf("missing key: got %d, want 401", code)
	}
}
