package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareDisabled(t *testing.T) {
	handler := Middleware(Config{Enabled: false})(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/propagate", nil))
	if w.Code != http.StatusOK {
		t.Errorf("disabled auth blocked request: %d", w.Code)
	}
}

func TestMiddlewareEnforcesToken(t *testing.T) {
	handler := Middleware(Config{Enabled: true, Token: "s3cret"})(okHandler())

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"correct token", "Bearer s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/propagate", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestExemptPaths(t *testing.T) {
	handler := Middleware(Config{Enabled: true, Token: "s3cret"})(okHandler())

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/api/v1/presets"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("exempt path %s got %d, want 200", path, w.Code)
		}
	}

	// Job routes are not exempt.
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/jobs/abc123", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("job route got %d, want 401", w.Code)
	}
}
