// internal/api/middleware/auth_test.go
package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAPIKeyAuth_ValidKey(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	auth := APIKeyAuth("secret-key")
	wrapped := auth(handler)

	req := httptest.NewRequest("GET", "/api/trades/active", nil)
	req.Header.Set("X-API-Key", "secret-key")
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestAPIKeyAuth_MissingKey(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	auth := APIKeyAuth("secret-key")
	wrapped := auth(handler)

	req := httptest.NewRequest("GET", "/api/trades/active", nil)
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAPIKeyAuth_InvalidKey(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	auth := APIKeyAuth("secret-key")
	wrapped := auth(handler)

	req := httptest.NewRequest("GET", "/api/trades/active", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAPIKeyAuth_EmptyConfiguredKey(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	auth := APIKeyAuth("") // Empty = disabled
	wrapped := auth(handler)

	req := httptest.NewRequest("GET", "/api/trades/active", nil)
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 when auth disabled, got %d", w.Code)
	}
}

func TestAPIKeyAuth_QueryParamAndPublicPaths(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := APIKeyAuth("secret-key", "/api/health")(handler)

	req := httptest.NewRequest("GET", "/ws?api_key=secret-key", nil)
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with query key, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/health", nil)
	w = httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected public path to skip auth, got %d", w.Code)
	}
}

func TestAPIKeyAuth_ErrorEnvelope(t *testing.T) {
	wrapped := APIKeyAuth("secret-key")(http.NotFoundHandler())

	req := httptest.NewRequest("GET", "/api/settings", nil)
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), `"code":"UNAUTHORIZED"`) {
		t.Errorf("expected UNAUTHORIZED envelope, got %s", w.Body.String())
	}
}

func TestCORS(t *testing.T) {
	wrapped := CORS([]string{"http://localhost:3000"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("OPTIONS", "/api/settings", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204 preflight, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Error("expected allowed origin header")
	}

	req = httptest.NewRequest("GET", "/api/settings", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unexpected CORS header for unknown origin")
	}
}
