package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func routedMux(status int) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/signals/details/{symbol}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	return mux
}

func TestHTTPMiddleware_LabelsByPattern(t *testing.T) {
	reg := NewRegistry()
	h := HTTPMiddleware(reg)(routedMux(http.StatusNotFound))

	for _, sym := range []string{"BTCUSDT", "ETHUSDT"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/signals/details/"+sym, nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	}

	// both symbols collapse into one series
	v := gatherValue(t, reg, "http_requests_total", map[string]string{
		"path":   "GET /api/signals/details/{symbol}",
		"status": "4xx",
	})
	assert.Equal(t, 2.0, v)
	assert.Zero(t, gatherValue(t, reg, "http_requests_in_flight", nil))
}

func TestHTTPMiddleware_UnroutedFallsBackToPath(t *testing.T) {
	reg := NewRegistry()
	h := HTTPMiddleware(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/ws", nil))

	v := gatherValue(t, reg, "http_requests_total", map[string]string{"path": "/ws", "status": "2xx"})
	assert.Equal(t, 1.0, v)
}

func TestHTTPMiddleware_InFlightDuringRequest(t *testing.T) {
	reg := NewRegistry()
	var during float64
	h := HTTPMiddleware(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = gatherValue(t, reg, "http_requests_in_flight", nil)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/bot/status", nil))
	assert.Equal(t, 1.0, during)
	assert.Zero(t, gatherValue(t, reg, "http_requests_in_flight", nil))
}

func TestResponseWriter_HijackUnsupported(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	assert.Error(t, err)
}

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return zap.New(core), logs
}

func TestLoggingMiddleware_Fields(t *testing.T) {
	logger, logs := observed()
	h := LoggingMiddleware(logger)(routedMux(http.StatusOK))

	req := httptest.NewRequest(http.MethodGet, "/api/signals/details/BTCUSDT", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "http request", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/api/signals/details/BTCUSDT", fields["path"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	assert.Equal(t, "10.0.0.7:51234", fields["client_ip"])
	assert.Contains(t, fields, "duration_ms")

	id := w.Header().Get("X-Request-ID")
	assert.NotEmpty(t, id)
	assert.Equal(t, id, fields["request_id"])
}

func TestLoggingMiddleware_KeepsIncomingRequestID(t *testing.T) {
	logger, logs := observed()
	h := LoggingMiddleware(logger)(routedMux(http.StatusOK))

	req := httptest.NewRequest(http.MethodGet, "/api/signals/details/ETHUSDT", nil)
	req.Header.Set("X-Request-ID", "dash-42")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "dash-42", w.Header().Get("X-Request-ID"))
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "dash-42", fields["request_id"])
	assert.Equal(t, "203.0.113.9", fields["client_ip"])
}

func TestLoggingMiddleware_NilLogger(t *testing.T) {
	h := LoggingMiddleware(nil)(routedMux(http.StatusTeapot))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/signals/details/X", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}
