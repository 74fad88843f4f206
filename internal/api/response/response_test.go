package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/newthinker/tradebot/internal/core"
)

func TestJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"hello": "world"}

	JSON(w, http.StatusOK, data)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected application/json content type")
	}

	var resp SuccessResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Success {
		t.Error("expected success flag")
	}
	if resp.Data == nil {
		t.Error("expected data in response")
	}
	if resp.Timestamp.IsZero() {
		t.Error("expected timestamp")
	}
	if strings.Contains(w.Body.String(), `"message"`) {
		t.Error("empty message must be omitted")
	}
}

func TestMessage(t *testing.T) {
	w := httptest.NewRecorder()
	Message(w, http.StatusOK, nil, "bot started")

	var resp SuccessResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Message != "bot started" {
		t.Errorf("expected message, got %q", resp.Message)
	}
}

func TestError_WithCoreError(t *testing.T) {
	w := httptest.NewRecorder()
	err := core.Errorf(core.ErrTradeNotFound, "trade abc")

	Fail(w, err)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}

	var resp ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Success {
		t.Error("expected success false")
	}
	if resp.Error.Code != "TRADE_NOT_FOUND" {
		t.Errorf("expected TRADE_NOT_FOUND, got %s", resp.Error.Code)
	}
	if resp.Error.Cause != "trade abc" {
		t.Errorf("expected cause, got %q", resp.Error.Cause)
	}
}

func TestError_WithGenericError(t *testing.T) {
	w := httptest.NewRecorder()

	Fail(w, errors.New("database password leaked"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != "INTERNAL_ERROR" {
		t.Errorf("expected INTERNAL_ERROR, got %s", resp.Error.Code)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Error("generic error text must not leak")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrInvalidRequest, http.StatusBadRequest},
		{core.WrapError(core.ErrBotAlreadyRunning, nil), http.StatusConflict},
		{core.ErrRiskRejected, http.StatusUnprocessableEntity},
		{core.ErrExchangeFailed, http.StatusBadGateway},
		{core.ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("wrapped: %w", core.ErrSymbolNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.want, got)
		}
	}
}

func TestDecode(t *testing.T) {
	var dest struct{ Symbol string }

	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"symbol":"BTCUSDT"}`))
	if err := Decode(r, &dest); err != nil || dest.Symbol != "BTCUSDT" {
		t.Errorf("unexpected decode result %v %+v", err, dest)
	}

	r = httptest.NewRequest("POST", "/", strings.NewReader(`{bad`))
	if err := Decode(r, &dest); !errors.Is(err, core.ErrInvalidRequest) {
		t.Errorf("expected INVALID_REQUEST, got %v", err)
	}

	r = httptest.NewRequest("POST", "/", nil)
	if err := Decode(r, &dest); !errors.Is(err, core.ErrInvalidRequest) {
		t.Errorf("expected INVALID_REQUEST for empty body, got %v", err)
	}
}
