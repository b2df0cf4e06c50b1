package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimiter_Handler_Burst(t *testing.T) {
	rl := NewRateLimiter(1, 2, testLogger())
	handler := rl.Handler(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/api/v1/accounts", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("burst requests = %v, want first two OK", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want %d", codes[2], http.StatusTooManyRequests)
	}
}

func TestRateLimiter_Handler_SeparateKeys(t *testing.T) {
	rl := NewRateLimiter(1, 1, testLogger())
	handler := rl.Handler(okHandler())

	for _, addr := range []string{"10.0.0.1:1234", "10.0.0.2:1234"} {
		req := httptest.NewRequest("GET", "/api/v1/accounts", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("first request from %s = %d, want %d", addr, rec.Code, http.StatusOK)
		}
	}
}

func TestRateLimiter_Handler_SubjectKey(t *testing.T) {
	rl := NewRateLimiter(1, 1, testLogger())
	handler := rl.Handler(okHandler())

	send := func(subject string) int {
		req := httptest.NewRequest("GET", "/api/v1/accounts", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req = req.WithContext(context.WithValue(req.Context(), subjectKey, subject))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("alice"); code != http.StatusOK {
		t.Errorf("first request = %d, want %d", code, http.StatusOK)
	}
	if code := send("alice"); code != http.StatusTooManyRequests {
		t.Errorf("second request = %d, want %d", code, http.StatusTooManyRequests)
	}
	if code := send("bob"); code != http.StatusOK {
		t.Errorf("other subject = %d, want %d", code, http.StatusOK)
	}
}
