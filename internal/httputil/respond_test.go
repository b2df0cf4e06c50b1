package httputil

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	body := io.NopCloser(strings.NewReader(`{"name": "Maija"}`))
	if err := DecodeJSON(body, &dst); err != nil {
		t.Fatalf("DecodeJSON() error = %v", err)
	}
	if dst.Name != "Maija" {
		t.Errorf("Name = %q, want Maija", dst.Name)
	}
}

func TestDecodeJSONUnknownField(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	body := io.NopCloser(strings.NewReader(`{"name": "Maija", "extra": true}`))
	if err := DecodeJSON(body, &dst); err == nil {
		t.Fatal("DecodeJSON() accepted unknown field")
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteJSON(rec, 201, map[string]string{"reference": "113444"})

	if rec.Code != 201 {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"reference":"113444"}` {
		t.Errorf("body = %s", got)
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteError(rec, 409, errors.New("invoice already sent"))

	if rec.Code != 409 {
		t.Errorf("status = %d, want 409", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"invoice already sent"}` {
		t.Errorf("body = %s", got)
	}
}
