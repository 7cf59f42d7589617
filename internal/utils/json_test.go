package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusOK, map[string]any{"station_id": "bedroom", "humidity_pct": 44})

	if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q; want application/json; charset=utf-8", got)
	}
	if w.Code != http.StatusOK {
		t.Errorf("Code = %d; want %d", w.Code, http.StatusOK)
	}

	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if got["station_id"] != "bedroom" {
		t.Errorf("station_id = %v; want bedroom", got["station_id"])
	}
	if got["humidity_pct"] != float64(44) {
		t.Errorf("humidity_pct = %v; want 44", got["humidity_pct"])
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusBadRequest, "limit must be between 1 and 1000")

	if w.Code != http.StatusBadRequest {
		t.Errorf("Code = %d; want %d", w.Code, http.StatusBadRequest)
	}
	var got map[string]string
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if got["error"] != "Bad Request" {
		t.Errorf("error = %q; want Bad Request", got["error"])
	}
	if got["message"] != "limit must be between 1 and 1000" {
		t.Errorf("message = %q", got["message"])
	}
}
