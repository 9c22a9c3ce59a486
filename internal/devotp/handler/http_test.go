package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"accountability-assistant/backend/internal/devotp"
)

func TestHandler_ReturnsCode(t *testing.T) {
	store := devotp.NewMemoryStore()
	store.Put(context.Background(), "+447700900000", "123456", time.Now().Add(time.Minute))

	rec := httptest.NewRecorder()
	New(store).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/otp?target="+url.QueryEscape("+447700900000"), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OTP != "123456" || resp.Note != devOTPNote {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandler_MissingTarget(t *testing.T) {
	rec := httptest.NewRecorder()
	New(devotp.NewMemoryStore()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/otp", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandler_NotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	New(devotp.NewMemoryStore()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/otp?target=a@b.com", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
