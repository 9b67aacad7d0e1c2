package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"aromabridge/internal/service"
)

func TestSignIn_Success(t *testing.T) {
	auth := &mockAuth{genTokenToken: "jwt-token"}
	r := newTestRouter(&service.Service{Authorization: auth})

	body := bytes.NewBufferString(`{"username":"admin","password":"bridgepass"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/sign-in", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body=%s)", w.Code, w.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Token != "jwt-token" {
		t.Fatalf("token: got %q", out.Token)
	}
	if auth.lastGenUsername != "admin" || auth.lastGenPassword != "bridgepass" {
		t.Fatalf("credentials passed through: %q/%q", auth.lastGenUsername, auth.lastGenPassword)
	}
}

func TestSignIn_BadCredentials(t *testing.T) {
	auth := &mockAuth{genTokenErr: service.ErrInvalidCredentials}
	r := newTestRouter(&service.Service{Authorization: auth})

	body := bytes.NewBufferString(`{"username":"admin","password":"wrong"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/sign-in", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want 401", w.Code)
	}
}

func TestSignIn_MissingFields(t *testing.T) {
	r := newTestRouter(&service.Service{Authorization: &mockAuth{}})

	for _, body := range []string{`{}`, `{"username":"admin"}`, `not json`} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/sign-in", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status got %d, want 400", body, w.Code)
		}
	}
}
