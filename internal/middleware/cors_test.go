package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	tests := []struct {
		name        string
		allowed     []string
		origin      string
		method      string
		wantOrigin  string
		wantCode    int
		wantCredits string
	}{
		{name: "listed origin", allowed: []string{"https://studio.example"}, origin: "https://studio.example", method: http.MethodGet, wantOrigin: "https://studio.example", wantCode: http.StatusOK, wantCredits: "true"},
		{name: "unlisted origin", allowed: []string{"https://studio.example"}, origin: "https://evil.example", method: http.MethodGet, wantCode: http.StatusOK},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://any.example", method: http.MethodGet, wantOrigin: "*", wantCode: http.StatusOK},
		{name: "preflight", allowed: []string{"*"}, origin: "https://any.example", method: http.MethodOptions, wantOrigin: "*", wantCode: http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/v1/templates", nil)
			req.Header.Set("Origin", tc.origin)
			rec := httptest.NewRecorder()
			CORS(tc.allowed)(next).ServeHTTP(rec, req)
			if rec.Code != tc.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tc.wantCode)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Fatalf("allow origin = %q, want %q", got, tc.wantOrigin)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tc.wantCredits {
				t.Fatalf("allow credentials = %q, want %q", got, tc.wantCredits)
			}
		})
	}
}

func TestRequestIDPropagation(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen != "abc-123" || rec.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("request id not propagated: ctx=%q header=%q", seen, rec.Header().Get("X-Request-ID"))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen != rec.Header().Get("X-Request-ID") {
		t.Fatalf("generated id mismatch: ctx=%q header=%q", seen, rec.Header().Get("X-Request-ID"))
	}
}
