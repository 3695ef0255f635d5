package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCORSPreflight(t *testing.T) {
	handler := CORS([]string{"*"})(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code >= http.StatusMultipleChoices {
		t.Fatalf("expected successful preflight, got %d", resp.Code)
	}
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if got := resp.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials to be allowed, got %q", got)
	}
	if got := resp.Header().Get("Access-Control-Allow-Headers"); !strings.EqualFold(got, "content-type") {
		t.Fatalf("unexpected allow headers %q", got)
	}
	if got := resp.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, http.MethodPost) {
		t.Fatalf("unexpected allow methods %q", got)
	}
}

func TestCORSEchoesConfiguredOrigin(t *testing.T) {
	handler := CORS([]string{"http://app.example"})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Origin", "http://app.example")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "http://app.example" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if got := resp.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials to be allowed, got %q", got)
	}
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	handler := CORS([]string{"http://app.example"})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Origin", "http://evil.example")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected request to pass through, got %d", resp.Code)
	}
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow origin, got %q", got)
	}
}

func TestOriginChecker(t *testing.T) {
	check := OriginChecker([]string{"http://app.example"})

	req := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	if !check(req) {
		t.Fatal("expected missing origin to be admitted")
	}

	req.Header.Set("Origin", "http://app.example")
	if !check(req) {
		t.Fatal("expected configured origin to be admitted")
	}

	req.Header.Set("Origin", "http://evil.example")
	if check(req) {
		t.Fatal("expected unknown origin to be rejected")
	}
}
