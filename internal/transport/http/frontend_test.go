package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
)

func TestFrontendProxiesAPIRequests(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/questions" {
			t.Errorf("backend saw path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"questions":[]}`))
	}))
	defer backend.Close()

	backendURL, _ := url.Parse(backend.URL)
	handler := NewFrontendHandler("", backendURL, http.NotFoundHandler())
	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/questions")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"questions":[]}` {
		t.Fatalf("body %q", body)
	}
}

func TestFrontendProxyErrorSurfacesBadGateway(t *testing.T) {
	// Point at a port nothing listens on.
	backendURL, _ := url.Parse("http://127.0.0.1:1")
	handler := NewFrontendHandler("", backendURL, http.NotFoundHandler())
	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/questions")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}

func TestFrontendServesStaticWithSPAFallback(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "index.html"), "<html>app shell</html>")
	mustWrite(t, filepath.Join(dir, "app.js"), "console.log('hi')")

	handler := NewFrontendHandler(dir, nil, http.NotFoundHandler())
	server := httptest.NewServer(handler)
	defer server.Close()

	cases := []struct {
		path string
		want string
	}{
		{"/app.js", "console.log('hi')"},
		{"/", "<html>app shell</html>"},
		// Client-side routes fall back to the shell.
		{"/game/daily", "<html>app shell</html>"},
	}
	for _, tc := range cases {
		resp, err := http.Get(server.URL + tc.path)
		if err != nil {
			t.Fatalf("get %s: %v", tc.path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || string(body) != tc.want {
			t.Fatalf("%s: status %d body %q", tc.path, resp.StatusCode, body)
		}
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
