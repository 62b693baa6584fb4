package http

import (
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// NewFrontendHandler serves the built web client and proxies /api requests to
// the backend, replacing the little Express server the frontend used to ship
// with. Unknown paths fall back to index.html so client-side routing works.
// backendURL may be nil when no backend is configured; staticDir may be empty
// when only the API surface is wanted.
func NewFrontendHandler(staticDir string, backendURL *url.URL, ws http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("/ws", ws)

	if backendURL != nil {
		proxy := httputil.NewSingleHostReverseProxy(backendURL)
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			log.Printf("proxy error: %v", err)
			http.Error(w, "could not connect to backend", http.StatusBadGateway)
		}
		mux.Handle("/api/", proxy)
	}

	if staticDir != "" {
		mux.Handle("/", spaFileServer(staticDir))
	}

	return mux
}

// spaFileServer serves files from dir, falling back to index.html for paths
// that do not exist on disk.
func spaFileServer(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean(strings.TrimPrefix(r.URL.Path, "/")))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			fs.ServeHTTP(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(dir, "index.html"))
	})
}
