package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// ReleaseServer serves release assets from memory and counts downloads.
type ReleaseServer struct {
	*httptest.Server

	mu     sync.Mutex
	assets map[string]string
	hits   map[string]int
}

// NewReleaseServer starts a server for assets keyed by URL path, e.g.
// "/acme/lib/releases/latest/download/lib-linux-amd64".
func NewReleaseServer(t *testing.T, assets map[string]string) *ReleaseServer {
	t.Helper()
	s := &ReleaseServer{assets: assets, hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *ReleaseServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	body, ok := s.assets[r.URL.Path]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write([]byte(body))
}

// Hits returns how often path was requested.
func (s *ReleaseServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}
