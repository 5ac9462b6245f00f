package offline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"sync/atomic"
	"testing"
)

func newTestWorker(t *testing.T, upstream string, storage Storage) *Worker {
	t.Helper()
	u, err := url.Parse(upstream)
	if err != nil {
		t.Fatalf("parse upstream url: %v", err)
	}
	return NewWorker(Config{
		Upstream: u,
		Storage:  storage,
	})
}

// deadServer returns the base URL of a server that is already closed,
// so every fetch against it fails at the network layer.
func deadServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()
	return addr
}

func TestCacheFirstStoresOnceThenServesFromCache(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/css")
		_, _ = w.Write([]byte("body{margin:0}"))
	}))
	defer srv.Close()

	w := newTestWorker(t, srv.URL, NewMemoryStorage())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		w.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
		if got := rec.Body.String(); got != "body{margin:0}" {
			t.Fatalf("request %d: body = %q", i+1, got)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/css" {
			t.Fatalf("request %d: content type = %q", i+1, ct)
		}
	}

	if n := hits.Load(); n != 1 {
		t.Errorf("upstream hits = %d, want 1 (second request must come from cache)", n)
	}
}

func TestNetworkFirstRefreshesCacheAndFallsBack(t *testing.T) {
	storage := NewMemoryStorage()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1}]`))
	}))
	w := newTestWorker(t, srv.URL, storage)

	// Live fetch succeeds and is copied into the cache.
	rec := httptest.NewRecorder()
	w.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices?store=Rewe", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != `[{"id":1}]` {
		t.Fatalf("live response = %d %q", rec.Code, rec.Body.String())
	}

	// Kill the network: the cached copy must answer for the same request.
	srv.Close()
	rec = httptest.NewRecorder()
	w.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices?store=Rewe", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("offline status = %d, want 200 from cache", rec.Code)
	}
	if rec.Body.String() != `[{"id":1}]` {
		t.Errorf("offline body = %q, want cached payload", rec.Body.String())
	}
}

func TestNetworkFirstWithoutCacheSynthesizes503(t *testing.T) {
	w := newTestWorker(t, deadServer(t), NewMemoryStorage())

	rec := httptest.NewRecorder()
	w.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q, want application/json", ct)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if payload["error"] == "" {
		t.Errorf("payload = %v, want an error field", payload)
	}
}

func TestNetworkFirstDoesNotCacheErrorResponses(t *testing.T) {
	storage := NewMemoryStorage()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := newTestWorker(t, srv.URL, storage)
	rec := httptest.NewRecorder()
	w.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 passed through", rec.Code)
	}

	bucket, _ := storage.Open(context.Background(), CurrentGeneration)
	if _, ok, _ := bucket.Match(context.Background(), Key(http.MethodGet, "/api/invoices")); ok {
		t.Error("error response must not be cached")
	}
}

func TestNavigationFallsBackToCachedShell(t *testing.T) {
	storage := NewMemoryStorage()
	bucket, _ := storage.Open(context.Background(), CurrentGeneration)
	_ = bucket.Put(context.Background(), Key(http.MethodGet, "/"), &Entry{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"text/html"}},
		Body:   []byte("<html>shell</html>"),
	})

	w := newTestWorker(t, deadServer(t), storage)

	// Navigation request for an uncached page: serve the shell.
	req := httptest.NewRequest(http.MethodGet, "/stats-view", nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	rec := httptest.NewRecorder()
	w.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "<html>shell</html>" {
		t.Errorf("navigation fallback = %d %q, want cached shell", rec.Code, rec.Body.String())
	}

	// Non-navigation request propagates the failure instead.
	rec = httptest.NewRecorder()
	w.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/missing.js", nil))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("non-navigation failure status = %d, want 502", rec.Code)
	}
}

func TestNonGETPassesThrough(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	storage := NewMemoryStorage()
	w := newTestWorker(t, srv.URL, storage)

	rec := httptest.NewRecorder()
	w.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/invoices", nil))
	if method != http.MethodPost {
		t.Errorf("upstream saw method %q, want POST", method)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}

	names, _ := storage.Names(context.Background())
	for _, name := range names {
		bucket, _ := storage.Open(context.Background(), name)
		if _, ok, _ := bucket.Match(context.Background(), Key(http.MethodPost, "/api/invoices")); ok {
			t.Error("POST must never be cached")
		}
	}
}

func TestInstallSeedsShellAtomically(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("asset:" + r.URL.Path))
	}))
	defer srv.Close()

	storage := NewMemoryStorage()
	u, _ := url.Parse(srv.URL)
	w := NewWorker(Config{
		Upstream: u,
		Storage:  storage,
		Shell:    []string{"/", "/static/app.js"},
	})

	if err := w.Install(context.Background()); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	bucket, _ := storage.Open(context.Background(), CurrentGeneration)
	for _, path := range []string{"/", "/static/app.js"} {
		if _, ok, _ := bucket.Match(context.Background(), Key(http.MethodGet, path)); !ok {
			t.Errorf("shell asset %s missing after install", path)
		}
	}
}

func TestInstallAbortsOnMissingAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/static/gone.js" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	storage := NewMemoryStorage()
	u, _ := url.Parse(srv.URL)
	w := NewWorker(Config{
		Upstream: u,
		Storage:  storage,
		Shell:    []string{"/", "/static/gone.js"},
	})

	if err := w.Install(context.Background()); err == nil {
		t.Fatal("Install() should fail when a shell asset 404s")
	}

	// All-or-nothing: the partially-seeded bucket must be gone.
	names, _ := storage.Names(context.Background())
	for _, name := range names {
		if name == CurrentGeneration {
			t.Error("partially-seeded bucket survived a failed install")
		}
	}
}

func TestActivateEvictsStaleGenerations(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()
	for _, name := range []string{"summa-cache-v0", "summa-cache-v1"} {
		bucket, _ := storage.Open(ctx, name)
		_ = bucket.Put(ctx, Key(http.MethodGet, "/"), &Entry{Status: http.StatusOK, Header: http.Header{}})
	}

	u, _ := url.Parse("http://localhost:0")
	w := NewWorker(Config{Generation: "summa-cache-v1", Upstream: u, Storage: storage})

	if err := w.Activate(ctx); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	names, _ := storage.Names(ctx)
	sort.Strings(names)
	if len(names) != 1 || names[0] != "summa-cache-v1" {
		t.Errorf("buckets after activate = %v, want only summa-cache-v1", names)
	}
}
