package offline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// CurrentGeneration tags the active cache bucket. Bump the version when
// the shell manifest changes; activation evicts every other bucket.
const CurrentGeneration = "summa-cache-v1"

// DefaultShell is the application shell pre-populated at install time.
var DefaultShell = []string{
	"/",
	"/static/app.css",
	"/static/app.js",
	"/static/icon-192.png",
	"/static/icon-512.png",
	"/manifest.webmanifest",
}

const offlineBody = `{"error":"offline: no cached data available"}`

// Config wires a Worker.
type Config struct {
	Generation string   // bucket name; defaults to CurrentGeneration
	Shell      []string // shell manifest; defaults to DefaultShell
	APIPrefix  string   // paths handled network-first; defaults to /api/
	Upstream   *url.URL // origin server
	Storage    Storage
	Client     *http.Client // defaults to a 30s-timeout client
}

// Worker intercepts requests and applies the two caching policies:
// network-first for API paths, cache-first for everything else. Only
// GETs are handled; other methods pass through to the upstream.
type Worker struct {
	generation string
	shell      []string
	apiPrefix  string
	upstream   *url.URL
	storage    Storage
	client     *http.Client
}

func NewWorker(cfg Config) *Worker {
	if cfg.Generation == "" {
		cfg.Generation = CurrentGeneration
	}
	if len(cfg.Shell) == 0 {
		cfg.Shell = DefaultShell
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/"
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Worker{
		generation: cfg.Generation,
		shell:      cfg.Shell,
		apiPrefix:  cfg.APIPrefix,
		upstream:   cfg.Upstream,
		storage:    cfg.Storage,
		client:     cfg.Client,
	}
}

// Generation returns the active bucket name.
func (w *Worker) Generation() string {
	return w.generation
}

// Install seeds the generation's bucket with every shell asset. The
// population is all-or-nothing: any fetch failure or non-2xx response
// aborts the install and discards the partially-seeded bucket, leaving
// the previous generation in control.
func (w *Worker) Install(ctx context.Context) error {
	bucket, err := w.storage.Open(ctx, w.generation)
	if err != nil {
		return fmt.Errorf("open bucket %s: %w", w.generation, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, path := range w.shell {
		g.Go(func() error {
			entry, status, err := w.fetchUpstream(gctx, path)
			if err != nil {
				return fmt.Errorf("fetch shell asset %s: %w", path, err)
			}
			if status < 200 || status > 299 {
				return fmt.Errorf("fetch shell asset %s: status %d", path, status)
			}
			return bucket.Put(gctx, Key(http.MethodGet, path), entry)
		})
	}

	if err := g.Wait(); err != nil {
		if _, derr := w.storage.Delete(ctx, w.generation); derr != nil {
			slog.ErrorContext(ctx, "Failed to discard partial install", "bucket", w.generation, "error", derr)
		}
		return fmt.Errorf("install %s: %w", w.generation, err)
	}

	slog.InfoContext(ctx, "Install complete", "bucket", w.generation, "assets", len(w.shell))
	return nil
}

// Activate deletes every bucket whose name differs from the current
// generation. After it returns, requests route through this worker;
// at most one bucket name is current.
func (w *Worker) Activate(ctx context.Context) error {
	names, err := w.storage.Names(ctx)
	if err != nil {
		return fmt.Errorf("list buckets: %w", err)
	}

	for _, name := range names {
		if name == w.generation {
			continue
		}
		if _, err := w.storage.Delete(ctx, name); err != nil {
			return fmt.Errorf("evict stale bucket %s: %w", name, err)
		}
		slog.InfoContext(ctx, "Evicted stale cache bucket", "bucket", name)
	}

	slog.InfoContext(ctx, "Activated cache generation", "bucket", w.generation)
	return nil
}

// ServeHTTP routes one intercepted request through the per-request
// state machine.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.passThrough(rw, r)
		return
	}

	bucket, err := w.storage.Open(r.Context(), w.generation)
	if err != nil {
		slog.ErrorContext(r.Context(), "Cache bucket unavailable", "error", err)
		w.passThrough(rw, r)
		return
	}

	if strings.HasPrefix(r.URL.Path, w.apiPrefix) {
		w.networkFirst(rw, r, bucket)
		return
	}
	w.cacheFirst(rw, r, bucket)
}

// networkFirst: fetch; on success store a copy then respond with the
// live response; on network failure fall back to the cache, and with no
// cached entry synthesize a 503 JSON error.
func (w *Worker) networkFirst(rw http.ResponseWriter, r *http.Request, bucket Bucket) {
	ctx := r.Context()
	key := Key(r.Method, r.URL.RequestURI())

	entry, status, err := w.fetchUpstream(ctx, r.URL.RequestURI())
	if err == nil {
		if status >= 200 && status <= 299 {
			// Cache write happens before the response goes out.
			if perr := bucket.Put(ctx, key, entry); perr != nil {
				slog.WarnContext(ctx, "Cache write failed", "key", key, "error", perr)
			}
		}
		writeEntry(rw, entry)
		return
	}

	slog.WarnContext(ctx, "Network fetch failed, trying cache", "key", key, "error", err)
	if cached, ok, merr := bucket.Match(ctx, key); merr == nil && ok {
		writeEntry(rw, cached)
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusServiceUnavailable)
	_, _ = rw.Write([]byte(offlineBody))
}

// cacheFirst: respond from the cache when possible; otherwise fetch and
// store. On network failure, navigation requests get the cached root
// document as an offline shell; everything else propagates the failure.
func (w *Worker) cacheFirst(rw http.ResponseWriter, r *http.Request, bucket Bucket) {
	ctx := r.Context()
	key := Key(r.Method, r.URL.RequestURI())

	if cached, ok, err := bucket.Match(ctx, key); err == nil && ok {
		writeEntry(rw, cached)
		return
	}

	entry, status, err := w.fetchUpstream(ctx, r.URL.RequestURI())
	if err == nil {
		if status >= 200 && status <= 299 {
			if perr := bucket.Put(ctx, key, entry); perr != nil {
				slog.WarnContext(ctx, "Cache write failed", "key", key, "error", perr)
			}
		}
		writeEntry(rw, entry)
		return
	}

	if isNavigation(r) {
		if shell, ok, merr := bucket.Match(ctx, Key(http.MethodGet, "/")); merr == nil && ok {
			writeEntry(rw, shell)
			return
		}
	}

	slog.WarnContext(ctx, "Upstream unreachable", "key", key, "error", err)
	http.Error(rw, "upstream unreachable", http.StatusBadGateway)
}

// fetchUpstream performs the network leg and drains the body once, so
// the stored entry and the client response are independent copies.
func (w *Worker) fetchUpstream(ctx context.Context, requestURI string) (*Entry, int, error) {
	ref, err := url.Parse(requestURI)
	if err != nil {
		return nil, 0, err
	}
	target := w.upstream.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}

	entry := &Entry{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now(),
	}
	return entry, resp.StatusCode, nil
}

// passThrough forwards non-GET requests untouched.
func (w *Worker) passThrough(rw http.ResponseWriter, r *http.Request) {
	target := w.upstream.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		http.Error(rw, "bad request", http.StatusBadRequest)
		return
	}
	req.Header = r.Header.Clone()

	resp, err := w.client.Do(req)
	if err != nil {
		http.Error(rw, "upstream unreachable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyHeader(rw.Header(), resp.Header)
	rw.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(rw, resp.Body)
}

func writeEntry(rw http.ResponseWriter, e *Entry) {
	copyHeader(rw.Header(), e.Header)
	rw.WriteHeader(e.Status)
	_, _ = rw.Write(e.Body)
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

// isNavigation detects page navigations, which fall back to the cached
// root document when the network is gone.
func isNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
