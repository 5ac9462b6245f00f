package http

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"summa/internal/cache"
	"summa/internal/core"
	applog "summa/internal/log"
	"summa/internal/middleware/ratelimit"
	"summa/internal/middleware/security"
	"summa/internal/middleware/trace"
	"summa/internal/services"
	"summa/internal/storage"
	appweb "summa/web"
)

// Options tunes the server's response caching.
type Options struct {
	CacheEntries int
	CacheTTL     time.Duration
}

func (o *Options) fill() {
	if o.CacheEntries <= 0 {
		o.CacheEntries = 256
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 5 * time.Minute
	}
}

// Server serves the invoice REST API and the static application shell.
// Read endpoints go through LRU caches keyed by query string; any
// mutation flushes them.
type Server struct {
	http.Server
	repo     *storage.SQLiteRepository
	svc      *services.InvoiceService
	limiter  *ratelimit.Limiter
	headers  *security.HeadersMiddleware
	detector *security.Detector

	listCache  *cache.LRUCache[[]core.Invoice]
	statsCache *cache.LRUCache[core.Stats]
	facetCache *cache.LRUCache[[]string]
	caches     *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, repo *storage.SQLiteRepository, svc *services.InvoiceService, opts Options) *Server {
	opts.fill()
	mux := http.NewServeMux()

	s := &Server{
		repo:       repo,
		svc:        svc,
		limiter:    ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		headers:    security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		detector:   security.NewDetector(),
		listCache:  cache.NewLRUCache[[]core.Invoice](opts.CacheEntries, opts.CacheTTL),
		statsCache: cache.NewLRUCache[core.Stats](opts.CacheEntries, opts.CacheTTL),
		facetCache: cache.NewLRUCache[[]string](8, opts.CacheTTL),
		caches:     cache.NewManager(),
	}
	s.caches.Register(s.listCache)
	s.caches.Register(s.statsCache)
	s.caches.Register(s.facetCache)
	s.caches.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /api/invoices", s.handleListInvoices)
	mux.HandleFunc("POST /api/invoices", s.handleCreateInvoice)
	mux.HandleFunc("PUT /api/invoices/{id}", s.handleUpdateInvoice)
	mux.HandleFunc("DELETE /api/invoices/{id}", s.handleDeleteInvoice)
	mux.HandleFunc("POST /api/invoices/import", s.handleImport)
	mux.HandleFunc("PUT /api/invoices/bulk-update", s.handleBulkUpdate)
	mux.HandleFunc("POST /api/invoices/bulk-delete", s.handleBulkDelete)
	mux.HandleFunc("GET /api/stores", s.handleStores)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)
	s.mountShell(mux)

	s.Server = http.Server{
		Addr:    addr,
		Handler: s.headers.Middleware(s.withObservability(mux)),
	}
	return s
}

// mountShell serves the embedded single-page shell and its assets.
func (s *Server) mountShell(mux *http.ServeMux) {
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("GET /manifest.webmanifest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/manifest+json")
		serveEmbedded(w, r, "manifest.webmanifest")
	})
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		serveEmbedded(w, r, "index.html")
	})
}

func serveEmbedded(w http.ResponseWriter, r *http.Request, name string) {
	data, err := appweb.ShellFS.ReadFile(name)
	if err != nil {
		slog.ErrorContext(r.Context(), "Embedded file missing", "name", name, "error", err)
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	_, _ = w.Write(data)
}

// withObservability adds request IDs, request logging, and rate
// limiting of mutations.
func (s *Server) withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ip := s.detector.ExtractClientIP(r)
		requestID := trace.GenerateRequestID()

		if s.detector.IsSuspicious(r) {
			slog.WarnContext(r.Context(), "Suspicious request",
				applog.FieldClientIP, ip,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
		}

		ctx := trace.WithRequestID(r.Context(), requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			applog.FieldRequestID, requestID,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldClientIP, ip,
			applog.FieldUserAgent, r.Header.Get("User-Agent"))

		if r.Method != http.MethodGet && !s.limiter.Allow(ip) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				applog.FieldClientIP, ip,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		slog.InfoContext(ctx, "Request completed",
			applog.FieldRequestID, requestID,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, rw.statusCode,
			applog.FieldDuration, time.Since(start).Milliseconds(),
			applog.FieldClientIP, ip)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// invalidateCaches drops cached read results after a mutation.
func (s *Server) invalidateCaches() {
	s.listCache.Flush()
	s.statsCache.Flush()
	s.facetCache.Flush()
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
