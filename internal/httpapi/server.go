// Package httpapi is the dashboard's HTTP surface: REST endpoints, the SSE
// stream, and the middleware chain.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/plandash/plandash/internal/hooks"
	"github.com/plandash/plandash/internal/otel"
	"github.com/plandash/plandash/internal/plan"
	"github.com/plandash/plandash/internal/session"
	"github.com/plandash/plandash/internal/watch"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// defaultMaxRequestBodyBytes is the default limit for request body size (1 MiB) to prevent OOM.
const defaultMaxRequestBodyBytes = 1 << 20

// limitBody wraps r.Body with http.MaxBytesReader so handlers cannot read more than maxBytes.
func limitBody(w http.ResponseWriter, r *http.Request, maxBytes int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
}

// bodyLimitMiddleware limits request body size for POST, PUT, PATCH to prevent OOM.
func bodyLimitMiddleware(maxBytes int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			limitBody(w, r, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware sets CORS headers for dev mode (frontend dev server on a different origin).
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServerOptions configures the HTTP server (directories, listen addr, API key, metrics).
type ServerOptions struct {
	AgentDir       string
	PlanDir        string
	Addr           string
	Dev            bool
	APIKey         string        // if set, require X-API-Key header or query api_key
	StaleAfter     time.Duration // override for the session staleness window
	MetricsHandler http.Handler  // if set, used for /metrics (OTel Prometheus handler)
	UseOtelHTTP    bool          // if true, wrap handler with otelhttp for request metrics
}

// App holds the HTTP server, SSE hub, the plan/session/hook services, and
// the filesystem watcher.
type App struct {
	Server   *http.Server
	Hub      *SSEHub
	Plans    *plan.Service
	Sessions *session.Service
	Hooks    *hooks.Service
	Watcher  *watch.Watcher

	timing *timingRegistry
}

// NewApp creates the HTTP app (server, hub, services, watcher) and registers
// all routes. Call RunWatcher to start change propagation.
func NewApp(opts ServerOptions) *App {
	hub := NewSSEHub()
	plans := plan.NewService(opts.PlanDir)
	sessions := session.NewService(opts.AgentDir)
	sessions.SetStaleAfter(opts.StaleAfter)
	hookSvc := hooks.NewService(opts.AgentDir, plans)
	watcher := watch.New(watch.Options{AgentDir: opts.AgentDir, PlanDir: opts.PlanDir})
	timing := newTimingRegistry()

	app := &App{
		Hub:      hub,
		Plans:    plans,
		Sessions: sessions,
		Hooks:    hookSvc,
		Watcher:  watcher,
		timing:   timing,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/health", app.handleHealth)
	mux.HandleFunc("/events", hub.Handler())
	mux.HandleFunc("/state", app.handleState)
	mux.HandleFunc("/state/override", app.handleOverride)
	mux.HandleFunc("/insights/plan", app.handlePlanInsights)
	mux.HandleFunc("/insights/live", app.handleLiveInsights)
	mux.HandleFunc("/sessions", app.handleSessions)
	mux.HandleFunc("/sessions/", app.handleSessionSubtree)
	mux.HandleFunc("/hook", app.handleHookIngest)
	mux.HandleFunc("/hook/events", app.handleHookEvents)

	if opts.MetricsHandler != nil {
		mux.Handle("/metrics", opts.MetricsHandler)
	} else {
		mux.HandleFunc("/metrics", app.handlePlainMetrics)
	}

	mux.HandleFunc("/debug/timing", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"routes": timing.report()})
	})

	var handler http.Handler = mux
	handler = bodyLimitMiddleware(defaultMaxRequestBodyBytes, handler)
	if opts.Dev {
		handler = corsMiddleware(handler)
	}
	if opts.APIKey != "" {
		handler = apiKeyMiddleware(opts.APIKey, handler)
	}
	handler = timingMiddleware(timing, handler)
	handler = requestLogMiddleware(handler)
	if opts.UseOtelHTTP {
		handler = otelhttp.NewHandler(handler, "plandash")
	}

	app.Server = &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // SSE streams stay open indefinitely
		IdleTimeout:       60 * time.Second,
	}
	return app
}

// RunWatcher consumes debounced filesystem events until ctx is done:
// invalidate the affected cache, then notify stream subscribers. Run in its
// own goroutine.
func (a *App) RunWatcher(ctx context.Context) {
	defer func() { _ = a.Watcher.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-a.Watcher.Events():
			if !ok {
				return
			}
			otel.RecordWatchEvent(ctx, ev.Type)
			if ev.Type == watch.TypePlan {
				a.Plans.Invalidate()
			} else {
				a.Sessions.Invalidate()
			}
			a.Hub.PublishUpdate(ev.Type)
		}
	}
}

// TaskCounts reports derived plan task totals for the metrics gauge.
func (a *App) TaskCounts() (ready, inProgress, done, failed, blocked int64) {
	snap, _ := a.Plans.Snapshot()
	s := snap.Summary
	return int64(s.Ready), int64(s.InProgress), int64(s.Done), int64(s.Failed), int64(s.Blocked)
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"ok":             true,
		"planConfigured": a.Plans.Configured(),
		"hooksInstalled": a.Hooks.HooksInstalled(),
		"autoCommit":     a.Hooks.AutoCommit(),
	})
}

// handlePlainMetrics is the fallback when the OTel provider failed to init.
func (a *App) handlePlainMetrics(w http.ResponseWriter, r *http.Request) {
	snap, _ := a.Plans.Snapshot()
	s := snap.Summary
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	lines := []struct {
		status string
		n      int
	}{
		{"ready", s.Ready}, {"in_progress", s.InProgress},
		{"done", s.Done}, {"failed", s.Failed}, {"blocked", s.Blocked},
	}
	_, _ = w.Write([]byte("# TYPE plandash_tasks_total gauge\n"))
	for _, l := range lines {
		_, _ = w.Write([]byte("plandash_tasks_total{status=\"" + l.status + "\"} " + strconv.Itoa(l.n) + "\n"))
	}
}

// responseRecorder captures status code for logging and forwards Flusher if supported.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func apiKeyMiddleware(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/health" || path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}
		if key != apiKey {
			writeJSONError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		if strings.HasPrefix(req.URL.Path, "/events") {
			// Stream closes log their full lifetime; too noisy per-request.
			return
		}
		slog.Info("request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeJSONError sends a JSON body {"error": "message"} with the given status code.
func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}
