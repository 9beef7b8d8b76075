package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sheetcal/internal/config"
	appLog "sheetcal/internal/log"
	"sheetcal/internal/model"
	"sheetcal/internal/normalize"
	"sheetcal/internal/reconcile"
	"sheetcal/internal/syncer"
)

const (
	previewCacheSize = 64
	previewCacheTTL  = 30 * time.Second
)

// Server exposes sources, previews, syncs, presets and history over HTTP.
type Server struct {
	cfg      *config.Config
	svc      *syncer.Service
	gatherer prometheus.Gatherer
	mux      *http.ServeMux

	// previews caches pipeline results per source and query so that a UI
	// polling the preview does not refetch the sheet each time.
	previews *expirable.LRU[string, normalize.Result]
}

// NewServer constructs a Server. A nil gatherer serves the default
// Prometheus registry.
func NewServer(cfg *config.Config, svc *syncer.Service, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		cfg:      cfg,
		svc:      svc,
		gatherer: gatherer,
		mux:      http.NewServeMux(),
		previews: expirable.NewLRU[string, normalize.Result](previewCacheSize, nil, previewCacheTTL),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="sheetcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/sources", s.handleSources)
	s.mux.HandleFunc("GET /api/preview", s.handlePreview)
	s.mux.HandleFunc("POST /api/sync", s.handleSync)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("GET /api/presets", s.handleGetPreset)
	s.mux.HandleFunc("PUT /api/presets", s.handlePutPreset)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type sourceDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Tab      string `json:"tab,omitempty"`
	AutoSync bool   `json:"auto_sync"`
	// Preset reports whether a saved mapping exists for the source.
	Preset bool `json:"preset"`
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	srcs := s.svc.Sources()
	out := make([]sourceDTO, 0, len(srcs))
	for _, src := range srcs {
		_, hasPreset, _ := s.svc.Preset(src.ID)
		out = append(out, sourceDTO{
			ID:       src.ID,
			Name:     src.Name,
			Kind:     src.Kind,
			Tab:      src.Tab,
			AutoSync: src.AutoSync,
			Preset:   hasPreset,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type previewResponse struct {
	Source string `json:"source"`
	normalize.Result
	Cached bool `json:"cached"`
}

// handlePreview runs the pipeline for one source.
//
// GET /api/preview?source=ID&header_row=N&person=TEXT
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("source")
	if id == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	var ov normalize.Overrides
	if v := q.Get("header_row"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "header_row must be a non-negative integer")
			return
		}
		ov.HeaderRow = &n
	}
	ov.Person = q.Get("person")

	key := id + "|" + q.Get("header_row") + "|" + ov.Person
	if res, ok := s.previews.Get(key); ok {
		writeJSON(w, http.StatusOK, previewResponse{Source: id, Result: res, Cached: true})
		return
	}

	res, err := s.svc.Preview(r.Context(), id, ov)
	if err != nil {
		s.writeServiceError(w, "preview", id, err)
		return
	}
	s.previews.Add(key, res)
	writeJSON(w, http.StatusOK, previewResponse{Source: id, Result: res})
}

type syncResponse struct {
	Source string `json:"source"`
	model.SyncResult
	Error string `json:"error,omitempty"`
}

// handleSync reconciles one source into the calendar. Nobody can answer a
// prompt over HTTP, so prompts follow the policy query parameter or the
// configured conflict policy; "prompt" declines.
//
// POST /api/sync?source=ID&policy=approve|decline
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("source")
	if id == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	policy := q.Get("policy")
	if policy == "" && s.cfg != nil {
		policy = s.cfg.Calendar.ConflictPolicy
	}
	var confirm reconcile.Confirmer
	switch policy {
	case "approve":
		confirm = reconcile.StaticConfirmer(true)
	case "decline", "prompt", "":
		confirm = reconcile.StaticConfirmer(false)
	default:
		writeError(w, http.StatusBadRequest, "policy must be approve or decline")
		return
	}

	res, err := s.svc.Sync(r.Context(), id, normalize.Overrides{}, confirm)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Partial result: report what was done.
			writeJSON(w, http.StatusServiceUnavailable, syncResponse{Source: id, SyncResult: res, Error: err.Error()})
			return
		}
		s.writeServiceError(w, "sync", id, err)
		return
	}
	s.previews.Purge()
	writeJSON(w, http.StatusOK, syncResponse{Source: id, SyncResult: res})
}

// handleHistory lists sync runs, newest first.
//
// GET /api/history?source=ID&limit=N
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := parseIntDefault(q.Get("limit"), 50)
	hist := s.svc.History(q.Get("source"), limit)
	if hist == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("source")
	p, ok, err := s.svc.Preset(id)
	if err != nil {
		s.writeServiceError(w, "preset", id, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no preset for source")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type presetRequest struct {
	HeaderRow int                 `json:"header_row"`
	Mapping   model.ColumnMapping `json:"mapping"`
}

func (s *Server) handlePutPreset(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("source")

	var req presetRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid preset body: "+err.Error())
		return
	}
	for role := range req.Mapping {
		if !knownRole(role) {
			writeError(w, http.StatusBadRequest, "unknown role "+string(role))
			return
		}
	}

	p, err := s.svc.SavePreset(id, req.HeaderRow, req.Mapping)
	if err != nil {
		s.writeServiceError(w, "preset", id, err)
		return
	}
	s.previews.Purge()
	writeJSON(w, http.StatusOK, p)
}

func knownRole(r model.Role) bool {
	for _, known := range model.Roles {
		if r == known {
			return true
		}
	}
	return false
}

func (s *Server) writeServiceError(w http.ResponseWriter, op, source string, err error) {
	switch {
	case errors.Is(err, syncer.ErrUnknownSource):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, syncer.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	default:
		appLog.Error("api "+op+" failed", err, "source", source)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
