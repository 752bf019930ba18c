// Package server exposes a running scan over HTTP.
//
// Routes:
//
//	GET /healthz            build information
//	GET /progress           the driver's current ProgressSnapshot
//	GET /artifacts          names of the saved artifacts
//	GET /artifacts/{file}   one saved artifact
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/depscan/pkg/buildinfo"
	"github.com/matzehuels/depscan/pkg/scan"
)

// ProgressSource reports scan progress.
type ProgressSource interface {
	Snapshot() scan.ProgressSnapshot
}

// Options configures a Server.
type Options struct {
	Addr     string
	DataDir  string
	Progress ProgressSource
	Logger   *log.Logger
}

// Server is the status server.
type Server struct {
	opts   Options
	router chi.Router
}

// New builds the router for opts.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	s := &Server{opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Get("/healthz", s.health)
	r.Get("/progress", s.progress)
	r.Route("/artifacts", func(r chi.Router) {
		r.Get("/", s.listArtifacts)
		r.Get("/{file}", s.artifact)
	})
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.opts.Logger.Info("status server listening", "addr", s.opts.Addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.opts.Logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "elapsed", time.Since(start))
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Get()})
}

func (s *Server) progress(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Progress == nil {
		writeError(w, http.StatusServiceUnavailable, "no scan attached")
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Progress.Snapshot())
}

func (s *Server) listArtifacts(w http.ResponseWriter, _ *http.Request) {
	entries, err := os.ReadDir(s.opts.DataDir)
	if err != nil {
		writeError(w, http.StatusNotFound, "no artifacts")
		return
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) artifact(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	if name != filepath.Base(name) || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
		writeError(w, http.StatusBadRequest, "invalid artifact name")
		return
	}
	data, err := os.ReadFile(filepath.Join(s.opts.DataDir, name))
	if err != nil {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
