// Package server exposes a mirror directory as a Nix binary cache over HTTP.
//
// The served tree is the one produced by a mirror run, so a mirror can be
// used directly as a substituter:
//
//	nix-store --option substituters http://localhost:8080 ...
//
// Scratch files left by an interrupted run are hidden, and requests never
// resolve outside the mirror root.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/nixmirror/pkg/mirror"
	"github.com/matzehuels/nixmirror/pkg/narinfo"
)

// Defaults for Options.
const (
	DefaultAddr     = ":8080"
	DefaultStoreDir = "/nix/store"
	DefaultPriority = 40
)

const shutdownTimeout = 5 * time.Second

// Options configures a Server.
type Options struct {
	Addr     string      // Listen address (default: ":8080")
	StoreDir string      // Store directory announced in nix-cache-info (default: "/nix/store")
	Priority int         // Substituter priority announced in nix-cache-info (default: 40)
	Logger   *log.Logger // Request log at debug level (optional)
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.StoreDir == "" {
		opts.StoreDir = DefaultStoreDir
	}
	if opts.Priority == 0 {
		opts.Priority = DefaultPriority
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return opts
}

// Server serves one mirror directory.
type Server struct {
	layout mirror.Layout
	opts   Options
	router chi.Router
}

// New creates a Server for the mirror at layout.
func New(layout mirror.Layout, opts Options) *Server {
	s := &Server{layout: layout, opts: opts.WithDefaults()}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Get("/nix-cache-info", s.cacheInfo)
	r.Get("/*", s.serveFile)
	r.Head("/*", s.serveFile)
	s.router = r
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("serving mirror", "root", s.layout.Root(), "addr", s.opts.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) cacheInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/x-nix-cache-info")
	fmt.Fprintf(w, "StoreDir: %s\nWantMassQuery: 1\nPriority: %d\n", s.opts.StoreDir, s.opts.Priority)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if hidden(rel) {
		http.NotFound(w, r)
		return
	}
	p, err := s.layout.ContentPath(rel)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(p)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil || st.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", contentType(rel))
	http.ServeContent(w, r, st.Name(), st.ModTime(), f)
}

// hidden reports whether any segment of rel is a dot file, which covers the
// scratch files of in-progress downloads.
func hidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func contentType(rel string) string {
	switch {
	case strings.HasSuffix(rel, narinfo.Extension):
		return "text/x-nix-narinfo"
	case strings.Contains(path.Base(rel), ".nar"):
		return "application/x-nix-nar"
	default:
		return "application/octet-stream"
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.opts.Logger.Debug("request", "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "bytes", ww.BytesWritten(), "elapsed", time.Since(start).Round(time.Microsecond))
	})
}
