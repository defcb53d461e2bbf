// Package server implements a reference backend for the REST endpoints the
// deep-save client speaks, on top of any [store.Store].
//
// Routes (relative to MountPath):
//
//	POST /classes/{className}             create, 201 {"objectId","createdAt"}
//	PUT  /classes/{className}/{objectId}  update, 200 {"objectId","updatedAt"}
//	GET  /classes/{className}/{objectId}  fetch
//	POST /batch                           up to MaxBatch sub-requests
//	GET  /health
//
// Errors are returned as {"code": n, "error": "..."} with the codes in
// package rest.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/deepsave/pkg/store"
	"github.com/matzehuels/deepsave/pkg/transport/rest"
)

// DefaultMaxBatch is the largest /batch request accepted by default.
const DefaultMaxBatch = 50

const shutdownTimeout = 5 * time.Second

// Config configures a Server.
type Config struct {
	// MountPath prefixes every route, e.g. "/parse". Empty mounts at the root.
	MountPath string
	// AppID, when set, must match the X-Parse-Application-Id header.
	AppID    string
	MaxBatch int
	Logger   *log.Logger
}

func (c *Config) setDefaults() {
	if c.MaxBatch <= 0 {
		c.MaxBatch = DefaultMaxBatch
	}
	if c.Logger == nil {
		c.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// Server serves a store over HTTP.
type Server struct {
	store  store.Store
	cfg    Config
	router chi.Router
}

// New creates a Server for st.
func New(st store.Store, cfg Config) *Server {
	cfg.setDefaults()
	s := &Server{store: st, cfg: cfg}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	api := chi.NewRouter()
	api.Use(s.requireAppID)
	api.Route("/classes/{className}", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/{objectId}", s.handleGet)
		r.Put("/{objectId}", s.handleUpdate)
	})
	api.Post("/batch", s.handleBatch)
	api.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, rest.CodeObjectNotFound, "no route for "+r.URL.Path)
	})

	root := chi.NewRouter()
	root.Use(middleware.RequestID)
	root.Use(middleware.Recoverer)
	root.Use(s.logRequests)
	root.Get("/health", s.handleHealth)
	if mount := strings.TrimSuffix(s.cfg.MountPath, "/"); mount == "" {
		root.Mount("/", api)
	} else {
		root.Get(mount+"/health", s.handleHealth)
		root.Mount(mount, api)
	}
	return root
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.cfg.Logger.Info("listening", "addr", addr, "mount", s.cfg.MountPath)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// =============================================================================
// Middleware
// =============================================================================

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.cfg.Logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) requireAppID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AppID != "" && r.Header.Get(headerAppID) != s.cfg.AppID {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
