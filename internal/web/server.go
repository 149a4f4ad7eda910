// Package web serves live tables over HTTP: a JSON API for every table
// operation, an SSE stream of table events and an HTML fragment view.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/gridedit/internal/clone"
	"github.com/JonMunkholm/gridedit/internal/config"
	"github.com/JonMunkholm/gridedit/internal/sessions"
	"github.com/JonMunkholm/gridedit/internal/validation"
	mw "github.com/JonMunkholm/gridedit/internal/web/middleware"
)

// Deps are the collaborators a Server is built from. Catalog and
// Validators may be nil.
type Deps struct {
	Config     *config.Config
	Sessions   *sessions.Registry
	Catalog    *validation.Catalog
	Validators *validation.Registry
	Logger     *slog.Logger
}

// Server is the gridedit HTTP server.
type Server struct {
	cfg        *config.Config
	sessions   *sessions.Registry
	catalog    *validation.Catalog
	validators *validation.Registry
	cloner     *clone.Cloner
	limiter    *validation.Limiter
	logger     *slog.Logger

	router *chi.Mux
	server *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer wires middleware and routes.
func NewServer(d Deps) *Server {
	if d.Catalog == nil {
		d.Catalog = validation.NewCatalog()
	}
	if d.Validators == nil {
		d.Validators = validation.NewRegistry()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        d.Config,
		sessions:   d.Sessions,
		catalog:    d.Catalog,
		validators: d.Validators,
		logger:     d.Logger,
		router:     chi.NewRouter(),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.cloner = clone.New(clone.Options{
		MaxDepth:      d.Config.Engine.CloneMaxDepth,
		MaxProperties: d.Config.Engine.CloneMaxProperties,
		Diagnostics:   d.Config.Engine.CloneDiagnostics,
		Logger:        d.Logger,
	})
	s.limiter = validation.NewLimiter(d.Config.Engine.AsyncMaxConcurrent, d.Config.Engine.AsyncMaxWait)
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		s.router.Use(mw.RateLimit(s.cfg.Rate.RequestsPerMinute, time.Minute))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	// Event streams are long-lived; every other route gets the request timeout.
	timeout := middleware.Timeout(s.cfg.Server.RequestTimeout)

	s.router.With(timeout, s.withSession).Get("/tables/{id}", s.handleTableView)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(s.cfg.Security.APIKeys, s.cfg.Security.RequireAPIKey))

		r.With(timeout).Post("/tables", s.handleCreateTable)

		r.Route("/tables/{id}", func(r chi.Router) {
			r.Use(s.withSession)
			r.Get("/events", s.handleEvents)

			r.Group(func(r chi.Router) {
				r.Use(timeout)

				r.Get("/", s.handleGetTable)
				r.Delete("/", s.handleDeleteTable)

				r.Get("/data", s.handleGetData)
				r.Put("/data", s.handleSetData)
				r.Get("/json", s.handleGetJSON)
				r.Put("/json", s.handleSetJSON)
				r.Get("/form", s.handleGetForm)
				r.Put("/form", s.handleSetForm)
				r.Get("/validation", s.handleValidateAll)

				r.Post("/rows", s.handleAddRow)
				r.Post("/rows/{index}/move", s.handleMoveRow)
				r.Get("/rows/{index}/field", s.handleGetField)
				r.Post("/rows/{index}/{action}", s.handleRowAction)

				r.Post("/edit/field", s.handleEditField)
				r.Post("/edit/save", s.handleEditSave)
				r.Post("/edit/cancel", s.handleEditCancel)

				r.Get("/selection", s.handleGetSelection)
				r.Post("/selection", s.handleSelection)
				r.Post("/bulk-update", s.handleBulkUpdate)
				r.Post("/bulk-delete", s.handleBulkDelete)

				r.Post("/undo", s.handleUndo)
				r.Post("/redo", s.handleRedo)
				r.Post("/purge", s.handlePurge)
				r.Post("/readonly", s.handleReadOnly)
				r.Post("/history/clear", s.handleClearHistory)
				r.Post("/error/clear", s.handleClearError)
			})
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
		BaseContext:  func(_ net.Listener) context.Context { return s.ctx },
	}

	s.logger.Info("starting server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, ends open event streams and waits
// for in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"tables":     s.sessions.Len(),
		"validators": s.limiter.Status(),
	})
}

func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				h.Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON encodes v as JSON. Encoding errors are logged since headers
// are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
