package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"galleria/internal/api/handlers"
	"galleria/internal/config"
	"galleria/internal/gallery"
	"galleria/internal/scan"
	"galleria/internal/scheduler"
	"galleria/internal/store"
	"galleria/internal/thumb"
)

// Server holds the HTTP server and all handler dependencies.
type Server struct {
	addr string
	srv  *http.Server
}

// New wires all routes and returns a Server ready to Run.
func New(
	addr string,
	db *sql.DB,
	st *store.Store,
	cfg *config.Config,
	coord *scan.Coordinator,
	notifier *scan.Notifier,
	provider *gallery.Provider,
	cache *thumb.Cache,
	sched *scheduler.Scheduler,
	version string,
) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	statusH := &handlers.StatusHandler{
		Store: st, Coordinator: coord, Provider: provider, Cache: cache,
		Sched: sched, Version: version,
	}
	scansH := &handlers.ScansHandler{
		DB: db, Coordinator: coord,
		Roots: func() []string { return cfg.MediaRoots },
	}
	galleryH := &handlers.GalleryHandler{Provider: provider}
	mediaH := &handlers.MediaHandler{Store: st}
	foldersH := &handlers.FoldersHandler{Store: st, Provider: provider}
	statsH := &handlers.StatsHandler{Store: st}
	configH := &handlers.ConfigHandler{Cfg: cfg}
	eventsH := &handlers.EventsHandler{Notifier: notifier}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", statusH.ServeHTTP)

		r.Post("/scans", scansH.Create)
		r.Get("/scans", scansH.List)
		r.Get("/scans/{id}", scansH.Get)
		r.Delete("/scans/current", scansH.Cancel)

		r.Get("/gallery", galleryH.List)
		r.Post("/gallery/refresh", galleryH.Refresh)
		r.Get("/gallery/{index}/thumbnail", galleryH.Thumbnail)

		r.Get("/media/{id}/info", mediaH.Info)
		r.Get("/media/{id}/raw", mediaH.Raw)

		r.Get("/folders", foldersH.List)
		r.Delete("/folders", foldersH.Remove)

		r.Get("/stats", statsH.ServeHTTP)

		r.Get("/config", configH.Get)
		r.Patch("/config", configH.Update)

		r.Get("/events", eventsH.ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: r},
	}
}

// Handler returns the wired router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		return s.srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
