package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/adapta/internal/chat"
	"github.com/MikeSquared-Agency/adapta/internal/events"
	"github.com/MikeSquared-Agency/adapta/internal/inference"
	"github.com/MikeSquared-Agency/adapta/internal/metrics"
	"github.com/MikeSquared-Agency/adapta/internal/web"
)

type Config struct {
	Port          int
	UserHeader    string
	DefaultUser   string
	ExportTempDir string
}

// HealthChecker probes the inference service.
type HealthChecker interface {
	Health(ctx context.Context) (inference.Health, error)
}

type Server struct {
	router   *chi.Mux
	cfg      Config
	chat     *chat.Service
	climate  HealthChecker
	events   events.Publisher
	metrics  *metrics.Metrics
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewServer(cfg Config, svc *chat.Service, climate HealthChecker, pub events.Publisher, logger *slog.Logger) *Server {
	if cfg.UserHeader == "" {
		cfg.UserHeader = "X-User-Id"
	}
	if pub == nil {
		pub = events.Discard{}
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		cfg:      cfg,
		chat:     svc,
		climate:  climate,
		events:   pub,
		metrics:  metrics.NewMetrics(),
		validate: newValidator(),
		logger:   logger,
		now:      time.Now,
	}

	router.Get("/", http.RedirectHandler("/climate", http.StatusFound).ServeHTTP)
	router.Get("/health", s.health)
	router.Handle("/metrics", promhttp.Handler())
	router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(web.Static()))))

	router.Group(func(r chi.Router) {
		r.Use(s.identity)

		r.Get("/climate", s.index)
		r.Get("/climate/health", s.climateHealth)
		r.Post("/climate/ask", s.ask)
		r.Post("/climate/conversation/new", s.newConversation)
		r.Get("/climate/conversation/{id}", s.getConversation)
		r.Delete("/climate/conversation/{id}", s.deleteConversation)
		r.Get("/climate/conversations", s.listConversations)

		r.Post("/export/docx", s.exportDOCX)
		r.Post("/export/excel", s.exportXLSX)
		r.Post("/export/check-tables", s.checkTables)
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.logger.Info("API server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(web.Index)
}
