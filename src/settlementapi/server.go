package settlementapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xclera/matrix-core/src/matrix"
	"github.com/xclera/matrix-core/src/metrics"
	"go.uber.org/zap"
)

// Server is the HTTP surface of the settlement engine: the two-phase
// prepare/confirm calls plus read-only member and earnings lookups for the
// dashboard.
type Server struct {
	router *chi.Mux
	engine *matrix.Engine
	store  matrix.Store
	logger *zap.Logger
	srv    *http.Server
}

func NewServer(addr string, engine *matrix.Engine, store matrix.Store, logger *zap.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		engine: engine,
		store:  store,
		logger: logger.With(zap.String("component", "settlement_api")),
	}
	s.setupRoutes()
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.Middleware)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/settlements/prepare", s.handlePrepare)
		r.Post("/settlements/confirm", s.handleConfirm)
		r.Post("/settlements/fail", s.handleFail)
		r.Get("/members/{wallet}", s.handleGetMember)
		r.Get("/members/{wallet}/intent", s.handleGetIntent)
		r.Get("/members/{wallet}/earnings", s.handleGetEarnings)
	})
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) ListenAndServe() error {
	s.logger.Info("settlement api listening", zap.String("addr", s.srv.Addr))
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
