// Package server exposes replays over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rustyeddy/tradereplay/internal/logger"
	"github.com/rustyeddy/tradereplay/journal"
	"github.com/rustyeddy/tradereplay/market"
)

type Config struct {
	Addr string
	// Source serves bars for run requests.
	Source market.Source
	// Journal is optional; without it runs are not persisted and the
	// runs endpoints answer 503.
	Journal *journal.SQLite
}

type Server struct {
	addr    string
	source  market.Source
	journal *journal.SQLite
	router  *gin.Engine
}

func New(cfg Config) (*Server, error) {
	if cfg.Source == nil {
		return nil, errors.New("server: source is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:    cfg.Addr,
		source:  cfg.Source,
		journal: cfg.Journal,
		router:  router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	api := s.router.Group("/api/replay")
	api.POST("/run", s.handleRun)
	api.POST("/compare", s.handleCompare)
	api.GET("/agents", s.handleAgents)
	api.GET("/runs", s.handleRunList)
	api.GET("/runs/:id", s.handleRunDetail)
	api.GET("/runs/:id/trades", s.handleRunTrades)
	api.GET("/runs/:id/equity", s.handleRunEquity)
}

// Handler returns the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("[server] listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
