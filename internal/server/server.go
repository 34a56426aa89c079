// Package server exposes projects and sync over a JSON HTTP API, with a
// websocket stream of reader progress.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/plotsync/plotsync/internal/debug"
	"github.com/plotsync/plotsync/internal/reader"
	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/syncer"
)

const shutdownTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	// CORSOrigins lists allowed browser origins. Empty allows none; "*"
	// allows any.
	CORSOrigins []string

	// ReviewThreshold is passed to imports for the classification report.
	ReviewThreshold float64

	Logger *slog.Logger
}

// Server serves the HTTP API for one store.
type Server struct {
	engine *syncer.Engine
	store  storage.Gateway
	cache  *reader.Cache
	hub    *Hub

	origins         map[string]bool
	anyOrigin       bool
	reviewThreshold float64
	logger          *slog.Logger
}

// New creates a server around engine. The engine's progress callback is
// pointed at the server's websocket hub.
func New(engine *syncer.Engine, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = debug.Logger()
	}
	s := &Server{
		engine:          engine,
		store:           engine.Store,
		cache:           engine.Cache,
		origins:         make(map[string]bool),
		reviewThreshold: opts.ReviewThreshold,
		logger:          logger,
	}
	for _, o := range opts.CORSOrigins {
		if o == "*" {
			s.anyOrigin = true
		}
		s.origins[o] = true
	}
	s.hub = NewHub(logger, s.originAllowed)
	engine.Progress = s.hub.Reporter("", "")
	return s
}

// Hub returns the progress hub.
func (s *Server) Hub() *Hub { return s.hub }

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), s.cors())

	api := r.Group("/api")
	api.GET("/health", s.health)
	api.GET("/ws/progress", func(c *gin.Context) { s.hub.ServeWS(c.Writer, c.Request) })

	projects := api.Group("/projects")
	projects.GET("", s.listProjects)
	projects.POST("/import", s.importProject)
	projects.GET("/:id", s.getProject)
	projects.GET("/:id/sync/preview", s.preview)
	projects.POST("/:id/sync/apply", s.apply)
	projects.POST("/:id/reimport", s.reimport)
	projects.POST("/:id/references/:ref/type", s.reclassify)

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, CodeNotFound, "no route for "+c.Request.Method+" "+c.Request.URL.Path)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		s.logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) originAllowed(origin string) bool {
	return s.anyOrigin || s.origins[origin]
}

func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && s.originAllowed(origin) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
