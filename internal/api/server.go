// Package api exposes sources, run triggers, schedule and run history over
// HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))

	r.GET("/healthz", h.GetHealth)
	r.GET("/sources", h.ListSources)
	r.POST("/sources", h.AddSource)
	r.PUT("/sources", h.UpdateSource)
	r.DELETE("/sources", h.RemoveSource)
	r.POST("/sync", h.SyncAll)
	r.POST("/sync/source", h.SyncSource)
	r.GET("/cron", h.GetCron)
	r.GET("/logs", h.GetLogs)
	return r
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

func NewServer(addr string, h *Handler, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(h),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.With("component", "api"),
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("api stopped")
	return nil
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
