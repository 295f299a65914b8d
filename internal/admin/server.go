// Package admin serves the gateway's operational HTTP surface: health,
// readiness, prometheus metrics and a JSON stats view.
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/hl7gate/internal/gateway"
	"github.com/danmuck/hl7gate/internal/node"
	"github.com/danmuck/hl7gate/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

// StatusSource is what the admin surface reads from the gateway.
type StatusSource interface {
	Ready() bool
	Stats() gateway.StatsSnapshot
}

type Server struct {
	ID       string    `json:"id"`
	Addr     string    `json:"addr"`
	Appeared time.Time `json:"appeared"`

	source StatusSource
	router *gin.Engine
}

var _ node.Node = (*Server)(nil)

func Appear(id, addr string, corsOrigins []string, source StatusSource) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		ID:       id,
		Addr:     addr,
		Appeared: time.Now(),
		source:   source,
		router:   r,
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) NodeID() string {
	return s.ID
}

func (s *Server) Kind() string {
	return "admin"
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		ready := s.source != nil && s.source.Ready()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   ready,
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/stats", func(c *gin.Context) {
		if s.source == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "gateway not attached"})
			return
		}
		c.JSON(http.StatusOK, s.source.Stats())
	})
}

// Serve listens on s.Addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("id", s.ID).Str("addr", s.Addr).Msg("admin listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
