package http

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mtzview/supervisorio/services/api/config"
	"github.com/mtzview/supervisorio/services/api/ingest"
	"github.com/mtzview/supervisorio/services/api/snapshot"
	"github.com/mtzview/supervisorio/services/api/stream"
)

// Deps are the components the handlers operate on. Queries may be nil when
// the service runs without a database.
type Deps struct {
	Pipeline  *ingest.Pipeline
	Snapshots *snapshot.Store
	Registry  *stream.Registry
	Queries   Queries
}

// Server bundles router and dependencies for the REST API.
type Server struct {
	cfg      config.Config
	deps     Deps
	logger   *zap.Logger
	engine   *gin.Engine
	upgrader websocket.Upgrader
	started  time.Time
}

// New constructs a server with routes and middleware.
func New(cfg config.Config, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	engine.Use(ginzap.RecoveryWithZap(logger, true))
	engine.Use(cors.New(cors.Config{
		AllowOrigins:  splitOrigins(cfg.CORSOrigin),
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	server := &Server{
		cfg:     cfg,
		deps:    deps,
		logger:  logger,
		engine:  engine,
		started: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	server.registerRoutes()
	return server
}

func splitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown. No write timeout is
// set on the server because live streams stay open indefinitely; each stream
// write carries its own deadline instead.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		// streams never finish on their own; drop them before draining
		s.deps.Registry.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.registerAPIRoutes()

	if s.cfg.StaticDir != "" {
		s.engine.NoRoute(s.serveSPA)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"uptime":      time.Since(s.started).Seconds(),
		"environment": s.cfg.Environment,
		"viewers":     s.deps.Registry.Count(),
	})
}

// serveSPA serves built frontend assets and falls back to index.html for
// client-side routes. Unknown /api paths stay 404.
func (s *Server) serveSPA(c *gin.Context) {
	if c.Request.Method != http.MethodGet || strings.HasPrefix(c.Request.URL.Path, "/api/") {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	root := filepath.Clean(s.cfg.StaticDir)
	path := filepath.Join(root, filepath.FromSlash(filepath.Clean("/"+c.Request.URL.Path)))
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		c.File(path)
		return
	}
	c.File(filepath.Join(root, "index.html"))
}
