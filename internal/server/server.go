// Package server exposes editor sessions over HTTP and websockets.
//
// Routes:
//
//	GET    /health                                  liveness
//	GET    /metrics                                 Prometheus metrics
//	GET    /api/kinds                               palette (node kinds in order)
//	GET    /api/sessions                            open sessions
//	POST   /api/sessions                            open a session
//	GET    /api/sessions/:id                        node views and edges
//	DELETE /api/sessions/:id                        close a session
//	GET    /api/sessions/:id/render                 text rendering of the canvas
//	POST   /api/sessions/:id/nodes                  create a node
//	PATCH  /api/sessions/:id/nodes/:node            move and/or edit a node
//	DELETE /api/sessions/:id/nodes/:node            remove a node and its edges
//	POST   /api/sessions/:id/edges                  connect two ports
//	DELETE /api/sessions/:id/edges/:edge            remove an edge
//	GET    /api/sessions/:id/document               export (?format=yaml)
//	PUT    /api/sessions/:id/document               import, replacing the graph
//	POST   /api/sessions/:id/save                   save under a name
//	POST   /api/sessions/:id/restore                restore a saved name
//	POST   /api/sessions/:id/run                    execute the graph
//	GET    /api/sessions/:id/ws                     gesture/edit websocket
//	GET    /api/documents                           saved documents
//	DELETE /api/documents/:name                     delete a saved document
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vk/nodegrid/internal/ctxlog"
	"github.com/vk/nodegrid/internal/session"
)

// Server routes HTTP requests to sessions.
type Server struct {
	sessions *session.Manager
	gatherer prometheus.Gatherer
	validate *validator.Validate
	upgrader websocket.Upgrader
	router   *gin.Engine
}

// Option customises a Server.
type Option func(*Server)

// WithGatherer serves /metrics from g. Without it /metrics is not routed.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithOriginCheck replaces the websocket origin check, which accepts every
// origin by default.
func WithOriginCheck(fn func(r *http.Request) bool) Option {
	return func(s *Server) { s.upgrader.CheckOrigin = fn }
}

// New builds the router. Logging middleware reads the logger from ctx.
func New(ctx context.Context, sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(ctx))
	s.routes(r)
	s.router = r
	return s
}

// Handler is the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "OK\n") })
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.GET("/kinds", s.listKinds)
	api.GET("/documents", s.listDocuments)
	api.DELETE("/documents/:name", s.deleteDocument)

	sessions := api.Group("/sessions")
	sessions.GET("", s.listSessions)
	sessions.POST("", s.openSession)

	one := sessions.Group("/:id", s.loadSession)
	one.GET("", s.getSession)
	one.DELETE("", s.closeSession)
	one.GET("/render", s.renderSession)
	one.POST("/nodes", s.createNode)
	one.PATCH("/nodes/:node", s.updateNode)
	one.DELETE("/nodes/:node", s.removeNode)
	one.POST("/edges", s.createEdge)
	one.DELETE("/edges/:edge", s.removeEdge)
	one.GET("/document", s.exportDocument)
	one.PUT("/document", s.importDocument)
	one.POST("/save", s.saveSession)
	one.POST("/restore", s.restoreSession)
	one.POST("/run", s.runSession)
	one.GET("/ws", s.serveWS)
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	logger := ctxlog.FromContext(ctx)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting.", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	logger.Info("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	logger.Debug("HTTP server shut down gracefully.")
	return nil
}

// requestLogger logs each request through the context logger and puts that
// logger on the request context for handlers.
func requestLogger(ctx context.Context) gin.HandlerFunc {
	base := ctxlog.FromContext(ctx)
	return func(c *gin.Context) {
		start := time.Now()
		c.Request = c.Request.WithContext(ctxlog.WithLogger(c.Request.Context(), base))
		c.Next()
		base.Debug("HTTP request.",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
