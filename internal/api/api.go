// Package api provides HTTP handlers and the main API server logic for PrintFlow.
//
// It exposes RESTful endpoints for driving intake flows, managing stored
// records, and inspecting the notification dead-letter log. The API
// integrates with the flow engine and store modules.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/PrintFlow/internal/flow"
	"github.com/BTreeMap/PrintFlow/internal/store"
)

// Default server configuration constants
const (
	// DefaultAddr is the default listen address for the API server.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Server hosts the PrintFlow HTTP API.
type Server struct {
	engine *flow.Engine
	st     store.Store
	outbox store.OutboxRepo
	addr   string

	httpServer *http.Server
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address for the API server.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// NewServer creates an API server over the given engine and store.
func NewServer(engine *flow.Engine, st store.Store, outbox store.OutboxRepo, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	s := &Server{
		engine: engine,
		st:     st,
		outbox: outbox,
		addr:   cfg.Addr,
	}
	slog.Debug("API server created", "addr", s.addr)
	return s
}

// Routes returns the server's HTTP handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/flow/start", s.flowStartHandler)
	mux.HandleFunc("/api/flow/step", s.flowStepHandler)
	mux.HandleFunc("/api/flow/cancel", s.flowCancelHandler)
	mux.HandleFunc("/api/rules", s.rulesHandler)
	mux.HandleFunc("/api/services", s.servicesHandler)
	mux.HandleFunc("/api/orders", s.ordersHandler)
	mux.HandleFunc("/api/orders/", s.orderByIDHandler)
	mux.HandleFunc("/api/schedules", s.schedulesHandler)
	mux.HandleFunc("/api/schedules/", s.scheduleByIDHandler)
	mux.HandleFunc("/api/messages", s.messagesHandler)
	mux.HandleFunc("/api/messages/", s.messageByIDHandler)
	mux.HandleFunc("/api/notifications/dead", s.deadNotificationsHandler)
	mux.HandleFunc("/api/status", s.statusHandler)
	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		slog.Error("API server failed", "error", err)
		return err
	case <-ctx.Done():
		slog.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
