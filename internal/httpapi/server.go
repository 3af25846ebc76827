// Package httpapi exposes the chat service over HTTP: join/part/send/recv/who
// plus health and metrics. recv is a long-poll endpoint; the server holds the
// request open until the channel delivers new messages or the waiter reaper
// times it out.
package httpapi

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/parley/chat-server/internal/channel"
	"github.com/parley/chat-server/internal/command"
	"github.com/parley/chat-server/internal/metrics"
	"github.com/parley/chat-server/internal/ratelimit"
	"github.com/parley/chat-server/internal/session"
)

// Config holds tunable parameters for the HTTP server.
type Config struct {
	ListenAddr   string        // address to listen on, e.g. ":8001"
	ReadTimeout  time.Duration // timeout for reading the request
	WriteTimeout time.Duration // must exceed the long-poll grace period
}

// DefaultConfig returns production defaults. WriteTimeout leaves headroom
// beyond the 30-second waiter TTL so long-polls resolve before the
// connection is cut.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":8001",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 45 * time.Second,
	}
}

// Server wires the chat core to its HTTP surface.
type Server struct {
	config   Config
	sessions *session.Registry
	channels *channel.Registry
	commands *command.Dispatcher
	limiter  *ratelimit.Limiter // nil disables rate limiting

	httpServer *http.Server
	startedAt  time.Time
}

// NewServer creates a Server. limiter may be nil to disable rate limiting
// (tests, single-user deployments).
func NewServer(config Config, sessions *session.Registry, channels *channel.Registry, commands *command.Dispatcher, limiter *ratelimit.Limiter) *Server {
	return &Server{
		config:   config,
		sessions: sessions,
		channels: channels,
		commands: commands,
		limiter:  limiter,
	}
}

// Handler builds the route table. Exposed separately from Start so tests can
// drive the full surface without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/join", s.handleJoin)
	mux.HandleFunc("/part", s.handlePart)
	mux.HandleFunc("/send", s.handleSend)
	mux.HandleFunc("/recv", s.handleRecv)
	mux.HandleFunc("/who", s.handleWho)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.startedAt = time.Now()
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	log.Printf("[httpapi] server listening on %s", s.config.ListenAddr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("httpapi: server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting new requests and waits for in-flight ones (parked
// long-polls included) up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
