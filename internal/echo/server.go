// Package echo serves a local websocket endpoint that writes every frame
// back to its sender. It backs `wirechat echo` and client smoke tests.
package echo

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/utils"
)

// Config holds echo server settings.
type Config struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	// MaxMessageBytes caps inbound frame size; zero keeps the library default.
	MaxMessageBytes int64
}

// Server is an echo websocket server.
type Server struct {
	cfg    Config
	log    *zerolog.Logger
	server *stdhttp.Server

	mu sync.Mutex
	ln net.Listener
}

// NewServer builds the server; call Start to listen.
func NewServer(cfg Config, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}

	s := &Server{cfg: cfg, log: logger}
	s.server = &stdhttp.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	return s
}

// Handler returns the gin engine with /health and /ws routes.
func (s *Server) Handler() stdhttp.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(s.log))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	router.GET("/ws", func(c *gin.Context) {
		s.serveWS(c.Writer, c.Request)
	})
	return router
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("echo server listening")
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			s.log.Error().Err(err).Msg("echo server stopped")
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.cfg.Addr
}

// URL returns the websocket endpoint URL.
func (s *Server) URL() string {
	return "ws://" + s.Addr() + "/ws"
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown echo server: %w", err)
	}
	return nil
}

func (s *Server) serveWS(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if s.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}

	id := utils.NewID()
	s.log.Debug().Str("conn_id", id).Msg("echo connection open")

	err = s.echo(r.Context(), conn)

	status := websocket.CloseStatus(err)
	switch {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		s.log.Debug().Str("conn_id", id).Msg("echo connection closed")
		conn.Close(websocket.StatusNormalClosure, "closing")
	case errors.Is(err, context.Canceled):
	default:
		s.log.Warn().Err(err).Str("conn_id", id).Msg("echo connection closed with error")
	}
}

func (s *Server) echo(ctx context.Context, conn *websocket.Conn) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if err := conn.Write(ctx, typ, data); err != nil {
			return err
		}
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}
