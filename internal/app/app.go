package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wirechat-client/internal/chat"
	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/echo"
	"github.com/vovakirdan/wirechat-client/internal/metrics"
	"github.com/vovakirdan/wirechat-client/internal/store"
	"github.com/vovakirdan/wirechat-client/internal/store/sqlite"
	"github.com/vovakirdan/wirechat-client/internal/transport/ws"
	"github.com/vovakirdan/wirechat-client/internal/wsclient"
)

const defaultHistoryLines = 20

var errInputClosed = errors.New("input closed")

// App wires the connection client with its collaborators.
type App struct {
	cfg      config.Config
	log      *zerolog.Logger
	client   *wsclient.Client
	registry *prometheus.Registry
	metrics  *metrics.Collector
	history  store.HistoryStore
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	dialer := &ws.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
		SendQueueSize:    cfg.SendQueueSize,
		ReadLimit:        cfg.MaxMessageBytes,
		Logger:           logger,
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	return &App{
		cfg:      cfg,
		log:      logger,
		client:   wsclient.New(dialer, wsclient.WithLogger(logger)),
		registry: registry,
		metrics:  metrics.New(registry, metrics.DefaultNamespace),
	}, nil
}

// Client returns the connection client.
func (a *App) Client() *wsclient.Client {
	return a.client
}

func (a *App) connectConfig() wsclient.ConnectConfig {
	return wsclient.ConnectConfig{
		Target:             a.cfg.URL,
		Timeout:            a.cfg.ConnectTimeout,
		IgnoreConnectError: a.cfg.IgnoreConnectError,
	}
}

// Probe runs a single bounded connect and reports the result to out.
func (a *App) Probe(ctx context.Context, out io.Writer) (wsclient.ConnectResult, error) {
	defer a.client.Shutdown()

	started := time.Now()
	res, err := a.client.Dial(ctx, a.connectConfig())
	elapsed := time.Since(started)
	a.metrics.ObserveConnect(res, elapsed)

	switch res.Status {
	case wsclient.StatusOpen:
		fmt.Fprintf(out, "open %s in %s\n", a.cfg.URL, elapsed.Round(time.Millisecond))
	case wsclient.StatusSkipped:
		fmt.Fprintf(out, "skipped %s: %v\n", a.cfg.URL, res.Err)
	default:
		fmt.Fprintf(out, "failed %s [%s]: %v\n", a.cfg.URL, wsclient.Code(err), err)
	}
	return res, err
}

// RunChat runs an interactive session: lines from in are sent to the room,
// server events are rendered to out. It returns when ctx is done or in ends.
func (a *App) RunChat(ctx context.Context, in io.Reader, out io.Writer) error {
	if a.cfg.HistoryPath != "" {
		st, err := sqlite.New(a.cfg.HistoryPath)
		if err != nil {
			return fmt.Errorf("init history: %w", err)
		}
		a.history = st
		a.log.Info().Str("history_path", a.cfg.HistoryPath).Msg("history store opened")
	}
	defer a.cleanup()

	session, err := chat.NewSession(a.client, chat.Options{
		User:    a.cfg.User,
		Room:    a.cfg.Room,
		Token:   a.cfg.Token,
		History: a.history,
		Metrics: a.metrics,
		Out:     out,
		Logger:  a.log,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if a.cfg.MetricsAddr != "" {
		g.Go(func() error { return a.serveMetrics(gctx) })
	}

	if _, err := session.Start(gctx, a.connectConfig()); err != nil {
		session.Stop()
		cancel()
		_ = g.Wait()
		return err
	}
	defer session.Stop()

	lines := make(chan string)
	go scanLines(gctx, in, lines)

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return errInputClosed
				}
				if quit := a.handleLine(gctx, session, line, out); quit {
					return errInputClosed
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errInputClosed) {
		return err
	}
	return nil
}

func (a *App) handleLine(ctx context.Context, session *chat.Session, line string, out io.Writer) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) > 0 {
		switch fields[0] {
		case "/quit", "/exit":
			return true
		case "/history":
			n := defaultHistoryLines
			if len(fields) > 1 {
				if v, err := strconv.Atoi(fields[1]); err == nil && v > 0 {
					n = v
				}
			}
			msgs, err := session.Recent(ctx, n)
			if err != nil {
				fmt.Fprintf(out, "! history: %v\n", err)
				return false
			}
			for _, m := range msgs {
				fmt.Fprintf(out, "[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), m.User, m.Body)
			}
			return false
		case "/status":
			fmt.Fprintf(out, "* %s (ready=%v)\n", a.client.State(), a.client.IsReady())
			return false
		case "/members":
			members := session.Members()
			if len(members) == 0 {
				fmt.Fprintf(out, "* no members known in %s\n", session.Room())
				return false
			}
			fmt.Fprintf(out, "* members of %s: %s\n", session.Room(), strings.Join(members, ", "))
			return false
		}
	}

	if err := session.Say(line); err != nil {
		fmt.Fprintf(out, "! not sent: %v\n", err)
	}
	return false
}

// scanLines feeds lines from in until it ends or ctx is done. A read that
// is already blocked on in returns only when in does.
func scanLines(ctx context.Context, in io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}

// metricsHandler exposes the registry on /metrics.
func (a *App) metricsHandler() stdhttp.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), echo.LoggerMiddleware(a.log))

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry})))
	return router
}

func (a *App) serveMetrics(ctx context.Context) error {
	server := &stdhttp.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           a.metricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.cfg.MetricsAddr).Msg("metrics server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- fmt.Errorf("metrics server: %w", err)
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return <-serverErr
	}
}

// cleanup closes the client and the history store.
func (a *App) cleanup() {
	a.client.Shutdown()
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close history store")
		} else {
			a.log.Info().Msg("history store closed")
		}
	}
}

// RunEcho serves the echo endpoint until ctx is done.
func RunEcho(ctx context.Context, cfg config.Config, logger *zerolog.Logger) error {
	server := echo.NewServer(echo.Config{
		Addr:            cfg.EchoAddr,
		MaxMessageBytes: cfg.MaxMessageBytes,
	}, logger)
	if err := server.Start(); err != nil {
		return err
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	logger.Info().Msg("shutting down echo server")
	return server.Stop(shutdownCtx)
}
