package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	intrnl "chatrelay/internal"
	"chatrelay/internal/session"
	"chatrelay/internal/storage"
)

type messageSink interface {
	session.Sink
	Close() error
}

// ServerHandle represents a running HTTP/WebSocket server instance.
type ServerHandle struct {
	addr        string
	server      *http.Server
	hub         *intrnl.Hub
	coordinator *session.Coordinator
	persister   *session.Persister
	sink        messageSink
	log         zerolog.Logger
	stopSweep   chan struct{}
	done        chan struct{}
	err         error
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// Coordinator exposes the chat state, mainly for tests and local mode.
func (h *ServerHandle) Coordinator() *session.Coordinator {
	return h.coordinator
}

// Stop triggers a graceful shutdown with the provided context deadline.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	return h.server.Shutdown(ctx)
}

// Wait blocks until the server exits and persistence has been flushed.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// RunServer opens the configured sink, warms the message store from it,
// wires the coordinator and starts serving in the background. Call
// Stop/Wait to manage its lifecycle.
func RunServer(ctx context.Context, cfg ServerConfig, logger zerolog.Logger) (*ServerHandle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	sink, err := openSink(ctx, cfg)
	if err != nil {
		return nil, err
	}

	metrics := intrnl.NewMetrics()
	hub := intrnl.NewHub(metrics, logger)

	var (
		recorder  session.Recorder
		persister *session.Persister
	)
	if sink != nil {
		persister = session.NewPersister(sink, logger, session.WithFailureHook(metrics.PersistFailed))
		recorder = persister
	}

	coordinator := session.NewCoordinator(hub, session.Config{
		Capacity:  cfg.Capacity,
		PageSize:  cfg.PageSize,
		TypingTTL: cfg.TypingTTL,
		Logger:    logger,
		Recorder:  recorder,
		Observer:  metrics,
	})
	if sink != nil {
		warmStart(ctx, coordinator, sink, cfg.Capacity, logger)
	}

	server := intrnl.NewServer(intrnl.ServerOptions{
		Coordinator: coordinator,
		Hub:         hub,
		Metrics:     metrics,
		APILimiter:  intrnl.NewRateLimiter(cfg.APIRateLimit, cfg.APIRateWindow),
		ConnLimiter: intrnl.NewRateLimiter(cfg.ConnRateLimit, cfg.ConnRateWindow),
		Logger:      logger,
		Persistence: cfg.Driver,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Routes(cfg.Path),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		closeSink(persister, sink, logger)
		return nil, fmt.Errorf("listen: %w", err)
	}

	handle := &ServerHandle{
		addr:        listener.Addr().String(),
		server:      httpServer,
		hub:         hub,
		coordinator: coordinator,
		persister:   persister,
		sink:        sink,
		log:         logger,
		stopSweep:   make(chan struct{}),
		done:        make(chan struct{}),
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-handle.done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	if cfg.TypingTTL > 0 {
		go handle.sweepTyping(cfg.TypingTTL)
	}
	go handle.serve(listener)

	logger.Info().
		Str("addr", handle.addr).
		Str("path", cfg.Path).
		Str("persistence", cfg.Driver).
		Int("capacity", cfg.Capacity).
		Msg("chatrelay server listening")
	return handle, nil
}

func (h *ServerHandle) serve(listener net.Listener) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	close(h.stopSweep)
	h.hub.CloseAll()
	closeSink(h.persister, h.sink, h.log)
	h.err = err
}

// sweepTyping clears stale typing flags until the server stops.
func (h *ServerHandle) sweepTyping(ttl time.Duration) {
	interval := ttl / 2
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopSweep:
			return
		case now := <-ticker.C:
			if cleared := h.coordinator.SweepTyping(now); cleared > 0 {
				h.log.Debug().Int("cleared", cleared).Msg("expired typing indicators")
			}
		}
	}
}

func openSink(ctx context.Context, cfg ServerConfig) (messageSink, error) {
	switch cfg.Driver {
	case DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		store, err := storage.NewStore(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return store, nil
	case DriverBadger:
		if err := os.MkdirAll(cfg.DBPath, 0o700); err != nil {
			return nil, fmt.Errorf("create badger dir: %w", err)
		}
		store, err := storage.OpenBadger(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, nil
	}
}

// warmStart loads the newest messages from the sink. Failures leave the
// server running with an empty history.
func warmStart(ctx context.Context, coordinator *session.Coordinator, sink session.Sink, capacity int, logger zerolog.Logger) {
	msgs, err := sink.RecentMessages(ctx, capacity)
	if err != nil {
		logger.Warn().Err(err).Msg("warm start failed, starting with empty history")
		return
	}
	coordinator.Seed(msgs)
	logger.Info().Int("messages", len(msgs)).Msg("restored message history")
}

func closeSink(persister *session.Persister, sink messageSink, logger zerolog.Logger) {
	if persister != nil {
		persister.Close()
	}
	if sink == nil {
		return
	}
	if err := sink.Close(); err != nil {
		logger.Error().Err(err).Msg("close store")
	}
}
