package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	intrnl "chatrelay/internal"
	"chatrelay/internal/app"
	"chatrelay/internal/logging"
)

const (
	modeServer  = "server"
	modeClient  = "client"
	modeLocal   = "local"
	modeVersion = "version"
)

func main() {
	_ = godotenv.Load()

	mode, args := parseMode(os.Args[1:])
	if mode == modeVersion {
		fmt.Println("chatrelay", intrnl.Version)
		return
	}

	serverCfg, err := app.LoadServerConfig()
	if err != nil {
		fatal(err)
	}
	clientCfg, err := app.LoadClientConfig()
	if err != nil {
		fatal(err)
	}
	if mode == modeLocal && os.Getenv("CHATRELAY_ADDR") == "" {
		serverCfg.Addr = "127.0.0.1:0"
	}

	flagSet := flag.NewFlagSet("chatrelay", flag.ExitOnError)
	flagSet.StringVar(&serverCfg.Addr, "addr", serverCfg.Addr, "server listen address")
	flagSet.StringVar(&serverCfg.Path, "path", serverCfg.Path, "websocket join path")
	flagSet.StringVar(&serverCfg.Driver, "persistence", serverCfg.Driver, "persistence driver: none, sqlite or badger")
	flagSet.StringVar(&serverCfg.DBPath, "db", serverCfg.DBPath, "sqlite file or badger directory (defaults to a per-user path)")
	flagSet.IntVar(&serverCfg.Capacity, "capacity", serverCfg.Capacity, "messages kept in memory across all rooms")
	flagSet.IntVar(&serverCfg.PageSize, "page-size", serverCfg.PageSize, "messages per history, load_more and search page")
	flagSet.DurationVar(&serverCfg.TypingTTL, "typing-ttl", serverCfg.TypingTTL, "clear typing indicators older than this (0 disables)")
	flagSet.StringVar(&serverCfg.LogLevel, "log-level", serverCfg.LogLevel, "log level")
	flagSet.StringVar(&serverCfg.Env, "env", serverCfg.Env, "environment; dev enables console logs")
	flagSet.StringVar(&clientCfg.ServerURL, "server-url", clientCfg.ServerURL, "server websocket URL (client mode)")
	flagSet.StringVar(&clientCfg.Username, "user", clientCfg.Username, "display name")
	quiet := flagSet.Bool("quiet", false, "suppress informational logs")
	_ = flagSet.Parse(args)

	if remaining := flagSet.Args(); len(remaining) > 0 {
		clientCfg.Room = remaining[0]
	}

	logger := logging.New(serverCfg.Env, serverCfg.LogLevel, os.Stderr)
	if *quiet {
		logger = logger.Level(zerolog.WarnLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case modeServer:
		err = runServerMode(ctx, serverCfg, logger)
	case modeLocal:
		// the TUI owns the terminal
		err = runLocalMode(ctx, serverCfg, clientCfg, logging.Discard())
	default:
		err = runClientMode(clientCfg)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "chatrelay: %v\n", err)
	os.Exit(1)
}

func runServerMode(ctx context.Context, cfg app.ServerConfig, logger zerolog.Logger) error {
	handle, err := app.RunServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return handle.Wait()
}

func runClientMode(cfg app.ClientConfig) error {
	if cfg.ServerURL == "" {
		return errors.New("client mode requires --server-url or CHATRELAY_SERVER")
	}
	return app.RunClient(cfg)
}

func runLocalMode(ctx context.Context, serverCfg app.ServerConfig, clientCfg app.ClientConfig, logger zerolog.Logger) error {
	handle, err := app.RunServer(ctx, serverCfg, logger)
	if err != nil {
		return err
	}
	defer stopServer(handle)

	if err := waitForServer(handle.Addr(), 5*time.Second); err != nil {
		return err
	}

	clientCfg.ServerURL = buildWebsocketURL(handle.Addr(), serverCfg.Path)
	if err := app.RunClient(clientCfg); err != nil {
		return err
	}
	stopServer(handle)
	return handle.Wait()
}

func waitForServer(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server did not become ready: %w", err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func buildWebsocketURL(addr, path string) string {
	path = app.NormalizeJoinPath(path)
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Sprintf("ws://%s%s", addr, path)
	}
	if host == "" || host == "::" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(host, port), path)
}

func parseMode(args []string) (string, []string) {
	if len(args) == 0 {
		return modeClient, args
	}
	switch strings.ToLower(args[0]) {
	case modeServer, modeClient, modeLocal, modeVersion:
		return strings.ToLower(args[0]), args[1:]
	}
	return modeClient, args
}

func stopServer(handle *app.ServerHandle) {
	if handle == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = handle.Stop(shutdownCtx)
}
