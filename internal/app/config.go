package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Persistence drivers.
const (
	DriverNone   = "none"
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// ServerConfig defines how the HTTP/WebSocket backend should run.
type ServerConfig struct {
	Addr   string `env:"CHATRELAY_ADDR"        envDefault:":8080"`
	Path   string `env:"CHATRELAY_PATH"        envDefault:"/join"`
	Driver string `env:"CHATRELAY_PERSISTENCE" envDefault:"none"`
	// DBPath is the SQLite file or Badger directory. Empty selects a
	// per-user data path.
	DBPath    string        `env:"CHATRELAY_DB_PATH"`
	Capacity  int           `env:"CHATRELAY_CAPACITY"   envDefault:"1000"`
	PageSize  int           `env:"CHATRELAY_PAGE_SIZE"  envDefault:"50"`
	TypingTTL time.Duration `env:"CHATRELAY_TYPING_TTL" envDefault:"0s"`

	APIRateLimit   int           `env:"CHATRELAY_API_RATE_LIMIT"   envDefault:"100"`
	APIRateWindow  time.Duration `env:"CHATRELAY_API_RATE_WINDOW"  envDefault:"15m"`
	ConnRateLimit  int           `env:"CHATRELAY_CONN_RATE_LIMIT"  envDefault:"20"`
	ConnRateWindow time.Duration `env:"CHATRELAY_CONN_RATE_WINDOW" envDefault:"1m"`

	LogLevel string `env:"CHATRELAY_LOG_LEVEL" envDefault:"info"`
	Env      string `env:"CHATRELAY_ENV"       envDefault:"prod"`
}

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	ServerURL string `env:"CHATRELAY_SERVER" envDefault:"ws://localhost:8080/join"`
	Username  string `env:"CHATRELAY_USER"`
	Room      string `env:"CHATRELAY_ROOM"`
}

// LoadServerConfig reads CHATRELAY_* variables on top of the defaults.
func LoadServerConfig() (ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func LoadClientConfig() (ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate normalizes the join path and rejects unusable settings.
func (c *ServerConfig) Validate() error {
	c.Path = NormalizeJoinPath(c.Path)
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	if c.Driver == "" {
		c.Driver = DriverNone
	}
	switch c.Driver {
	case DriverNone, DriverSQLite, DriverBadger:
	default:
		return fmt.Errorf("unknown persistence driver %q", c.Driver)
	}
	if c.Path == "/" {
		return errors.New("join path cannot be /")
	}
	if c.Capacity <= 0 {
		return errors.New("capacity must be positive")
	}
	if c.PageSize <= 0 {
		return errors.New("page size must be positive")
	}
	if c.TypingTTL < 0 {
		return errors.New("typing TTL cannot be negative")
	}
	if c.Driver != DriverNone && c.DBPath == "" {
		c.DBPath = DefaultDBPath(c.Driver)
	}
	return nil
}

// DefaultDBPath returns a per-user data path for the given driver: a file
// for SQLite, a directory for Badger.
func DefaultDBPath(driver string) string {
	name := "chatrelay.db"
	if driver == DriverBadger {
		name = "chatrelay-badger"
	}
	if dir := os.Getenv("CHATRELAY_DATA_DIR"); dir != "" {
		return filepath.Join(dir, name)
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "chatrelay", name)
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Chatrelay", name)
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Chatrelay", name)
		}
		return filepath.Join(home, ".local", "share", "chatrelay", name)
	}
	return filepath.Join(".", ".chatrelay", name)
}

// NormalizeJoinPath guarantees the websocket join path starts with '/' and
// falls back to /join when empty.
func NormalizeJoinPath(path string) string {
	if path == "" {
		return "/join"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}
