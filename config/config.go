// Package config loads display-rpc settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultSocketName is the socket file looked up in $XDG_RUNTIME_DIR, or in
// /tmp when that is unset.
const DefaultSocketName = "display_socket"

type Config struct {
	Socket        string        `env:"DISPLAY_RPC_SOCKET"`
	Server        string        `env:"DISPLAY_RPC_SERVER" envDefault:"display"`
	EtcdEndpoints []string      `env:"DISPLAY_RPC_ETCD_ENDPOINTS" envSeparator:","`
	Codec         string        `env:"DISPLAY_RPC_CODEC" envDefault:"json"`
	FDTimeout     time.Duration `env:"DISPLAY_RPC_FD_TIMEOUT" envDefault:"200ms"`
	KeepAlive     time.Duration `env:"DISPLAY_RPC_KEEPALIVE" envDefault:"0s"`
	LogLevel      string        `env:"DISPLAY_RPC_LOG_LEVEL" envDefault:"info"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// SocketPath returns the configured socket, falling back to the default
// location.
func (c Config) SocketPath() string {
	if c.Socket != "" {
		return c.Socket
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, DefaultSocketName)
	}
	return filepath.Join(os.TempDir(), DefaultSocketName)
}

// Logger builds a production logger at the configured level.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("config: log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
