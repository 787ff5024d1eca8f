package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Codec != "json" {
		t.Errorf("expected default codec json, got %q", cfg.Codec)
	}
	if cfg.FDTimeout != 200*time.Millisecond {
		t.Errorf("expected default descriptor timeout 200ms, got %v", cfg.FDTimeout)
	}
	if cfg.KeepAlive != 0 {
		t.Errorf("keepalive should be off by default, got %v", cfg.KeepAlive)
	}
	if cfg.Server != "display" {
		t.Errorf("expected default server name, got %q", cfg.Server)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DISPLAY_RPC_SOCKET", "/run/display/0")
	t.Setenv("DISPLAY_RPC_ETCD_ENDPOINTS", "127.0.0.1:2379,127.0.0.1:22379")
	t.Setenv("DISPLAY_RPC_CODEC", "binary")
	t.Setenv("DISPLAY_RPC_FD_TIMEOUT", "1s")
	t.Setenv("DISPLAY_RPC_KEEPALIVE", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SocketPath() != "/run/display/0" {
		t.Errorf("unexpected socket %q", cfg.SocketPath())
	}
	if len(cfg.EtcdEndpoints) != 2 || cfg.EtcdEndpoints[1] != "127.0.0.1:22379" {
		t.Errorf("unexpected etcd endpoints %v", cfg.EtcdEndpoints)
	}
	if cfg.Codec != "binary" || cfg.FDTimeout != time.Second || cfg.KeepAlive != 30*time.Second {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestLoadError(t *testing.T) {
	t.Setenv("DISPLAY_RPC_FD_TIMEOUT", "soon")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestSocketPathFallback(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)

	var cfg Config
	if got, want := cfg.SocketPath(), filepath.Join(dir, DefaultSocketName); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	t.Setenv("XDG_RUNTIME_DIR", "")
	if got := cfg.SocketPath(); !strings.HasSuffix(got, DefaultSocketName) {
		t.Fatalf("expected fallback socket, got %q", got)
	}
}

func TestLogger(t *testing.T) {
	cfg := Config{LogLevel: "DEBUG"}
	log, err := cfg.Logger()
	if err != nil {
		t.Fatal(err)
	}
	if !log.Core().Enabled(-1) {
		t.Error("debug level should be enabled")
	}

	if _, err := (Config{LogLevel: "loud"}).Logger(); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
