package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scgi.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("test", nil)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if *cfg != *Default() {
		t.Errorf("Expected defaults %+v, got %+v", Default(), cfg)
	}
}

func TestLoadFlags(t *testing.T) {
	cfg, err := Load("test", []string{
		"-network", "unix",
		"-addr", "/run/app.sock",
		"-idle-timeout", "250ms",
		"-max-content-length", "1024",
		"-env", "production",
	})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Network != "unix" || cfg.Addr != "/run/app.sock" {
		t.Errorf("Unexpected listen settings %s %s", cfg.Network, cfg.Addr)
	}
	if cfg.IdleTimeout != 250*time.Millisecond {
		t.Errorf("Expected 250ms idle timeout, got %v", cfg.IdleTimeout)
	}
	if cfg.MaxContentLength != 1024 {
		t.Errorf("Expected max content length 1024, got %d", cfg.MaxContentLength)
	}
	if !cfg.IsProduction() {
		t.Error("Expected production env")
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("SCGI_IDLE_TIMEOUT", "5s")
	t.Setenv("SCGI_MAX_CONNECTIONS", "12")
	t.Setenv("SCGI_LOG_LEVEL", "debug")

	cfg, err := Load("test", nil)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.IdleTimeout != 5*time.Second {
		t.Errorf("Expected 5s idle timeout, got %v", cfg.IdleTimeout)
	}
	if cfg.MaxConnections != 12 {
		t.Errorf("Expected 12 max connections, got %d", cfg.MaxConnections)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected debug log level, got %s", cfg.LogLevel)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `{
		"network": "unix",
		"addr": "/tmp/file.sock",
		"idle": {"timeout": 2},
		"max": {"header": {"length": 4096}},
		"read.buffer.size": 16384
	}`)

	cfg, err := Load("test", []string{"-config", path})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Network != "unix" || cfg.Addr != "/tmp/file.sock" {
		t.Errorf("Unexpected listen settings %s %s", cfg.Network, cfg.Addr)
	}
	if cfg.IdleTimeout != 2*time.Second {
		t.Errorf("Expected 2s idle timeout, got %v", cfg.IdleTimeout)
	}
	if cfg.MaxHeaderLength != 4096 {
		t.Errorf("Expected max header length 4096, got %d", cfg.MaxHeaderLength)
	}
	if cfg.ReadBufferSize != 16384 {
		t.Errorf("Expected read buffer size 16384, got %d", cfg.ReadBufferSize)
	}
	if cfg.File != path {
		t.Errorf("Expected file %s, got %s", path, cfg.File)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := writeFile(t, `{"addr": "127.0.0.1:1", "max": {"connections": 1}}`)
	t.Setenv("SCGI_CONFIG", path)
	t.Setenv("SCGI_ADDR", "127.0.0.1:2")

	cfg, err := Load("test", nil)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Addr != "127.0.0.1:2" {
		t.Errorf("Expected environment to override file, got %s", cfg.Addr)
	}
	if cfg.MaxConnections != 1 {
		t.Errorf("Expected file value 1, got %d", cfg.MaxConnections)
	}

	cfg, err = Load("test", []string{"-addr", "127.0.0.1:3"})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Addr != "127.0.0.1:3" {
		t.Errorf("Expected flag to override environment, got %s", cfg.Addr)
	}
}

func TestLoadInvalid(t *testing.T) {
	if _, err := Load("test", []string{"-network", "udp"}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for udp, got %v", err)
	}
	if _, err := Load("test", []string{"-log-level", "loud"}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for log level, got %v", err)
	}
	if _, err := Load("test", []string{"-config", filepath.Join(t.TempDir(), "missing.json")}); err == nil {
		t.Error("Expected error for missing config file")
	}

	t.Setenv("SCGI_MAX_CONNECTIONS", "many")
	if _, err := Load("test", nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for bad number, got %v", err)
	}
}

func TestManagerUnmarshal(t *testing.T) {
	m := NewManager()
	m.loadFromMap("", map[string]any{
		"server": map[string]any{
			"name":    "scgi",
			"debug":   "yes",
			"timeout": "1m",
			"workers": float64(4),
		},
	})

	var target struct {
		Name    string        `config:"name"`
		Debug   bool          `config:"debug"`
		Timeout time.Duration `config:"timeout"`
		Workers int           `config:"workers"`
		Missing string        `config:"missing"`
	}
	if err := m.Unmarshal("server", &target); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if target.Name != "scgi" || !target.Debug || target.Timeout != time.Minute || target.Workers != 4 {
		t.Errorf("Unexpected result %+v", target)
	}
	if v, ok := m.Get("server.workers"); !ok || v != float64(4) {
		t.Errorf("Expected server.workers to be 4, got %v", v)
	}

	if err := m.Unmarshal("", target); err == nil {
		t.Error("Expected error for non-pointer target")
	}
}
