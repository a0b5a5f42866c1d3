package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EnvPrefix prefixes every environment variable the server reads,
// e.g. SCGI_IDLE_TIMEOUT=5s or SCGI_CONFIG=/etc/scgi.json.
const EnvPrefix = "SCGI"

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all application configuration.
type Config struct {
	Network          string        `config:"network"`
	Addr             string        `config:"addr"`
	IdleTimeout      time.Duration `config:"idle.timeout"`
	MaxConnections   int           `config:"max.connections"`
	MaxHeaderLength  int           `config:"max.header.length"`
	MaxContentLength int64         `config:"max.content.length"`
	ReadBufferSize   int           `config:"read.buffer.size"`
	Env              string        `config:"env"`
	LogLevel         string        `config:"log.level"`
	File             string        `config:"config"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Network:          "tcp",
		Addr:             "127.0.0.1:4000",
		IdleTimeout:      30 * time.Second,
		MaxConnections:   10000,
		MaxHeaderLength:  1 << 20,
		MaxContentLength: 64 << 20,
		ReadBufferSize:   8192,
		Env:              "development",
		LogLevel:         "info",
	}
}

// New loads configuration from the command line and environment, exiting
// on bad input the way flag.Parse does.
func New() *Config {
	cfg, err := Load(os.Args[0], os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}

// Load builds a Config from defaults, an optional JSON file, SCGI_*
// environment variables and args, later sources winning.
func Load(name string, args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&cfg.Network, "network", cfg.Network, "Listen network (tcp/unix)")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address (host:port or socket path)")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "Close connections idle this long (0 disables)")
	fs.IntVar(&cfg.MaxConnections, "max-connections", cfg.MaxConnections, "Maximum open connections")
	fs.IntVar(&cfg.MaxHeaderLength, "max-header-length", cfg.MaxHeaderLength, "Maximum header block size in bytes")
	fs.Int64Var(&cfg.MaxContentLength, "max-content-length", cfg.MaxContentLength, "Maximum request body size in bytes")
	fs.IntVar(&cfg.ReadBufferSize, "read-buffer-size", cfg.ReadBufferSize, "Bytes read per readiness event")
	fs.StringVar(&cfg.Env, "env", cfg.Env, "Environment (development/production)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug/info/warn/error)")
	fs.StringVar(&cfg.File, "config", cfg.File, "JSON configuration file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Flags given on the command line override the file and environment
	explicit := make(map[string]string)
	fs.Visit(func(f *flag.Flag) {
		explicit[f.Name] = f.Value.String()
	})

	m := NewManager()
	file := cfg.File
	if file == "" {
		file = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if file != "" {
		if err := m.LoadFromJSON(file); err != nil {
			return nil, err
		}
	}
	m.LoadFromEnv(EnvPrefix)

	if err := m.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	for name, value := range explicit {
		if err := fs.Set(name, value); err != nil {
			return nil, err
		}
	}
	cfg.File = file

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	switch {
	case c.Network != "tcp" && c.Network != "unix":
		return fmt.Errorf("%w: network %q", ErrInvalidConfig, c.Network)
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: empty address", ErrInvalidConfig)
	case c.IdleTimeout < 0:
		return fmt.Errorf("%w: negative idle timeout", ErrInvalidConfig)
	case c.MaxConnections <= 0:
		return fmt.Errorf("%w: max connections must be positive", ErrInvalidConfig)
	case c.MaxHeaderLength <= 0:
		return fmt.Errorf("%w: max header length must be positive", ErrInvalidConfig)
	case c.MaxContentLength < 0:
		return fmt.Errorf("%w: negative max content length", ErrInvalidConfig)
	case c.ReadBufferSize <= 0:
		return fmt.Errorf("%w: read buffer size must be positive", ErrInvalidConfig)
	case c.Env != "development" && c.Env != "production":
		return fmt.Errorf("%w: env %q", ErrInvalidConfig, c.Env)
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
