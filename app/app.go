package app

import (
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchktools/fast-scgi/config"
	"github.com/searchktools/fast-scgi/core"
	"github.com/searchktools/fast-scgi/core/middleware"
	"github.com/searchktools/fast-scgi/core/scgi"
)

// App is the application instance: configuration, logger and the engine
// serving the handler
type App struct {
	cfg    *config.Config
	log    zerolog.Logger
	engine *core.Engine
}

// New creates an application serving handler. The handler is wrapped so
// panics produce a 500 and every request is logged.
func New(cfg *config.Config, handler scgi.HandlerFunc) *App {
	log := NewLogger(cfg)

	pipeline := middleware.NewPipeline().
		Use(middleware.Recover(log)).
		Use(middleware.AccessLog(log))

	engine := core.NewEngine(pipeline.Then(handler),
		core.WithLogger(log),
		core.WithIdleTimeout(cfg.IdleTimeout),
		core.WithMaxConnections(cfg.MaxConnections),
		core.WithReadBufferSize(cfg.ReadBufferSize),
		core.WithLimits(scgi.Limits{
			MaxHeaderLength:  cfg.MaxHeaderLength,
			MaxContentLength: cfg.MaxContentLength,
		}),
	)

	return NewWithEngine(cfg, engine, log)
}

// NewWithEngine creates an application instance with a pre-configured engine
func NewWithEngine(cfg *config.Config, engine *core.Engine, log zerolog.Logger) *App {
	return &App{
		cfg:    cfg,
		log:    log,
		engine: engine,
	}
}

// NewLogger builds the process logger: human-readable in development,
// JSON lines in production
func NewLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.IsProduction() {
		log = zerolog.New(os.Stderr)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return log.Level(level).With().Timestamp().Logger()
}

// Engine returns the underlying engine
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Logger returns the application logger
func (a *App) Logger() zerolog.Logger {
	return a.log
}

// Run listens on the configured address and serves until SIGINT or
// SIGTERM. A listener failure is fatal.
func (a *App) Run() {
	ln, err := core.Listen(a.cfg.Network, a.cfg.Addr)
	if err != nil {
		a.log.Fatal().Err(err).Str("addr", a.cfg.Addr).Msg("Server startup failed")
	}

	if err := a.Serve(ln); err != nil {
		a.log.Fatal().Err(err).Msg("Server failed")
	}
}

// Serve serves on ln until a signal arrives or the listener fails
func (a *App) Serve(ln net.Listener) error {
	stop := a.awaitSignal()
	defer stop()

	a.log.Info().Str("env", a.cfg.Env).Msg("Starting SCGI server")
	err := a.engine.Serve(ln)

	a.log.Info().RawJSON("stats", []byte(a.engine.StatsJSON())).Msg("Final statistics")
	return err
}

// Shutdown stops the engine from any goroutine
func (a *App) Shutdown() {
	a.engine.Shutdown()
}

func (a *App) awaitSignal() (stop func()) {
	quit := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-quit:
			a.log.Info().Stringer("signal", sig).Msg("Signal received, shutting down")
			a.engine.Shutdown()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(quit)
		close(done)
	}
}
