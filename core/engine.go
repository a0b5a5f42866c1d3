package core

import (
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/searchktools/fast-scgi/core/poller"
	"github.com/searchktools/fast-scgi/core/pools"
	"github.com/searchktools/fast-scgi/core/scgi"
)

// Option configures an Engine
type Option func(*Engine)

// WithIdleTimeout sets how long a connection may go without read or write
// progress before it is torn down. Zero disables the timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(e *Engine) { e.idleTimeout = d }
}

// WithLogger sets the engine logger
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithLimits bounds header and body sizes per request
func WithLimits(l scgi.Limits) Option {
	return func(e *Engine) { e.limits = l }
}

// WithMaxConnections caps concurrently open connections. Sockets accepted
// past the cap are closed immediately.
func WithMaxConnections(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxConnections = n
		}
	}
}

// WithReadBufferSize sets how many bytes one readability event may read
func WithReadBufferSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.readBufferSize = n
		}
	}
}

// Engine is a single-threaded SCGI server driven by epoll/kqueue.
//
// Every connection callback and the handler itself run on the goroutine
// that called Serve, strictly one at a time, so per-connection state needs
// no locking. A handler that blocks stalls every other connection.
type Engine struct {
	handler scgi.HandlerFunc
	poller  poller.Poller
	conns   map[int]*Connection

	idleTimeout    time.Duration
	maxConnections int
	readBufferSize int
	limits         scgi.Limits
	log            zerolog.Logger

	bytePool       *pools.BytePool
	connectionPool *pools.ConnectionPool[*Connection]

	ln        net.Listener
	lnFile    *os.File
	lfd       int
	nextID    uint64
	lastSweep time.Time

	serving atomic.Bool
	closing atomic.Bool
	stats   counters
}

// NewEngine creates an engine that serves every request with handler
func NewEngine(handler scgi.HandlerFunc, opts ...Option) *Engine {
	e := &Engine{
		handler:        handler,
		conns:          make(map[int]*Connection, 1024),
		idleTimeout:    DefaultIdleTimeout,
		maxConnections: DefaultMaxConnections,
		readBufferSize: DefaultReadBufferSize,
		log:            zerolog.Nop(),
		lfd:            -1,
		bytePool:       pools.NewBytePool(),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.connectionPool = pools.NewConnectionPool(func() *Connection {
		return &Connection{engine: e, fd: -1}
	})

	return e
}

// Listen opens a listener for "tcp" (host:port) or "unix" (socket path).
// A stale unix socket file at path is removed first.
func Listen(network, addr string) (net.Listener, error) {
	switch network {
	case "tcp", "tcp4", "tcp6":
	case "unix":
		if fi, err := os.Lstat(addr); err == nil && fi.Mode()&os.ModeSocket != 0 {
			os.Remove(addr)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, network)
	}

	return net.Listen(network, addr)
}

// Run listens on addr and serves until Shutdown or a listener failure
func (e *Engine) Run(network, addr string) error {
	ln, err := Listen(network, addr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrListener, err)
	}
	return e.Serve(ln)
}

// Serve runs the event loop on ln. It returns nil after Shutdown and an
// error wrapping ErrListener if the listening socket or the poller fails.
// ln is closed when Serve returns.
func (e *Engine) Serve(ln net.Listener) error {
	if !e.serving.CompareAndSwap(false, true) {
		ln.Close()
		return ErrAlreadyServing
	}

	filer, ok := ln.(interface{ File() (*os.File, error) })
	if !ok {
		ln.Close()
		return fmt.Errorf("%w: %T has no file descriptor", ErrListener, ln)
	}
	lnFile, err := filer.File()
	if err != nil {
		ln.Close()
		return fmt.Errorf("%w: %w", ErrListener, err)
	}
	e.ln, e.lnFile = ln, lnFile
	defer e.stop()

	e.lfd = int(lnFile.Fd())
	if err := unix.SetNonblock(e.lfd, true); err != nil {
		return fmt.Errorf("%w: %w", ErrListener, err)
	}

	e.poller, err = poller.NewPoller()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrListener, err)
	}
	if err := e.poller.Add(e.lfd); err != nil {
		return fmt.Errorf("%w: %w", ErrListener, err)
	}

	e.log.Info().
		Str("network", ln.Addr().Network()).
		Str("addr", ln.Addr().String()).
		Dur("idle_timeout", e.idleTimeout).
		Int("max_connections", e.maxConnections).
		Msg("SCGI server listening")

	return e.loop()
}

// Shutdown stops the event loop. Open connections are closed. It is safe
// to call from any goroutine.
func (e *Engine) Shutdown() {
	e.closing.Store(true)
}

func (e *Engine) loop() error {
	interval := e.sweepInterval()
	timeout := int(interval / time.Millisecond)

	for !e.closing.Load() {
		events, err := e.poller.Wait(timeout)
		if err != nil {
			e.log.Error().Err(err).Msg("Poller failed, stopping")
			return fmt.Errorf("%w: poller wait: %w", ErrListener, err)
		}

		for _, ev := range events {
			if ev.Fd == e.lfd {
				if err := e.acceptConnections(ev); err != nil {
					e.log.Error().Err(err).Msg("Listener failed, stopping")
					return err
				}
				continue
			}
			e.handleConnectionEvent(ev)
		}

		e.sweepIdle(time.Now(), interval)
	}

	return nil
}

// sweepInterval is the poll timeout; idle timers have roughly this resolution
func (e *Engine) sweepInterval() time.Duration {
	d := pollInterval
	if e.idleTimeout > 0 && e.idleTimeout/4 < d {
		d = e.idleTimeout / 4
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

// acceptConnections accepts every pending connection
func (e *Engine) acceptConnections(ev poller.Event) error {
	if ev.Closed {
		return fmt.Errorf("%w: error condition on listening socket", ErrListener)
	}

	for {
		nfd, _, err := unix.Accept(e.lfd)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return nil
			case unix.EINTR, unix.ECONNABORTED, unix.EPROTO:
				continue
			case unix.EMFILE, unix.ENFILE, unix.ENOBUFS, unix.ENOMEM:
				e.log.Warn().Err(err).Msg("Accept error, retrying on next event")
				return nil
			default:
				return fmt.Errorf("%w: accept: %w", ErrListener, err)
			}
		}

		if err := e.register(nfd); err != nil {
			e.log.Debug().Err(err).Int("fd", nfd).Msg("Connection rejected")
			unix.Close(nfd)
		}
	}
}

// register sets up a freshly accepted socket and starts watching it
func (e *Engine) register(nfd int) error {
	if len(e.conns) >= e.maxConnections {
		e.stats.rejected.Add(1)
		return fmt.Errorf("connection limit %d reached", e.maxConnections)
	}

	unix.CloseOnExec(nfd)
	if err := unix.SetNonblock(nfd, true); err != nil {
		return err
	}
	// TCP_NODELAY: Disable Nagle's algorithm (fails harmlessly on unix sockets)
	unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

	if err := e.poller.Add(nfd); err != nil {
		return err
	}

	conn := e.connectionPool.Get(nfd)
	e.nextID++
	conn.id = e.nextID
	e.conns[nfd] = conn

	e.stats.accepted.Add(1)
	e.stats.active.Add(1)
	e.log.Debug().Uint64("conn", conn.id).Int("fd", nfd).Msg("Connection accepted")
	return nil
}

// handleConnectionEvent dispatches one readiness event. Pending output is
// flushed before more input is read.
func (e *Engine) handleConnectionEvent(ev poller.Event) {
	conn, ok := e.conns[ev.Fd]
	if !ok {
		return
	}

	if ev.Closed {
		e.closeConnection(conn, closeTransport, unix.ECONNRESET)
		return
	}

	if ev.Writable {
		conn.onWritable()
		if conn.closed {
			return
		}
	}

	if ev.Readable {
		conn.onReadable()
	}
}

// invoke runs the handler, reporting false if it panicked
func (e *Engine) invoke(w *scgi.ResponseWriter, r *scgi.Request) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			e.log.Error().Interface("panic", p).Str("uri", r.URI()).Msg("Handler panicked")
			ok = false
		}
	}()

	e.handler(w, r)
	return true
}

// closeConnection tears a connection down. Only the first call for a given
// connection has any effect.
func (e *Engine) closeConnection(c *Connection, reason closeReason, err error) {
	if c.closed {
		return
	}
	c.closed = true

	// 1. Stop receiving events
	delete(e.conns, c.fd)
	e.poller.Remove(c.fd)

	e.stats.active.Add(-1)
	e.stats.record(reason)

	// 2. Close the fd
	unix.Close(c.fd)

	ev := e.log.Debug()
	if reason == closePanic {
		ev = e.log.Warn()
	}
	ev.Uint64("conn", c.id).Stringer("reason", reason).Err(err).Msg("Connection closed")

	// 3. Reset and return connection to pool
	e.connectionPool.Put(c)
}

// sweepIdle closes connections that made no progress within the idle timeout
func (e *Engine) sweepIdle(now time.Time, interval time.Duration) {
	if e.idleTimeout <= 0 || now.Sub(e.lastSweep) < interval {
		return
	}
	e.lastSweep = now

	for _, c := range e.conns {
		if now.Sub(c.lastActive) > e.idleTimeout {
			e.closeConnection(c, closeTimeout, nil)
		}
	}
}

// stop releases every connection and the listener
func (e *Engine) stop() {
	for _, c := range e.conns {
		e.closeConnection(c, closeShutdown, nil)
	}
	if e.poller != nil {
		e.poller.Close()
	}
	e.lnFile.Close()
	e.ln.Close()

	e.log.Info().Msg("SCGI server stopped")
}
