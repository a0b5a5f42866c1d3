package core

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/searchktools/fast-scgi/core/buffer"
	"github.com/searchktools/fast-scgi/core/scgi"
)

// closeReason records why a connection was torn down
type closeReason uint8

const (
	closeDone closeReason = iota
	closeEOF
	closeTransport
	closeProtocol
	closeTimeout
	closePanic
	closeShutdown
)

func (r closeReason) String() string {
	switch r {
	case closeDone:
		return "done"
	case closeEOF:
		return "eof"
	case closeTransport:
		return "transport error"
	case closeProtocol:
		return "protocol error"
	case closeTimeout:
		return "idle timeout"
	case closePanic:
		return "handler panic"
	case closeShutdown:
		return "shutdown"
	}
	return "unknown"
}

// Connection is the per-socket state owned by the event loop: input and
// output queues, the request being assembled and its parser.
//
// A connection moves from reading to writing exactly once, when the parser
// completes and the handler has run. It is torn down exactly once, either
// when the output drains after the handler, or on EOF, error or timeout.
type Connection struct {
	engine *Engine
	fd     int
	id     uint64

	in      buffer.Queue
	out     buffer.Queue
	request scgi.Request
	parser  scgi.Parser

	lastActive time.Time
	writeArmed bool
	closed     bool
}

// Reset implements pools.Poolable. The connection stays marked closed
// until SetFD hands it a new socket.
func (c *Connection) Reset() {
	c.fd = -1
	c.id = 0
	resetQueue(&c.in)
	resetQueue(&c.out)
	c.request.Reset()
	c.lastActive = time.Time{}
	c.writeArmed = false
	c.closed = true
}

// SetFD implements pools.Poolable
func (c *Connection) SetFD(fd int) {
	c.fd = fd
	c.closed = false
	c.parser.Reset(&c.request, c.engine.limits)
	c.lastActive = time.Now()
}

func resetQueue(q *buffer.Queue) {
	if q.Cap() > maxRetainedQueue {
		q.Release()
	} else {
		q.Reset()
	}
}

// onReadable reads what the socket has and feeds the parser
func (c *Connection) onReadable() {
	if c.closed || c.parser.Complete() {
		return
	}

	e := c.engine
	buf := e.bytePool.Get(e.readBufferSize)
	n, err := readFD(c.fd, buf)
	if n > 0 {
		c.in.Write(buf[:n])
	}
	e.bytePool.Put(buf)

	switch {
	case err == unix.EAGAIN:
		return
	case err != nil:
		e.closeConnection(c, closeTransport, err)
		return
	case n == 0:
		e.closeConnection(c, closeEOF, nil)
		return
	}
	c.lastActive = time.Now()

	done, err := c.parser.Feed(&c.in)
	if err != nil {
		e.closeConnection(c, closeProtocol, err)
		return
	}
	if done {
		c.serve()
	}
}

// serve runs the handler inline and starts draining its output
func (c *Connection) serve() {
	e := c.engine
	e.stats.requests.Add(1)

	w := scgi.NewResponseWriter(&c.out)
	ok := e.invoke(w, &c.request)
	w.Detach()
	if !ok {
		e.closeConnection(c, closePanic, nil)
		return
	}

	c.drain()
}

// onWritable flushes pending output. Notifications that arrive before the
// request is complete are ignored: the handler has not produced anything yet.
func (c *Connection) onWritable() {
	if c.closed || !c.parser.Complete() {
		return
	}
	c.drain()
}

// drain writes queued output and tears the connection down once it is empty
func (c *Connection) drain() {
	e := c.engine

	if err := c.flush(); err != nil {
		e.closeConnection(c, closeTransport, err)
		return
	}
	if c.out.Len() == 0 {
		e.closeConnection(c, closeDone, nil)
		return
	}

	if !c.writeArmed {
		// Nothing more is read once the request is complete
		if err := e.poller.Modify(c.fd, false, true); err != nil {
			e.closeConnection(c, closeTransport, err)
			return
		}
		c.writeArmed = true
	}
}

// flush writes until the output queue is empty or the socket would block
func (c *Connection) flush() error {
	for c.out.Len() > 0 {
		n, err := unix.Write(c.fd, c.out.Bytes())
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return nil
		}
		if err != nil {
			return err
		}
		c.out.Discard(n)
		c.lastActive = time.Now()
	}
	return nil
}

func readFD(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		if err == unix.EINTR {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}
