/*
Package fastscgi provides a single-threaded, event-driven SCGI application
server for Go.

A front-end web server (nginx, Apache, lighttpd) forwards each HTTP request
as one SCGI request: a netstring of NUL-separated header pairs followed by
the body. Fast-SCGI parses requests incrementally as bytes arrive, calls the
application handler once per complete request, streams the handler's output
back and closes the connection when the output has drained.

Features

  - I/O multiplexing: epoll (Linux) and kqueue (BSD/macOS), level-triggered
  - Incremental parser: any byte-level split of a request parses the same
  - One goroutine: every callback and the handler run on the event loop
  - Bounded requests: header block and body limits, idle timeouts
  - Pooled connections and read buffers
  - Middleware pipeline: panic recovery and access logging
  - Configuration from flags, SCGI_* environment variables and JSON

# Quick Start

Basic usage example:

	package main

	import (
	    "github.com/searchktools/fast-scgi/app"
	    "github.com/searchktools/fast-scgi/config"
	    "github.com/searchktools/fast-scgi/core/scgi"
	)

	func main() {
	    cfg := config.New()

	    application := app.New(cfg, func(w *scgi.ResponseWriter, r *scgi.Request) {
	        w.WriteHeader(200, "Content-Type", "text/plain")
	        w.WriteString("Hello, " + r.URI())
	    })

	    application.Run()
	}

# Modules

The server is organized into several modules:

  - app: Application lifecycle management
  - config: Configuration loading and management
  - core: Event loop, connections and statistics
  - core/scgi: Request parser, request and response types
  - core/buffer: Byte queues for connection input and output
  - core/poller: I/O multiplexing (epoll/kqueue)
  - core/pools: Connection and read buffer pools
  - core/middleware: Middleware pipeline
  - core/codec: JSON and protobuf body encoding

A handler that blocks stalls every other connection; hand slow work to
another goroutine and keep handlers short. A Request is recycled once its
handler returns, so copy the headers you need (Request.Headers returns a
copy) before handing work off.
*/
package fastscgi
