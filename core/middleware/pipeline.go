package middleware

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/searchktools/fast-scgi/core/scgi"
)

// Middleware wraps a handler with extra behavior
type Middleware func(next scgi.HandlerFunc) scgi.HandlerFunc

// Pipeline is an ordered list of middlewares.
// Middlewares run in the order they were added; the first added is outermost.
type Pipeline struct {
	middlewares []Middleware
}

// NewPipeline creates a new middleware pipeline
func NewPipeline() *Pipeline {
	return &Pipeline{
		middlewares: make([]Middleware, 0, 8),
	}
}

// Use adds a middleware to the pipeline
func (p *Pipeline) Use(m Middleware) *Pipeline {
	p.middlewares = append(p.middlewares, m)
	return p
}

// Then compiles the pipeline around final into a single handler
func (p *Pipeline) Then(final scgi.HandlerFunc) scgi.HandlerFunc {
	// Fast path: no middlewares
	if len(p.middlewares) == 0 {
		return final
	}

	h := final
	for i := len(p.middlewares) - 1; i >= 0; i-- {
		h = p.middlewares[i](h)
	}
	return h
}

// Recover turns a handler panic into a 500 response. The header is only
// written if the handler had not written anything yet.
func Recover(log zerolog.Logger) Middleware {
	return func(next scgi.HandlerFunc) scgi.HandlerFunc {
		return func(w *scgi.ResponseWriter, r *scgi.Request) {
			defer func() {
				if p := recover(); p != nil {
					log.Error().
						Interface("panic", p).
						Str("method", r.Method()).
						Str("uri", r.URI()).
						Msg("Handler panicked")
					if w.Written() == 0 {
						w.WriteHeader(500, "Content-Type", "text/plain")
						w.WriteString("Internal Server Error\n")
					}
				}
			}()
			next(w, r)
		}
	}
}

// AccessLog logs one line per handled request
func AccessLog(log zerolog.Logger) Middleware {
	return func(next scgi.HandlerFunc) scgi.HandlerFunc {
		return func(w *scgi.ResponseWriter, r *scgi.Request) {
			start := time.Now()
			next(w, r)
			log.Info().
				Str("method", r.Method()).
				Str("uri", r.URI()).
				Int("body", len(r.Body())).
				Int64("written", w.Written()).
				Dur("elapsed", time.Since(start)).
				Msg("Request")
		}
	}
}
