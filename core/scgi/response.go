package scgi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/searchktools/fast-scgi/core/buffer"
)

// HandlerFunc serves one SCGI request. It runs inline on the event loop,
// so a slow handler delays every other connection.
type HandlerFunc func(w *ResponseWriter, r *Request)

// ResponseWriter appends response bytes to a connection's output queue.
// Bytes are flushed to the client in the order written. The writer is only
// valid while the handler runs.
type ResponseWriter struct {
	out     *buffer.Queue
	written int64
}

// NewResponseWriter returns a writer appending to out
func NewResponseWriter(out *buffer.Queue) *ResponseWriter {
	return &ResponseWriter{out: out}
}

// Write implements io.Writer
func (w *ResponseWriter) Write(p []byte) (int, error) {
	if w.out == nil {
		return 0, ErrWriterDetached
	}
	n, _ := w.out.Write(p)
	w.written += int64(n)
	return n, nil
}

// WriteString implements io.StringWriter
func (w *ResponseWriter) WriteString(s string) (int, error) {
	if w.out == nil {
		return 0, ErrWriterDetached
	}
	n, _ := w.out.WriteString(s)
	w.written += int64(n)
	return n, nil
}

// WriteHeader writes a CGI-style response header block:
//
//	Status: 200 OK\r\n
//	Name: Value\r\n
//	\r\n
//
// fields alternate header names and values.
func (w *ResponseWriter) WriteHeader(status int, fields ...string) error {
	if len(fields)%2 != 0 {
		return errors.New("scgi: WriteHeader needs name/value pairs")
	}

	text := http.StatusText(status)
	if text == "" {
		text = "Unknown"
	}

	b := make([]byte, 0, 64)
	b = append(b, "Status: "...)
	b = strconv.AppendInt(b, int64(status), 10)
	b = append(b, ' ')
	b = append(b, text...)
	b = append(b, "\r\n"...)
	for i := 0; i < len(fields); i += 2 {
		b = append(b, fields[i]...)
		b = append(b, ": "...)
		b = append(b, fields[i+1]...)
		b = append(b, "\r\n"...)
	}
	b = append(b, "\r\n"...)

	_, err := w.Write(b)
	return err
}

// Written returns the number of bytes written so far
func (w *ResponseWriter) Written() int64 {
	return w.written
}

// Detach invalidates the writer; later writes return ErrWriterDetached
func (w *ResponseWriter) Detach() {
	w.out = nil
}
