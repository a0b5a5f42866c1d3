package scgi

import (
	"fmt"
	"maps"
	"strconv"
)

// Standard SCGI/CGI variable names
const (
	HeaderContentLength  = "CONTENT_LENGTH"
	HeaderSCGI           = "SCGI"
	HeaderRequestMethod  = "REQUEST_METHOD"
	HeaderRequestURI     = "REQUEST_URI"
	HeaderContentType    = "CONTENT_TYPE"
	HeaderServerProtocol = "SERVER_PROTOCOL"
)

// maxReservedBody caps the body capacity reserved up front from CONTENT_LENGTH
const maxReservedBody = 64 << 10

// Request is an SCGI request assembled by the Parser.
// Once the parser reports completion the request must be treated as read-only.
//
// The engine recycles a Request when its connection closes. A handler that
// hands work to another goroutine must copy what it keeps: the Request
// itself is only valid until the handler returns. Slices returned by Body
// and Names are never reused for a later request.
type Request struct {
	headers map[string]string
	names   []string
	body    []byte
}

// Header returns the value of the named header, or "" if absent
func (r *Request) Header(name string) string {
	return r.headers[name]
}

// Lookup returns the value of the named header and whether it was sent
func (r *Request) Lookup(name string) (string, bool) {
	v, ok := r.headers[name]
	return v, ok
}

// Headers returns a copy of the header mapping
func (r *Request) Headers() map[string]string {
	return maps.Clone(r.headers)
}

// Names returns header names in the order they arrived on the wire.
// The slice is not reused after Reset.
func (r *Request) Names() []string {
	return r.names
}

// Body returns the request body. The slice is not reused after Reset.
func (r *Request) Body() []byte {
	return r.body
}

// Method returns REQUEST_METHOD
func (r *Request) Method() string {
	return r.headers[HeaderRequestMethod]
}

// URI returns REQUEST_URI
func (r *Request) URI() string {
	return r.headers[HeaderRequestURI]
}

// ContentLength parses CONTENT_LENGTH. It returns -1 when the header is
// absent or not a non-negative decimal.
func (r *Request) ContentLength() int64 {
	n, err := parseContentLength(r.headers[HeaderContentLength])
	if err != nil {
		return -1
	}
	return n
}

// Reset clears the request for reuse. The header map is kept; body and
// name storage is dropped so slices a handler retained stay intact.
func (r *Request) Reset() {
	clear(r.headers)
	r.names = nil
	r.body = nil
}

func (r *Request) addHeader(name, value string) error {
	if r.headers == nil {
		r.headers = make(map[string]string, 16)
	}
	if _, exists := r.headers[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateHeader, name)
	}
	r.headers[name] = value
	r.names = append(r.names, name)
	return nil
}

func (r *Request) appendBody(p []byte) {
	r.body = append(r.body, p...)
}

func (r *Request) growBody(n int64) {
	// Cap the up-front reservation; larger bodies grow as bytes arrive.
	if n > maxReservedBody {
		n = maxReservedBody
	}
	if int64(cap(r.body)) < n {
		r.body = make([]byte, 0, n)
	}
}

func parseContentLength(s string) (int64, error) {
	if s == "" || !isDigits(s) {
		return 0, ErrBadContentLength
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrBadContentLength
	}
	return n, nil
}

func isDigits[T ~string | ~[]byte](s T) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
