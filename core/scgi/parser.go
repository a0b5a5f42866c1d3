package scgi

import (
	"fmt"

	"github.com/searchktools/fast-scgi/core/buffer"
)

// Default limits applied when a Limits field is zero
const (
	DefaultMaxHeaderLength  = 1 << 20
	DefaultMaxContentLength = 64 << 20

	// maxLengthDigits bounds the netstring length prefix
	maxLengthDigits = 10
)

// Limits bounds what a single request may make the server buffer
type Limits struct {
	MaxHeaderLength  int
	MaxContentLength int64
}

func (l Limits) withDefaults() Limits {
	if l.MaxHeaderLength <= 0 {
		l.MaxHeaderLength = DefaultMaxHeaderLength
	}
	if l.MaxContentLength <= 0 {
		l.MaxContentLength = DefaultMaxContentLength
	}
	return l
}

type phase uint8

const (
	phaseLength phase = iota
	phaseHeaders
	phaseSeparator
	phaseBody
	phaseDone
)

// Progress is a snapshot of the parser's counters
type Progress struct {
	HeadersLength int
	HeadersRead   int
	ContentLength int64
	ContentRead   int64
	Complete      bool
}

// Parser incrementally assembles a Request from an input queue.
//
// Feed may be called any number of times as bytes arrive. Each call either
// consumes bytes and makes progress or returns without touching the queue.
// Bytes are only removed once a whole syntactic unit (length prefix,
// name/value pair, separator) is present, so a request split at any byte
// boundary parses identically to one delivered whole.
type Parser struct {
	limits Limits
	req    *Request
	phase  phase
	err    error

	headersLength int
	headersRead   int
	contentLength int64
	contentRead   int64

	// scan is how far into the queue the current search already looked;
	// nameEnd is the NUL ending the pending header name, or -1.
	scan    int
	nameEnd int
}

// NewParser returns a parser that fills req
func NewParser(req *Request, limits Limits) *Parser {
	p := &Parser{}
	p.Reset(req, limits)
	return p
}

// Reset prepares the parser for a new request
func (p *Parser) Reset(req *Request, limits Limits) {
	*p = Parser{
		limits:  limits.withDefaults(),
		req:     req,
		nameEnd: -1,
	}
}

// Request returns the request being assembled
func (p *Parser) Request() *Request {
	return p.req
}

// Complete reports whether the header block and body were fully consumed
func (p *Parser) Complete() bool {
	return p.phase == phaseDone
}

// Progress returns the current counters
func (p *Parser) Progress() Progress {
	return Progress{
		HeadersLength: p.headersLength,
		HeadersRead:   p.headersRead,
		ContentLength: p.contentLength,
		ContentRead:   p.contentRead,
		Complete:      p.phase == phaseDone,
	}
}

// Feed consumes as much of in as it can. It returns true once the request
// is complete; later calls are no-ops. A non-nil error wraps ErrProtocol
// and is returned again by every later call.
func (p *Parser) Feed(in *buffer.Queue) (bool, error) {
	if p.err != nil {
		return false, p.err
	}

	for {
		var (
			progressed bool
			err        error
		)

		switch p.phase {
		case phaseLength:
			progressed, err = p.readLength(in)
		case phaseHeaders:
			progressed, err = p.readHeader(in)
		case phaseSeparator:
			progressed, err = p.readSeparator(in)
		case phaseBody:
			progressed = p.readBody(in)
		case phaseDone:
			return true, nil
		}

		if err != nil {
			p.err = err
			return false, err
		}
		if !progressed {
			return false, nil
		}
	}
}

// readLength consumes "<digits>:"
func (p *Parser) readLength(in *buffer.Queue) (bool, error) {
	colon := in.IndexByte(':', p.scan)
	if colon < 0 {
		if in.Len() > maxLengthDigits {
			return false, ErrBadLength
		}
		p.scan = in.Len()
		return false, nil
	}
	if colon == 0 || colon > maxLengthDigits {
		return false, ErrBadLength
	}

	digits := in.Next(colon + 1)[:colon]
	if !isDigits(digits) {
		return false, fmt.Errorf("%w: %q", ErrBadLength, digits)
	}

	var n int64
	for _, d := range digits {
		n = n*10 + int64(d-'0')
	}
	if n <= 0 {
		return false, ErrBadLength
	}
	if n > int64(p.limits.MaxHeaderLength) {
		return false, ErrHeadersTooLarge
	}

	p.headersLength = int(n)
	p.scan = 0
	p.phase = phaseHeaders
	return true, nil
}

// readHeader consumes one "name\0value\0" pair once both terminators are queued
func (p *Parser) readHeader(in *buffer.Queue) (bool, error) {
	remaining := p.headersLength - p.headersRead

	if p.nameEnd < 0 {
		i := in.IndexByte(0, p.scan)
		if i < 0 {
			return false, p.needMore(in, remaining)
		}
		p.nameEnd = i
		p.scan = i + 1
	}

	valueEnd := in.IndexByte(0, p.scan)
	if valueEnd < 0 {
		return false, p.needMore(in, remaining)
	}

	size := valueEnd + 1
	if size > remaining {
		return false, fmt.Errorf("%w: pair overruns declared length %d", ErrMalformedHeaders, p.headersLength)
	}
	if p.nameEnd == 0 {
		return false, fmt.Errorf("%w: empty header name", ErrMalformedHeaders)
	}

	pair := in.Next(size)
	name := string(pair[:p.nameEnd])
	value := string(pair[p.nameEnd+1 : valueEnd])
	if err := p.req.addHeader(name, value); err != nil {
		return false, err
	}

	p.headersRead += size
	p.scan = 0
	p.nameEnd = -1

	if p.headersRead > p.headersLength {
		panic("scgi: consumed past declared header length")
	}
	if p.headersRead == p.headersLength {
		p.phase = phaseSeparator
	}
	return true, nil
}

// needMore records how far the terminator search got. Once the queue holds
// every remaining header byte without a terminator the block is malformed.
func (p *Parser) needMore(in *buffer.Queue, remaining int) error {
	if in.Len() >= remaining {
		return fmt.Errorf("%w: unterminated header", ErrMalformedHeaders)
	}
	p.scan = in.Len()
	return nil
}

// readSeparator consumes the ',' that ends the netstring and resolves CONTENT_LENGTH
func (p *Parser) readSeparator(in *buffer.Queue) (bool, error) {
	if in.Len() < 1 {
		return false, nil
	}
	if c := in.Next(1)[0]; c != ',' {
		return false, fmt.Errorf("%w: got %q", ErrBadSeparator, c)
	}

	raw, ok := p.req.Lookup(HeaderContentLength)
	if !ok {
		return false, ErrMissingContentLength
	}
	n, err := parseContentLength(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %q", err, raw)
	}
	if n > p.limits.MaxContentLength {
		return false, ErrBodyTooLarge
	}

	p.contentLength = n
	p.req.growBody(n)
	if n == 0 {
		p.phase = phaseDone
	} else {
		p.phase = phaseBody
	}
	return true, nil
}

// readBody drains whatever body bytes are queued
func (p *Parser) readBody(in *buffer.Queue) bool {
	want := p.contentLength - p.contentRead
	n := int64(in.Len())
	if n == 0 {
		return false
	}
	if n > want {
		n = want
	}

	p.req.appendBody(in.Next(int(n)))
	p.contentRead += n

	if p.contentRead > p.contentLength {
		panic("scgi: consumed past CONTENT_LENGTH")
	}
	if p.contentRead == p.contentLength {
		p.phase = phaseDone
	}
	return true
}
