package scgi

import (
	"errors"
	"fmt"
)

// ErrProtocol is wrapped by every error caused by malformed client input.
// Such errors close only the offending connection.
var ErrProtocol = errors.New("scgi: protocol error")

var (
	ErrBadLength            = fmt.Errorf("%w: malformed header length prefix", ErrProtocol)
	ErrHeadersTooLarge      = fmt.Errorf("%w: header block too large", ErrProtocol)
	ErrMalformedHeaders     = fmt.Errorf("%w: malformed header block", ErrProtocol)
	ErrDuplicateHeader      = fmt.Errorf("%w: duplicate header", ErrProtocol)
	ErrBadSeparator         = fmt.Errorf("%w: missing ',' after header block", ErrProtocol)
	ErrMissingContentLength = fmt.Errorf("%w: missing CONTENT_LENGTH", ErrProtocol)
	ErrBadContentLength     = fmt.Errorf("%w: invalid CONTENT_LENGTH", ErrProtocol)
	ErrBodyTooLarge         = fmt.Errorf("%w: body too large", ErrProtocol)
)

// ErrWriterDetached is returned by a ResponseWriter used after its handler returned
var ErrWriterDetached = errors.New("scgi: response writer used after handler returned")
