package parse

import "errors"

// Fault classes reported by Syncer and Decoder. Callers classify with
// errors.Is; the returned errors wrap the underlying I/O error when there is one.
var (
	// ErrTransport means the byte source failed or closed. It is fatal for
	// the capture loop.
	ErrTransport = errors.New("transport fault")

	// ErrShortRead means the source returned no data before a full field
	// was read (for example a serial read timeout). The partial packet is
	// discarded and the caller resynchronises.
	ErrShortRead = errors.New("short read")

	// ErrFraming means no magic sequence was found within the configured
	// scan limit. The caller resynchronises.
	ErrFraming = errors.New("framing fault")
)

// IsRecoverable reports whether err is a fault the capture loop recovers
// from by resynchronising.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrShortRead) || errors.Is(err, ErrFraming)
}
