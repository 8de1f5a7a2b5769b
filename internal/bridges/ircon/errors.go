package ircon

import "errors"

// Domain errors for the ircon bridge package.
//
// These are the result codes handed back to the table layer. A nil error
// means OK.
var (
	// ErrOpenFailed is returned when the device socket cannot be created or
	// connected. The share stays disconnected so the next open starts over.
	ErrOpenFailed = errors.New("ircon: open failed")

	// ErrNotSupported is returned by index, positional, truncate, rename and
	// delete-all operations. It never has side effects.
	ErrNotSupported = errors.New("ircon: operation not supported")

	// ErrEndOfData is returned by ScanNext once the single row of a scan has
	// been produced.
	ErrEndOfData = errors.New("ircon: end of data")

	// ErrSessionClosed is returned when a data operation is attempted on a
	// session that is not open.
	ErrSessionClosed = errors.New("ircon: session not open")
)
