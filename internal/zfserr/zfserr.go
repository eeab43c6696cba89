// Package zfserr defines the flat tagged error space shared by every zfsd
// component (spec.md §7). Positive values are passed-through errno numbers;
// negative values are zfsd-specific categories.
package zfserr

import "fmt"

// Code is a zfsd status code. Zero is success; positive values are errno
// numbers passed through unchanged; negative values are one of the named
// categories below.
type Code int32

const (
	OK Code = 0

	// Argument validity / protocol framing (C1/C6).
	RequestTooLong Code = -1
	InvalidRequest Code = -2
	UnknownFunction Code = -3

	// Authentication / connection (C5).
	InvalidAuthLevel  Code = -4
	CouldNotConnect   Code = -5
	CouldNotAuth      Code = -6
	ConnectionClosed  Code = -7
	RequestTimeout    Code = -8

	// On-disk corruption (C3).
	Stale         Code = -9
	MetadataError Code = -10

	// Reconcile-transient (C7/C8). Recovered in-layer per spec.md §7.
	Busy     Code = -11
	Changed  Code = -12
	SlowBusy Code = -13

	UpdateFailed  Code = -14
	InvalidReply  Code = -15

	// Shutdown.
	Exiting Code = -16
)

var names = map[Code]string{
	OK:               "OK",
	RequestTooLong:   "REQUEST_TOO_LONG",
	InvalidRequest:   "INVALID_REQUEST",
	UnknownFunction:  "UNKNOWN_FUNCTION",
	InvalidAuthLevel: "INVALID_AUTH_LEVEL",
	CouldNotConnect:  "COULD_NOT_CONNECT",
	CouldNotAuth:     "COULD_NOT_AUTH",
	ConnectionClosed: "CONNECTION_CLOSED",
	RequestTimeout:   "REQUEST_TIMEOUT",
	Stale:            "STALE",
	MetadataError:    "METADATA_ERROR",
	Busy:             "BUSY",
	Changed:          "CHANGED",
	SlowBusy:         "SLOW_BUSY",
	UpdateFailed:     "UPDATE_FAILED",
	InvalidReply:     "INVALID_REPLY",
	Exiting:          "EXITING",
}

func (c Code) String() string {
	if c > 0 {
		return fmt.Sprintf("errno(%d)", int32(c))
	}
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("zfserr(%d)", int32(c))
}

// Error wraps a Code with an optional cause, the way gcsfuse wraps errors
// with fmt.Errorf("Op: %v", err) throughout gcsproxy and fs.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(op string, code Code) error {
	return &Error{Op: op, Code: code}
}

func Wrap(op string, code Code, err error) error {
	return &Error{Op: op, Code: code, Err: err}
}

// CodeOf extracts the Code carried by err, defaulting to InvalidReply for
// errors that were never tagged (e.g. stray stdlib errors bubbling through).
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var ze *Error
	if as(err, &ze) {
		return ze.Code
	}
	return InvalidReply
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Transient reports whether code is recovered in-layer per spec.md §7
// rather than propagated to the caller as a hard failure.
func (c Code) Transient() bool {
	return c == Busy || c == Changed || c == SlowBusy
}

// Is reports whether err carries the given Code, for use with errors.Is
// via a thin wrapper: zfserr.Is(err, zfserr.Busy).
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
