// Package errs defines the error taxonomy of the request engine (spec §7).
// Every error surfaced to a caller through an async-result entry or a
// checker decision carries one of these codes.
package errs

//go:generate enumer -type=Code -output=code_string.go

// Code classifies a per-entry or terminal error.
type Code int

const (
	// OK is the zero value: no error, status == 0.
	OK Code = iota
	// NotFound means the key is absent in the replica (ENOENT).
	NotFound
	// TimedOut means a client deadline, server queue-timeout, or
	// forward-node deadline expired (ETIMEDOUT).
	TimedOut
	// NoRoute means no owning node exists for key/group (ENXIO).
	NoRoute
	// NotSupported means the group is unknown to the forward node (ENOTSUP).
	NotSupported
	// Already means a second terminal reply was attempted on the same
	// transaction (EALREADY); this code is swallowed internally and never
	// surfaced to a caller, but is part of the taxonomy for completeness.
	Already
	// Protocol means a size mismatch in a streaming write, a malformed
	// header, or an unparseable body (EINVAL).
	Protocol
	// NoMemory means an allocation failure during dispatch (ENOMEM).
	NoMemory
	// ChecksumMismatch means a CHECKSUM write's expected checksum did not
	// match the remote's current data checksum (spec §4.1's write_cas).
	ChecksumMismatch
)

// Error is the error type carried by callback-result entries. It pairs a
// taxonomy Code with a human-readable message so
// that log lines and CLI output stay informative without callers ever
// needing to string-match.
type Error struct {
	Code Code
	Msg  string
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Msg
}

// Status maps a Code to the signed status value carried in a command
// header (spec §3/§6): 0 for OK, a negative errno-like value otherwise.
func (e *Error) Status() int32 {
	if e == nil || e.Code == OK {
		return 0
	}
	return -int32(e.Code)
}

// Is reports whether err carries the given Code, unwrapping through
// pkg/errors-wrapped causes the way the rest of this module checks for
// taxonomy membership instead of string matching.
func Is(err error, code Code) bool {
	type causer interface{ Cause() error }
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code == code
		}
		c, ok := err.(causer)
		if !ok {
			return false
		}
		err = c.Cause()
	}
	return false
}
