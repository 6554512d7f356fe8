package argon2wasm

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes a bridge failure.
type Kind string

const (
	// KindTransport covers fetching, compiling or linking the module and
	// traps raised while calling one of its exports.
	KindTransport Kind = "transport"
	// KindNative is a non-zero status returned by the module.
	KindNative Kind = "native"
	// KindParse is a memory cost that could not be read from an encoded hash.
	KindParse Kind = "parse"
	// KindSizing is a memory requirement outside the wasm32 page range.
	KindSizing Kind = "sizing"
	// KindCleanup is a failure releasing memory or the instance after the
	// result was computed.
	KindCleanup Kind = "cleanup"
	// KindMemory is a failed allocation, an out-of-range access or output
	// that does not have the expected layout.
	KindMemory Kind = "memory"
)

// Sentinels for errors.Is; matching is by Kind.
var (
	ErrTransport = &Error{Kind: KindTransport}
	ErrNative    = &Error{Kind: KindNative}
	ErrParse     = &Error{Kind: KindParse}
	ErrSizing    = &Error{Kind: KindSizing}
	ErrCleanup   = &Error{Kind: KindCleanup}
	ErrMemory    = &Error{Kind: KindMemory}
)

// Error is the structured error carried by outcomes.
type Error struct {
	Cause  error
	Kind   Kind
	Op     string
	Detail string
	Status Status
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Kind))
	b.WriteByte(']')

	if e.Op != "" {
		b.WriteByte(' ')
		b.WriteString(e.Op)
	}

	if e.Kind == KindNative {
		fmt.Fprintf(&b, ": status %d (%s)", int32(e.Status), e.Status)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind. A nil *Error
// matches nothing.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if t, ok := target.(*Error); ok && t != nil {
		return e.Kind == t.Kind
	}
	return false
}

func transportError(op, detail string, cause error) *Error {
	return &Error{Kind: KindTransport, Op: op, Detail: detail, Cause: cause}
}

func memoryError(op, detail string, cause error) *Error {
	return &Error{Kind: KindMemory, Op: op, Detail: detail, Cause: cause}
}

func nativeError(op string, status Status, message string) *Error {
	return &Error{Kind: KindNative, Op: op, Status: status, Detail: message}
}

// asError converts err into an *Error, wrapping foreign errors with kind.
func asError(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: kind, Op: op, Cause: err}
}
