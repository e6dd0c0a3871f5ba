package backup

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a backup error the way SPEC_FULL.md §7 names them.
type Kind int

const (
	// KindIO is an underlying read/seek failure.
	KindIO Kind = iota
	// KindTruncated is an unexpected end of stream inside a frame,
	// file blob, or before the terminal End frame.
	KindTruncated
	// KindInvalidFrame covers unknown tags/wire types, duplicate
	// singleton fields, length overruns, missing required sub-fields,
	// malformed varints, and frame lengths <= MAC size.
	KindInvalidFrame
	// KindAuthFailed is a truncated-HMAC mismatch on a frame or file.
	// A wrong passphrase surfaces this way too, since it produces a
	// MAC mismatch on the first encrypted frame.
	KindAuthFailed
	// KindCrypto is a cipher/HMAC initialization failure.
	KindCrypto
	// KindSQL is any error from the embedded SQL engine.
	KindSQL
	// KindNotFound is an attachment locator or recipient lookup miss.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindTruncated:
		return "truncated"
	case KindInvalidFrame:
		return "invalid-frame"
	case KindAuthFailed:
		return "auth-failed"
	case KindCrypto:
		return "crypto"
	case KindSQL:
		return "sql"
	case KindNotFound:
		return "not-found"
	default:
		return "unknown"
	}
}

// Error wraps a Kind and its underlying cause so callers can both
// branch on Kind (via errors.As) and retrieve a printable chain.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s", e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.cause)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error { return e.cause }

// wrap builds a *Error of the given kind from cause, adding msg as
// additional context via github.com/pkg/errors (the teacher's chosen
// error-wrapping library).
func wrap(kind Kind, cause error, msg string) error {
	if cause == nil {
		return &Error{Kind: kind, cause: errors.New(msg)}
	}
	return &Error{Kind: kind, cause: errors.Wrap(cause, msg)}
}

func wrapf(kind Kind, cause error, format string, args ...interface{}) error {
	return wrap(kind, cause, fmt.Sprintf(format, args...))
}
